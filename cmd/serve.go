package cmd

import (
	"github.com/gridwatch/pmugate/internal/server"
	"github.com/judwhite/go-svc"
	"github.com/spf13/cobra"
)

type serveCMD struct {
	ctx *PmuContext
}

func newServeCMD(ctx *PmuContext) *serveCMD {
	return &serveCMD{ctx: ctx}
}

func (s *serveCMD) CMD() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the pmugate server in the foreground",
		RunE:  s.run,
	}
}

func (s *serveCMD) run(cmd *cobra.Command, args []string) error {
	opts := s.ctx.opts
	opts.ConfigureDataDir()
	if err := opts.Check(); err != nil {
		return err
	}
	s.ctx.configureLog(false)

	return svc.Run(server.New(opts))
}
