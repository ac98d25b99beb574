package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type stopCMD struct {
	ctx *PmuContext
}

func newStopCMD(ctx *PmuContext) *stopCMD {
	return &stopCMD{
		ctx: ctx,
	}
}

func (s *stopCMD) CMD() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "stop a running pmugate server",
		RunE:  s.run,
	}
	return cmd
}

func (s *stopCMD) run(cmd *cobra.Command, args []string) error {
	pid, err := readPid(s.ctx.opts.PidFile())
	if err != nil {
		return err
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		return errors.Wrapf(err, "signal process %d", pid)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "pmugate server stopped")
	return nil
}

func readPid(path string) (int, error) {
	strb, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.Errorf("no running server, %s not found", path)
		}
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(strb)))
	if err != nil || pid <= 0 {
		return 0, errors.Errorf("invalid pid file %s", path)
	}
	return pid, nil
}
