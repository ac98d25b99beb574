package cmd

import (
	"fmt"
	"os"

	"github.com/gridwatch/pmugate/pkg/pmuini"
	"github.com/gridwatch/pmugate/pkg/pmuproto"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type composeCMD struct {
	ctx      *PmuContext
	iniFile  string
	protocol string
	out      string
}

func newComposeCMD(ctx *PmuContext) *composeCMD {
	return &composeCMD{ctx: ctx}
}

func (c *composeCMD) CMD() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "compose the configuration frame described by a device file",
		RunE:  c.run,
	}
	cmd.Flags().StringVar(&c.iniFile, "ini", "", "device file")
	cmd.Flags().StringVarP(&c.protocol, "protocol", "p", "", "override the protocol of the device file")
	cmd.Flags().StringVarP(&c.out, "out", "o", "", "output file, stdout when empty")
	_ = cmd.MarkFlagRequired("ini")
	return cmd
}

func (c *composeCMD) run(cmd *cobra.Command, args []string) error {
	c.ctx.configureLog(true)

	data, err := c.compose()
	if err != nil {
		return err
	}
	if c.out == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(c.out, data, 0644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(data), c.out)
	return nil
}

func (c *composeCMD) compose() ([]byte, error) {
	cfg, err := pmuini.Load(c.iniFile)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", c.iniFile)
	}
	if c.protocol != "" {
		p, err := pmuproto.ParseProtocol(c.protocol)
		if err != nil {
			return nil, err
		}
		if p != pmuproto.ProtocolUnknown && p != cfg.Protocol {
			cfg = retarget(cfg, p)
		}
	}
	return pmuproto.ComposeFrame(cfg)
}

// retarget moves cfg to protocol p. Version and timebase fall back to the defaults of p.
func retarget(cfg *pmuproto.ConfigurationFrame, p pmuproto.Protocol) *pmuproto.ConfigurationFrame {
	f := pmuproto.NewConfigurationFrame(p, cfg.IDCode, cfg.FrameRate, 0)
	if pmuproto.LookupVariant(p).TimebaseField {
		f.Type = cfg.Type
	}
	f.Timestamp = cfg.Timestamp
	f.TimeQuality = cfg.TimeQuality
	f.Cells = cfg.Cells
	return f
}
