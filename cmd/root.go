package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/gridwatch/pmugate/internal/options"
	"github.com/gridwatch/pmugate/pkg/pmulog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// PmuContext state shared by the sub commands.
type PmuContext struct {
	opts *options.Options
}

var (
	cfgFile string
	mode    string
	pmuCtx  = &PmuContext{opts: options.New()}
	rootCmd = &cobra.Command{
		Use:   "pmugate",
		Short: "pmugate, a gateway for synchrophasor data streams.",
		Long:  `pmugate accepts IEEE C37.118, IEC 61850-90-5, BPA PDCstream, Macrodyne and SEL Fast Message streams from phasor measurement units and concentrators.`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newServeCMD(pmuCtx).run(cmd, args)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "", "mode (debug, release, test)")

	rootCmd.AddCommand(newServeCMD(pmuCtx).CMD())
	rootCmd.AddCommand(newStopCMD(pmuCtx).CMD())
	rootCmd.AddCommand(newDecodeCMD(pmuCtx).CMD())
	rootCmd.AddCommand(newComposeCMD(pmuCtx).CMD())
}

func initConfig() {
	vp := viper.New()
	if cfgFile != "" {
		vp.SetConfigFile(cfgFile)
		if err := vp.ReadInConfig(); err == nil {
			fmt.Fprintln(os.Stderr, "Using config file:", vp.ConfigFileUsed())
		}
	}

	vp.SetEnvPrefix("pmu")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()
	_ = vp.BindPFlag("mode", rootCmd.PersistentFlags().Lookup("mode"))

	pmuCtx.opts.ConfigureWithViper(vp)
}

// configureLog routes logging to the configured directory, stdout stays quiet when quiet is set.
func (c *PmuContext) configureLog(quiet bool) {
	logOpts := c.opts.LogOptions()
	logOpts.NoStdout = quiet
	pmulog.Configure(logOpts)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
