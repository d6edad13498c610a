package main

import (
	"fmt"

	"github.com/mbocsi/airlink/config"
	"github.com/mbocsi/airlink/logging"
	"github.com/spf13/cobra"
)

var version = "dev"

// globalFlags are shared by every subcommand; set flags win over the config
// file and environment.
type globalFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

type app struct {
	flags globalFlags
	cfg   config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.Default()}

	rootCmd := &cobra.Command{
		Use:           "airlink",
		Short:         "Move signing messages between air-gapped apps over QR codes and deep links",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.flags.ConfigPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = a.flags.LogLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Log.Format = a.flags.LogFormat
			}
			if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
				return fmt.Errorf("logging: %w", err)
			}
			a.cfg = cfg
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.flags.ConfigPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&a.flags.LogLevel, "log-level", "info", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&a.flags.LogFormat, "log-format", "console", "log format: console|json")

	rootCmd.AddCommand(newEncodeCmd(a))
	rootCmd.AddCommand(newDecodeCmd(a))
	rootCmd.AddCommand(newRenderCmd(a))
	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newRelayCmd(a))
	return rootCmd
}
