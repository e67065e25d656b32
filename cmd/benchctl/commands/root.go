package commands

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"benchsuite/internal/logging"
	"benchsuite/pkg/client"
)

var (
	source    configSource
	logLevel  = ""
	logFormat = ""
)

func init() {
	viper.SetEnvPrefix("BENCHCTL")
	viper.AutomaticEnv()
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("log_format", logging.FormatConsole)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "benchctl",
		Short:        "Manage benchmark suites and drive benchmark workers",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := logging.Config{Level: viper.GetString("log_level"), Format: viper.GetString("log_format")}
			if logLevel != "" {
				cfg.Level = logLevel
			}
			if logFormat != "" {
				cfg.Format = logFormat
			}
			return logging.Setup(cfg, cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&source.Workdir, "workdir", "w", ".", "Root directory to load configuration files from")
	rootCmd.PersistentFlags().StringVarP(&source.Main, "main", "m", "", "Path to the main configuration file (defaults to main.yaml, main.k, or main.kcl)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides BENCHCTL_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json")

	rootCmd.AddCommand(suiteCmd())
	rootCmd.AddCommand(execCmd())
	return rootCmd
}

func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newClient() *client.Client {
	return client.New(nil)
}
