package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/oliveapp/olive-agents/internal/config"
	"github.com/oliveapp/olive-agents/internal/logging"
)

// env is filled by the root command before any subcommand runs.
type env struct {
	configFile string
	cfg        config.Config
	logger     zerolog.Logger
}

func newRootCmd() *cobra.Command {
	e := &env{}
	rootCmd := &cobra.Command{
		Use:           "olive-agentd",
		Short:         "Olive background agent runner",
		Long:          "olive-agentd runs Olive's background agents on demand or on a schedule, records every run, and delivers the resulting notifications.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.NewViper(e.configFile)
			if err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cmd.ErrOrStderr()})
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&e.configFile, "config", "", "Path to configuration file (default ./olive.yaml or ./config/olive.yaml)")

	rootCmd.AddCommand(
		newServeCmd(e),
		newRunCmd(e),
		newRunsCmd(e),
		newApproveCmd(e),
		newCancelCmd(e),
		newTickCmd(e),
		newAgentsCmd(e),
		newMigrateCmd(e),
		newVersionCmd(),
	)
	return rootCmd
}
