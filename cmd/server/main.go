package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"invoicedesk/backend/internal/config"
	"invoicedesk/backend/internal/logger"
)

var version = "0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "invoicedesk: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:   "invoicedesk",
		Short: "Invoice and quotation backend",
		Long: `invoicedesk serves the document API: drafts, numbering,
finalization with PDF export and live collection feeds.

Configuration comes from the environment; a .env file is loaded first
when present.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), loadConfig())
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(newServeCommand(), newMigrateCommand(), newUserCommand())
	return root
}

// loadConfig reads the environment and installs the global logger.
func loadConfig() config.Config {
	cfg := config.Load()
	if _, err := logger.Setup(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log configuration: %v\n", err)
	}
	return cfg
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.CounterMaxAttempts < 1 {
		return fmt.Errorf("COUNTER_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}
