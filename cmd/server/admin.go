package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"invoicedesk/backend/internal/httpapi"
	"invoicedesk/backend/internal/logger"
	pgstore "invoicedesk/backend/internal/store/postgres"
)

var errNoDatabase = errors.New("DATABASE_URL is not set")

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if cfg.DatabaseURL == "" {
				return errNoDatabase
			}
			return pgstore.Migrate(cmd.Context(), cfg.DatabaseURL, logger.WithComponent("migrate"))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations, one step by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if cfg.DatabaseURL == "" {
				return errNoDatabase
			}
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			return pgstore.MigrateDown(cmd.Context(), cfg.DatabaseURL, steps, logger.WithComponent("migrate"))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if cfg.DatabaseURL == "" {
				return errNoDatabase
			}
			v, dirty, err := pgstore.SchemaVersion(cmd.Context(), cfg.DatabaseURL, logger.WithComponent("migrate"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", v, dirty)
			return nil
		},
	})
	return cmd
}

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage login accounts",
	}

	var password string
	add := &cobra.Command{
		Use:     "add <username>",
		Short:   "Create a login account",
		Example: `  invoicedesk user add billing --password 's3cret-pass'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			repo, closers, err := openRepository(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				for _, c := range closers {
					_ = c.fn()
				}
			}()

			auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
			user, err := auth.CreateUser(ctx, args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}
	add.Flags().StringVar(&password, "password", "", "password for the new account (at least 8 characters)")
	_ = add.MarkFlagRequired("password")

	cmd.AddCommand(add)
	return cmd
}
