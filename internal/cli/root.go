// Package cli implements agoractl, the operator command line for schema,
// counter reconciliation, demo data and configuration.
package cli

import (
	"fmt"
	"slices"

	"agora/internal/config"
	"agora/internal/database"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// RootOptions holds global flags and the dependency hooks shared by all commands.
type RootOptions struct {
	Format string // "text" | "yaml"

	LoadConfig func() (*config.Config, error)
	OpenDB     func(cfg *config.Config) (*gorm.DB, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "yaml"}

// NewRootCommand creates the root command for agoractl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{
		LoadConfig: config.LoadConfig,
		OpenDB:     database.Open,
	})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agoractl",
		Short: "Operate an agora deployment",
		Long:  "Schema migrations, counter reconciliation, demo data and configuration for the agora engagement service.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|yaml)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

// connect loads the configuration and opens the database without applying the schema.
func (o *RootOptions) connect() (*config.Config, *gorm.DB, error) {
	cfg, err := o.LoadConfig()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "load config", err)
	}
	db, err := o.OpenDB(cfg)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "connect database", err)
	}
	return cfg, db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
