package cli

import (
	"fmt"
	"io"
	"strconv"

	"agora/internal/database"

	"github.com/spf13/cobra"
)

type migrationView struct {
	Version int    `yaml:"version"`
	Name    string `yaml:"name"`
}

type schemaStatusView struct {
	Mode    string          `yaml:"mode"`
	Driver  string          `yaml:"driver"`
	Env     string          `yaml:"env"`
	Applied []int           `yaml:"applied"`
	Pending []migrationView `yaml:"pending"`
}

// NewMigrateCommand creates the migrate command group.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, inspect or roll back the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations (AutoMigrate on sqlite)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := rootOpts.connect()
			if err != nil {
				return err
			}
			defer closeDB(db)

			if err := database.ApplySchema(cmd.Context(), db, cfg); err != nil {
				return WrapExitError(ExitFailure, "apply schema", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (driver=%s)\n", cfg.DBDriver)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := rootOpts.connect()
			if err != nil {
				return err
			}
			defer closeDB(db)

			status, err := database.GetSchemaStatus(cmd.Context(), db, cfg)
			if err != nil {
				return WrapExitError(ExitFailure, "schema status", err)
			}

			view := schemaStatusView{
				Mode:    status.Mode,
				Driver:  status.Driver,
				Env:     status.Environment,
				Applied: status.AppliedVersions,
			}
			for _, m := range status.PendingMigrations {
				view.Pending = append(view.Pending, migrationView{Version: m.Version, Name: m.Name})
			}

			return emit(cmd.OutOrStdout(), rootOpts.Format, view, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "mode=%s driver=%s env=%s applied=%d pending=%d\n",
					view.Mode, view.Driver, view.Env, len(view.Applied), len(view.Pending))
				for _, m := range view.Pending {
					_, _ = fmt.Fprintf(w, "pending: %06d_%s\n", m.Version, m.Name)
				}
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down <version>",
		Short: "Roll back one applied migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid version %q", args[0]), err)
			}

			cfg, db, err := rootOpts.connect()
			if err != nil {
				return err
			}
			defer closeDB(db)

			if cfg.DBDriver == "sqlite" {
				return NewExitError(ExitCommandError, "rollback needs versioned migrations; sqlite uses AutoMigrate")
			}
			if err := database.RollbackMigration(cmd.Context(), db, version); err != nil {
				return WrapExitError(ExitFailure, "rollback", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "rolled back migration %d\n", version)
			return nil
		},
	})

	return cmd
}
