package database

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"agora/internal/config"
	"agora/internal/observability"

	"gorm.io/gorm"
)

const (
	SchemaModeSQL  = "sql"
	SchemaModeAuto = "auto"
)

// SchemaStatus describes what ApplySchema would do against the current database.
type SchemaStatus struct {
	Mode              string
	Driver            string
	Environment       string
	AppliedVersions   []int
	PendingMigrations []Migration
}

// schemaMode is sql for postgres (versioned migrations) and auto for sqlite,
// whose dialect cannot run the postgres scripts.
func schemaMode(cfg *config.Config) string {
	if cfg.DBDriver == "sqlite" {
		return SchemaModeAuto
	}
	return SchemaModeSQL
}

func runAutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(PersistentModels()...)
}

// ApplySchema brings the database schema up to date for the configured driver.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	mode := schemaMode(cfg)
	switch mode {
	case SchemaModeSQL:
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	case SchemaModeAuto:
		observability.Logger.Info("Running GORM AutoMigrate", slog.String("driver", cfg.DBDriver), slog.String("env", cfg.Env))
		if err := runAutoMigrate(db.WithContext(ctx)); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}
	return nil
}

// GetSchemaStatus reports applied and pending migrations without changing
// anything. In auto mode there is no ledger, so both lists are empty.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	st := &SchemaStatus{Mode: schemaMode(cfg), Driver: cfg.DBDriver, Environment: cfg.Env}
	if st.Mode != SchemaModeSQL {
		return st, nil
	}

	var err error
	if st.AppliedVersions, err = newLedger(db).applied(ctx); err != nil {
		return nil, err
	}
	for _, m := range GetMigrations() {
		if !slices.Contains(st.AppliedVersions, m.Version) {
			st.PendingMigrations = append(st.PendingMigrations, m)
		}
	}
	return st, nil
}
