package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"agora/internal/observability"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// migrationLockID is the pg advisory lock key held while migrating, so
// replicas starting together apply each script once.
const migrationLockID int64 = 0x61676f7261

// AppliedMigration is one row of the schema ledger.
type AppliedMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

func (AppliedMigration) TableName() string { return "schema_migrations" }

const createLedgerSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// ledger reads and writes schema_migrations.
type ledger struct {
	db *gorm.DB
}

func newLedger(db *gorm.DB) ledger { return ledger{db: db} }

// applied returns recorded versions in ascending order. A missing ledger
// table means nothing has been applied yet.
func (l ledger) applied(ctx context.Context) ([]int, error) {
	var versions []int
	err := l.db.WithContext(ctx).Model(&AppliedMigration{}).Order("version").Pluck("version", &versions).Error
	switch {
	case err == nil:
		return versions, nil
	case isUndefinedTable(err):
		return nil, nil
	default:
		return nil, fmt.Errorf("read schema ledger: %w", err)
	}
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	return strings.Contains(err.Error(), "no such table")
}

// up runs m's script and records it in the same transaction.
func (l ledger) up(ctx context.Context, m Migration) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.UpScript).Error; err != nil {
			return fmt.Errorf("apply %s: %w", m.String(), err)
		}
		if err := tx.Create(&AppliedMigration{Version: m.Version, Name: m.Name}).Error; err != nil {
			return fmt.Errorf("record %s: %w", m.String(), err)
		}
		return nil
	})
}

// down runs m's rollback script and drops its ledger row in the same transaction.
func (l ledger) down(ctx context.Context, m Migration) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.DownScript).Error; err != nil {
			return fmt.Errorf("roll back %s: %w", m.String(), err)
		}
		if err := tx.Delete(&AppliedMigration{}, "version = ?", m.Version).Error; err != nil {
			return fmt.Errorf("unrecord %s: %w", m.String(), err)
		}
		return nil
	})
}

// withMigrationLock runs fn on one pooled connection holding the advisory lock.
func withMigrationLock(ctx context.Context, db *gorm.DB, fn func(conn *gorm.DB) error) error {
	return db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := conn.Exec("SELECT pg_advisory_lock(?)", migrationLockID).Error; err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		defer func() {
			if err := conn.Exec("SELECT pg_advisory_unlock(?)", migrationLockID).Error; err != nil {
				observability.Logger.Warn("release migration lock", slog.String("error", err.Error()))
			}
		}()
		return fn(conn)
	})
}

// RunMigrations applies every registered migration missing from the ledger,
// oldest first. It refuses to run when the ledger names versions this
// binary does not know, which means the database is ahead of the code.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	return withMigrationLock(ctx, db, func(conn *gorm.DB) error {
		if err := conn.Exec(createLedgerSQL).Error; err != nil {
			return fmt.Errorf("create schema ledger: %w", err)
		}
		l := newLedger(conn)
		applied, err := l.applied(ctx)
		if err != nil {
			return err
		}
		if err := checkLedger(applied, migrations); err != nil {
			return err
		}

		for _, m := range migrations {
			if slices.Contains(applied, m.Version) {
				continue
			}
			start := time.Now()
			if err := l.up(ctx, m); err != nil {
				return err
			}
			observability.Logger.Info("migration applied",
				slog.String("migration", m.String()), slog.Duration("took", time.Since(start)))
		}
		return nil
	})
}

func checkLedger(applied []int, registered []Migration) error {
	var unknown []string
	for _, v := range applied {
		if !slices.ContainsFunc(registered, func(m Migration) bool { return m.Version == v }) {
			unknown = append(unknown, fmt.Sprintf("%06d", v))
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("schema ledger has versions unknown to this build: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// RollbackMigration reverts one applied migration by version.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	m := GetMigrationByVersion(version)
	if m == nil {
		return fmt.Errorf("migration version %d not found", version)
	}
	return withMigrationLock(ctx, db, func(conn *gorm.DB) error {
		l := newLedger(conn)
		applied, err := l.applied(ctx)
		if err != nil {
			return err
		}
		if !slices.Contains(applied, version) {
			return fmt.Errorf("migration %s has not been applied", m.String())
		}
		if err := l.down(ctx, *m); err != nil {
			return err
		}
		observability.Logger.Info("migration rolled back", slog.String("migration", m.String()))
		return nil
	})
}
