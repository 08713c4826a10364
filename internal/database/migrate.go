package database

import (
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Migration is one versioned postgres schema change with its rollback script.
type Migration struct {
	Version    int
	Name       string
	UpScript   string
	DownScript string
}

func (m *Migration) String() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationFile matches 000001_engagement_core.up.sql.
var migrationFile = regexp.MustCompile(`^(\d{6})_([a-z0-9_]+)\.up\.sql$`)

var migrations = mustLoadMigrations(migrationFS, "migrations")

func mustLoadMigrations(fsys fs.FS, dir string) []Migration {
	out, err := loadMigrations(fsys, dir)
	if err != nil {
		panic(err)
	}
	return out
}

// loadMigrations reads NNNNNN_name.up.sql files and their .down.sql pairs from
// dir, sorted by version. A missing down script or a duplicate version is an error.
func loadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var out []Migration
	for _, entry := range entries {
		parts := migrationFile.FindStringSubmatch(entry.Name())
		if entry.IsDir() || parts == nil {
			continue
		}
		version, _ := strconv.Atoi(parts[1])
		if slices.ContainsFunc(out, func(m Migration) bool { return m.Version == version }) {
			return nil, fmt.Errorf("duplicate migration version %06d", version)
		}

		up, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return nil, err
		}
		downName := strings.TrimSuffix(entry.Name(), ".up.sql") + ".down.sql"
		down, err := fs.ReadFile(fsys, dir+"/"+downName)
		if err != nil {
			return nil, fmt.Errorf("migration %s has no rollback: %w", parts[1]+"_"+parts[2], err)
		}

		out = append(out, Migration{
			Version:    version,
			Name:       parts[2],
			UpScript:   string(up),
			DownScript: string(down),
		})
	}

	slices.SortFunc(out, func(a, b Migration) int { return a.Version - b.Version })
	return out, nil
}

// GetMigrations returns the embedded migrations, oldest first.
func GetMigrations() []Migration {
	return migrations
}

// GetMigrationByVersion returns nil when no embedded migration has version.
func GetMigrationByVersion(version int) *Migration {
	i := slices.IndexFunc(migrations, func(m Migration) bool { return m.Version == version })
	if i < 0 {
		return nil
	}
	m := migrations[i]
	return &m
}
