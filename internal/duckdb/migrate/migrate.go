// Package migrate creates and upgrades the dump database layout from SQL
// files embedded in the binary. Files are named NNN_description.sql and are
// applied in version order, each in its own transaction.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	migrationsDir = "migrations"

	// VersionTable records which migrations a dump database has received.
	VersionTable = "dump_migrations"

	// ParsedEventsMigration declares the parsed-event table. Its marked
	// column lines double as the event schema declaration.
	ParsedEventsMigration = "001_trace_data_parsed.sql"
)

// Source returns the raw SQL of one embedded migration file.
func Source(name string) ([]byte, error) {
	data, err := migrations.ReadFile(path.Join(migrationsDir, name))
	if err != nil {
		return nil, fmt.Errorf("migration %s: %w", name, err)
	}
	return data, nil
}

// Migration is one embedded schema step.
type Migration struct {
	Version int
	Name    string
}

// Migrations lists the embedded migrations in version order.
func Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	out := make([]Migration, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			continue
		}
		v, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad version prefix: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: v, Name: e.Name()})
	}
	slices.SortFunc(out, func(a, b Migration) int { return a.Version - b.Version })
	return out, nil
}

// Runner upgrades one dump database.
type Runner struct{ db *sql.DB }

// NewRunner creates a migration runner for the given database connection.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

// Run applies every migration newer than the database's recorded version.
func (r *Runner) Run() error {
	_, pending, err := r.plan()
	if err != nil {
		return err
	}
	for _, m := range pending {
		if err := r.apply(m); err != nil {
			return err
		}
	}
	return nil
}

// Status returns the recorded version and the number of migrations not yet applied.
func (r *Runner) Status() (current int, pending int, err error) {
	current, todo, err := r.plan()
	if err != nil {
		return 0, 0, err
	}
	return current, len(todo), nil
}

// plan returns the recorded version and the migrations above it.
func (r *Runner) plan() (int, []Migration, error) {
	if _, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS ` + VersionTable + ` (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`); err != nil {
		return 0, nil, fmt.Errorf("create %s: %w", VersionTable, err)
	}

	var v sql.NullInt64
	if err := r.db.QueryRow(`SELECT MAX(version) FROM ` + VersionTable).Scan(&v); err != nil {
		return 0, nil, fmt.Errorf("read dump database version: %w", err)
	}
	current := int(v.Int64)

	all, err := Migrations()
	if err != nil {
		return 0, nil, err
	}
	idx := slices.IndexFunc(all, func(m Migration) bool { return m.Version > current })
	if idx < 0 {
		return current, nil, nil
	}
	return current, all[idx:], nil
}

func (r *Runner) apply(m Migration) (err error) {
	body, err := Source(m.Name)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("migration %s: begin: %w", m.Name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(string(body)); err != nil {
		return fmt.Errorf("migration %s: %w", m.Name, err)
	}
	if _, err = tx.Exec(`INSERT INTO `+VersionTable+` (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
		return fmt.Errorf("migration %s: record version: %w", m.Name, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("migration %s: commit: %w", m.Name, err)
	}
	return nil
}
