package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tinytelemetry/fdbtracer/internal/duckdb/migrate"
	"github.com/tinytelemetry/fdbtracer/internal/ingest"
	"github.com/tinytelemetry/fdbtracer/internal/model"
)

// EventsTable receives one row per parsed trace event.
const EventsTable = "trace_data_parsed"

// ErrSinkClosed is returned by operations on a closed store.
var ErrSinkClosed = errors.New("duckdb: dump database already disconnected")

// Store is the dump database. It implements ingest.RecordSink.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	closed       bool
	dbPath       string
	created      bool
	schema       *model.Schema
	insertSQL    string
	QueryTimeout time.Duration
}

var _ ingest.RecordSink = (*Store)(nil)

// NewStore opens or creates a DuckDB dump database and applies migrations.
// If dbPath is empty, an in-memory database is used.
// Every schema field must exist as a column of EventsTable.
// An optional queryTimeout can be passed; it defaults to 30s.
func NewStore(dbPath string, schema *model.Schema, queryTimeout ...time.Duration) (*Store, error) {
	if schema == nil {
		return nil, model.ErrEmptySchema
	}

	dsn := ""
	created := true
	if dbPath != "" {
		if _, err := os.Stat(dbPath); err == nil {
			created = false
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create dump database dir: %w", err)
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open dump database: %w", err)
	}

	if err := migrate.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, err
	}

	qt := 30 * time.Second
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		qt = queryTimeout[0]
	}

	s := &Store{
		db:           db,
		dbPath:       dbPath,
		created:      created,
		schema:       schema,
		insertSQL:    insertStatement(schema.Fields()),
		QueryTimeout: qt,
	}
	if err := s.checkColumns(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func insertStatement(fields []string) string {
	cols := make([]string, len(fields))
	marks := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = `"` + f + `"`
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		EventsTable, strings.Join(cols, ", "), strings.Join(marks, ", "))
}

// checkColumns fails when a schema field has no matching table column.
func (s *Store) checkColumns() error {
	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_name = ?`, EventsTable)
	if err != nil {
		return fmt.Errorf("read %s columns: %w", EventsTable, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan column name: %w", err)
		}
		cols[strings.ToUpper(name)] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var missing []string
	for _, f := range s.schema.Fields() {
		if !cols[strings.ToUpper(f)] {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("duckdb: %s has no column for schema field(s) %s",
			EventsTable, strings.Join(missing, ", "))
	}
	return nil
}

// Created reports whether NewStore created the database file rather than
// reopening an existing one. In-memory stores always report true.
func (s *Store) Created() bool { return s.created }

// DBPath returns the configured DuckDB path. Empty means in-memory DB.
func (s *Store) DBPath() string { return s.dbPath }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	return s.db.PingContext(ctx)
}

// Begin starts a transaction with the schema INSERT prepared on it.
func (s *Store) Begin(ctx context.Context) (ingest.SinkTx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrSinkClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	stmt, err := tx.PrepareContext(ctx, s.insertSQL)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	return &eventTx{tx: tx, stmt: stmt, schema: s.schema}, nil
}

// Close closes the database connection. A second call returns ErrSinkClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.closed = true
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct query access.
func (s *Store) DB() *sql.DB {
	return s.db
}

type eventTx struct {
	tx     *sql.Tx
	stmt   *sql.Stmt
	schema *model.Schema
	done   bool
}

func (t *eventTx) Insert(ctx context.Context, rec *model.EventRecord) error {
	if rec.Schema() != t.schema {
		return errors.New("duckdb: record schema does not match store schema")
	}
	if _, err := t.stmt.ExecContext(ctx, rec.Values()...); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (t *eventTx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	t.stmt.Close()
	return t.tx.Commit()
}

func (t *eventTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.stmt.Close()
	return t.tx.Rollback()
}
