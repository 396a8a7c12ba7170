package mirror

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ganttproject/colloboque/internal/project"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on logrecord(local_txn_id, id)
const currentSchemaVersion = 1

// noLog marks a mirror whose log has not been started.
const noLog = -1

// Mirror owns an optional live SQLite handle. The zero value is not usable;
// create one with New.
type Mirror struct {
	path string

	mu sync.Mutex
	db *sql.DB // nil until first use

	localTxnID int
	baseTxnID  int64
	syncRanges map[int64]txnRange
	currentTxn *Txn
	customDefs []project.CustomPropertyDef
	listeners  []func()
}

// txnRange is the half-open range [start, end) of local txn ids committed
// while the mirror was based on one server txn.
type txnRange struct {
	start, end int
}

// New returns a mirror backed by the SQLite file at path, or by a private
// in-memory database when path is empty. Nothing is opened until first use.
func New(path string) *Mirror {
	return &Mirror{
		path:       path,
		localTxnID: noLog,
		syncRanges: make(map[int64]txnRange),
	}
}

// Init creates the schema if needed. It is idempotent.
func (m *Mirror) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.ensureOpen(ctx)
	return wrap("init", err)
}

// ensureOpen returns the live handle, opening it on first use.
// Callers hold m.mu.
func (m *Mirror) ensureOpen(ctx context.Context) (*sql.DB, error) {
	if m.db != nil {
		return m.db, nil
	}

	dsn := m.path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: SQLite allows a single writer, and an in-memory
	// database lives exactly as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	slog.Debug("mirror opened", "path", m.path)
	m.db = db
	return db, nil
}

// Reset discards the database and all mirror state. The next operation
// starts from an empty schema. A file-backed mirror deletes its file.
func (m *Mirror) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.closeLocked(); err != nil {
		return wrap("reset", err)
	}
	if m.path != "" {
		if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
			return wrap("reset", err)
		}
	}
	m.localTxnID = noLog
	m.baseTxnID = 0
	m.syncRanges = make(map[int64]txnRange)
	m.currentTxn = nil
	m.customDefs = nil
	return nil
}

// Shutdown releases the database handle. An in-memory mirror loses its
// contents; a file-backed one keeps them for the next use.
func (m *Mirror) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return wrap("shutdown", m.closeLocked())
}

func (m *Mirror) closeLocked() error {
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}

// AddExternalUpdatesListener registers fn to run after ApplyUpdate applied
// at least one record.
func (m *Mirror) AddExternalUpdatesListener(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return runMigrations(ctx, db)
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if _, err := db.ExecContext(ctx, `
			CREATE INDEX IF NOT EXISTS idx_logrecord_txn
			ON logrecord(local_txn_id, id)
		`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
