package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/ganttproject/colloboque/internal/project"
	"github.com/ganttproject/colloboque/internal/sqlgen"
	"github.com/ganttproject/colloboque/internal/xlog"
)

// Snapshot is a project file as of a server transaction.
type Snapshot struct {
	BaseTxnID  int64
	ProjectXML string
}

// Storage is the per-project persistence used by the server.
type Storage interface {
	InitProject(ctx context.Context, refid string) error
	GetTransactionLogs(ctx context.Context, refid string, baseTxnID int64) ([]xlog.Record, error)
	GetTransactionLogsBetween(ctx context.Context, refid string, after, through int64) ([]xlog.Record, error)
	InsertXlogs(ctx context.Context, refid string, txnID int64, recs []xlog.Record) error
	CommitXlogs(ctx context.Context, refid string, txnID int64, recs []xlog.Record) error
	InsertTasks(ctx context.Context, refid string, tasks []project.Task) error
	InsertDependencies(ctx context.Context, refid string, deps []project.Dependency) error
	GetProjectSnapshot(ctx context.Context, refid string, baseTxnID *int64) (*Snapshot, error)
	InsertActualSnapshot(ctx context.Context, refid string, txnID int64, projectXML string) error
	LatestTxnID(ctx context.Context, refid string) (int64, error)
}

// Postgres implements Storage with one schema per project.
type Postgres struct {
	db       *sql.DB
	config   *pgx.ConnConfig
	cloner   SchemaCloner
	template string

	mu      sync.Mutex
	schemas map[string]bool // schemas known to exist
}

var _ Storage = (*Postgres)(nil)

// Option configures a Postgres storage.
type Option func(*Postgres)

// WithCloner replaces the default ProcedureCloner.
func WithCloner(c SchemaCloner) Option {
	return func(p *Postgres) { p.cloner = c }
}

// WithTemplateSchema sets the schema new projects are cloned from.
func WithTemplateSchema(name string) Option {
	return func(p *Postgres) { p.template = name }
}

// Open connects to the database at dsn through the pgx driver.
func Open(ctx context.Context, dsn string, opts ...Option) (*Postgres, error) {
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, wrap("open", "", fmt.Errorf("parse dsn: %w", err))
	}
	db := stdlib.OpenDB(*config)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, wrap("open", "", fmt.Errorf("connect: %w", err))
	}

	p := &Postgres{
		db:       db,
		config:   config,
		cloner:   ProcedureCloner{},
		template: DefaultTemplateSchema,
		schemas:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}

	var version string
	if err := db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err == nil {
		slog.Debug("connected to postgres", "version", version)
	}
	return p, nil
}

// DB returns the shared handle.
func (p *Postgres) DB() *sql.DB {
	return p.db
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// InitProject clones the template schema into the project's schema.
func (p *Postgres) InitProject(ctx context.Context, refid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return wrap("init project", refid, p.initLocked(ctx, refid))
}

func (p *Postgres) initLocked(ctx context.Context, refid string) error {
	schema := SchemaName(refid)
	slog.Info("provisioning project schema", "project", refid, "schema", schema, "template", p.template)
	if err := p.cloner.Clone(ctx, p.db, p.template, schema); err != nil {
		return err
	}
	p.schemas[schema] = true
	return nil
}

// GetOrCreateProjectSchema returns the project's schema name, provisioning
// the schema on first use.
func (p *Postgres) GetOrCreateProjectSchema(ctx context.Context, refid string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	schema := SchemaName(refid)
	if p.schemas[schema] {
		return schema, nil
	}
	exists, err := schemaExists(ctx, p.db, schema)
	if err != nil {
		return "", wrap("get schema", refid, err)
	}
	if !exists {
		if err := p.initLocked(ctx, refid); err != nil {
			return "", wrap("get schema", refid, err)
		}
	}
	p.schemas[schema] = true
	return schema, nil
}

// withTx runs fn in one transaction pinned to the project schema.
func (p *Postgres) withTx(ctx context.Context, op, refid string, fn func(tx *sql.Tx) error) error {
	schema, err := p.GetOrCreateProjectSchema(ctx, refid)
	if err != nil {
		return err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(op, refid, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SET LOCAL search_path TO "+quoteIdent(schema)); err != nil {
		return wrap(op, refid, fmt.Errorf("set search_path: %w", err))
	}
	if err := fn(tx); err != nil {
		return wrap(op, refid, err)
	}
	return wrap(op, refid, tx.Commit())
}

// GetTransactionLogs returns every record committed after baseTxnID, in
// commit order.
func (p *Postgres) GetTransactionLogs(ctx context.Context, refid string, baseTxnID int64) ([]xlog.Record, error) {
	return p.GetTransactionLogsBetween(ctx, refid, baseTxnID, math.MaxInt64)
}

// GetTransactionLogsBetween returns the records of transactions after
// after and up to and including through.
func (p *Postgres) GetTransactionLogsBetween(ctx context.Context, refid string, after, through int64) ([]xlog.Record, error) {
	var out []xlog.Record
	err := p.withTx(ctx, "get transaction logs", refid, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT log_record_json
			FROM transactionlog
			WHERE base_txn_id > $1 AND base_txn_id <= $2
			ORDER BY base_txn_id, log_record_num
		`, after, through)
		if err != nil {
			return fmt.Errorf("query log: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var data string
			if err := rows.Scan(&data); err != nil {
				return fmt.Errorf("scan log: %w", err)
			}
			rec, err := xlog.UnmarshalRecord([]byte(data))
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	return out, err
}

// LatestTxnID returns the newest committed transaction, or 0 when the log
// is empty.
func (p *Postgres) LatestTxnID(ctx context.Context, refid string) (int64, error) {
	var id int64
	err := p.withTx(ctx, "latest txn", refid, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(base_txn_id), 0) FROM transactionlog`).Scan(&id)
	})
	return id, err
}

// InsertXlogs appends recs to the log as transaction txnID without
// executing them.
func (p *Postgres) InsertXlogs(ctx context.Context, refid string, txnID int64, recs []xlog.Record) error {
	return p.withTx(ctx, "insert xlogs", refid, func(tx *sql.Tx) error {
		return insertLog(ctx, tx, txnID, recs)
	})
}

// CommitXlogs executes recs against the project tables and appends them to
// the log as transaction txnID, atomically.
func (p *Postgres) CommitXlogs(ctx context.Context, refid string, txnID int64, recs []xlog.Record) error {
	return p.withTx(ctx, "commit xlogs", refid, func(tx *sql.Tx) error {
		for i, rec := range recs {
			stmts, err := sqlgen.GenerateRecord(sqlgen.Postgres, rec)
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			for _, s := range stmts {
				slog.Debug("storage exec", "project", refid, "txn", txnID, "sql", s)
				if _, err := tx.ExecContext(ctx, s); err != nil {
					return fmt.Errorf("record %d: %w", i, err)
				}
			}
		}
		return insertLog(ctx, tx, txnID, recs)
	})
}

func insertLog(ctx context.Context, tx *sql.Tx, txnID int64, recs []xlog.Record) error {
	for num, rec := range recs {
		data, err := xlog.MarshalRecord(rec)
		if err != nil {
			return err
		}
		slog.Debug("inserting log record", "txn", txnID, "num", num)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transactionlog (base_txn_id, log_record_num, log_record_json) VALUES ($1, $2, $3)`,
			txnID, num, string(data)); err != nil {
			return fmt.Errorf("insert log record %d/%d: %w", txnID, num, err)
		}
	}
	return nil
}

// InsertTasks adds tasks and their custom values to the project tables.
func (p *Postgres) InsertTasks(ctx context.Context, refid string, tasks []project.Task) error {
	return p.withTx(ctx, "insert tasks", refid, func(tx *sql.Tx) error {
		return execOps(ctx, tx, taskOps(tasks))
	})
}

// InsertDependencies adds deps to the project tables.
func (p *Postgres) InsertDependencies(ctx context.Context, refid string, deps []project.Dependency) error {
	return p.withTx(ctx, "insert dependencies", refid, func(tx *sql.Tx) error {
		return execOps(ctx, tx, dependencyOps(deps))
	})
}

func taskOps(tasks []project.Task) []xlog.Operation {
	var ops []xlog.Operation
	for _, t := range tasks {
		ops = append(ops, project.InsertTaskOp(t))
	}
	for _, t := range tasks {
		if len(t.CustomValues) > 0 {
			ops = append(ops, project.CustomValueOps(t.UID, t.CustomValues)...)
		}
	}
	return ops
}

func dependencyOps(deps []project.Dependency) []xlog.Operation {
	ops := make([]xlog.Operation, 0, len(deps))
	for _, d := range deps {
		ops = append(ops, project.InsertDependencyOp(d))
	}
	return ops
}

func execOps(ctx context.Context, tx *sql.Tx, ops []xlog.Operation) error {
	for _, op := range ops {
		s, err := sqlgen.Generate(sqlgen.Postgres, op)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
	}
	return nil
}

// GetProjectSnapshot returns the snapshot at baseTxnID, or the latest one
// when baseTxnID is nil. It returns nil, nil when there is none.
func (p *Postgres) GetProjectSnapshot(ctx context.Context, refid string, baseTxnID *int64) (*Snapshot, error) {
	var snap *Snapshot
	err := p.withTx(ctx, "get snapshot", refid, func(tx *sql.Tx) error {
		var row *sql.Row
		if baseTxnID != nil {
			row = tx.QueryRowContext(ctx,
				`SELECT base_txn_id, project_xml FROM projectfilesnapshot WHERE base_txn_id = $1`, *baseTxnID)
		} else {
			row = tx.QueryRowContext(ctx, `
				SELECT base_txn_id, project_xml FROM projectfilesnapshot
				WHERE base_txn_id = (SELECT MAX(base_txn_id) FROM projectfilesnapshot)`)
		}
		var s Snapshot
		switch err := row.Scan(&s.BaseTxnID, &s.ProjectXML); {
		case errors.Is(err, sql.ErrNoRows):
			return nil
		case err != nil:
			return fmt.Errorf("scan snapshot: %w", err)
		}
		snap = &s
		return nil
	})
	return snap, err
}

// InsertActualSnapshot stores the project file as of txnID.
func (p *Postgres) InsertActualSnapshot(ctx context.Context, refid string, txnID int64, projectXML string) error {
	return p.withTx(ctx, "insert snapshot", refid, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO projectfilesnapshot (base_txn_id, project_xml) VALUES ($1, $2)`, txnID, projectXML)
		return err
	})
}
