package mirror

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/ganttproject/colloboque/internal/project"
	"github.com/ganttproject/colloboque/internal/sqlgen"
	"github.com/ganttproject/colloboque/internal/xlog"
)

// statement is an executable SQL text and the operation it was generated
// from. Statements without an operation are local bookkeeping and are never
// logged.
type statement struct {
	sql string
	op  xlog.Operation
}

func newStatement(op xlog.Operation) (statement, error) {
	text, err := sqlgen.Generate(sqlgen.SQLite, op)
	if err != nil {
		return statement{}, err
	}
	return statement{sql: text, op: op}, nil
}

func newStatements(ops []xlog.Operation) ([]statement, error) {
	out := make([]statement, 0, len(ops))
	for _, op := range ops {
		s, err := newStatement(op)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// StartLog starts logging mutations as outgoing transactions based on the
// server transaction baseTxnID.
func (m *Mirror) StartLog(baseTxnID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localTxnID = 0
	m.baseTxnID = baseTxnID
	m.syncRanges[baseTxnID] = txnRange{}
}

func (m *Mirror) logStarted() bool {
	return m.localTxnID >= 0
}

// InsertTask adds t to the mirror. The undo of the insert deletes it.
func (m *Mirror) InsertTask(ctx context.Context, t project.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	do, err := newStatement(project.InsertTaskOp(t))
	if err != nil {
		return wrap("insert task", err)
	}
	undo, err := newStatement(project.DeleteTaskOp(t.UID))
	if err != nil {
		return wrap("insert task", err)
	}
	return wrap("insert task", m.withLog(ctx, []statement{do}, []statement{undo}))
}

// InsertTaskDependency adds d to the mirror. Both tasks must exist.
func (m *Mirror) InsertTaskDependency(ctx context.Context, d project.Dependency) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	do, err := newStatement(project.InsertDependencyOp(d))
	if err != nil {
		return wrap("insert dependency", err)
	}
	undo, err := newStatement(project.DeleteDependencyOp(d))
	if err != nil {
		return wrap("insert dependency", err)
	}
	return wrap("insert dependency", m.withLog(ctx, []statement{do}, []statement{undo}))
}

// withLog adds statements to the open transaction, or executes them as a
// transaction of their own. Callers hold m.mu.
func (m *Mirror) withLog(ctx context.Context, stmts, undo []statement) error {
	if m.currentTxn != nil {
		return m.currentTxn.add(stmts, undo)
	}
	return m.commitStatements(ctx, stmts)
}

// commitStatements executes and logs stmts as one local transaction and
// advances the local txn id on success. Callers hold m.mu.
func (m *Mirror) commitStatements(ctx context.Context, stmts []statement) error {
	if len(stmts) == 0 {
		return nil
	}
	if err := m.executeAndLog(ctx, stmts, m.localTxnID); err != nil {
		return err
	}
	m.incrementLocalTxnID()
	return nil
}

func (m *Mirror) incrementLocalTxnID() {
	r, ok := m.syncRanges[m.baseTxnID]
	if !ok || !m.logStarted() {
		return
	}
	m.localTxnID++
	r.end++
	m.syncRanges[m.baseTxnID] = r
}

// executeAndLog runs stmts in one SQLite transaction. When the log is
// started each logged statement's operation is appended under localTxnID.
func (m *Mirror) executeAndLog(ctx context.Context, stmts []statement, localTxnID int) error {
	db, err := m.ensureOpen(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, s := range stmts {
		slog.Debug("mirror exec", "sql", s.sql)
		if _, err := tx.ExecContext(ctx, s.sql); err != nil {
			return fmt.Errorf("execute local txn %d: %s: %w", localTxnID, s.sql, err)
		}
		if s.op == nil || !m.logStarted() {
			continue
		}
		data, err := xlog.MarshalOperation(s.op)
		if err != nil {
			return fmt.Errorf("encode operation: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO logrecord (local_txn_id, operation_dto_json) VALUES (?, ?)`,
			localTxnID, string(data)); err != nil {
			return fmt.Errorf("log local txn %d: %w", localTxnID, err)
		}
	}
	if err := m.refreshCustomColumns(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ApplyUpdate executes records received from the server in one SQLite
// transaction, without logging them, and moves the mirror's base from
// baseTxnID to targetTxnID. Listeners run when records is non-empty.
func (m *Mirror) ApplyUpdate(ctx context.Context, records []xlog.Record, baseTxnID, targetTxnID int64) error {
	m.mu.Lock()

	err := m.applyRecords(ctx, records)
	if err != nil {
		m.mu.Unlock()
		return wrap("apply update", err)
	}

	end := m.localTxnID
	if r, ok := m.syncRanges[baseTxnID]; ok {
		end = r.end
	}
	m.syncRanges[targetTxnID] = txnRange{start: end, end: end}
	m.baseTxnID = targetTxnID
	listeners := append([]func(){}, m.listeners...)
	m.mu.Unlock()

	if len(records) > 0 {
		for _, fn := range listeners {
			fn()
		}
	}
	return nil
}

func (m *Mirror) applyRecords(ctx context.Context, records []xlog.Record) error {
	db, err := m.ensureOpen(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, rec := range records {
		stmts, err := sqlgen.GenerateRecord(sqlgen.SQLite, rec)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s); err != nil {
				return fmt.Errorf("record %d: execute %s: %w", i, s, err)
			}
		}
	}
	if err := m.refreshCustomColumns(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
