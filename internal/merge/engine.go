package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ganttproject/colloboque/internal/sqlgen"
	"github.com/ganttproject/colloboque/internal/xlog"
)

const (
	DefaultTimeout = 1000 * time.Millisecond
	DefaultWorkers = 4
)

// Engine runs merge attempts. It is safe for concurrent use; concurrent
// attempts share the worker pool.
type Engine struct {
	pool    *Pool
	timeout time.Duration
	dialect sqlgen.Dialect
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout bounds each join. The server stream gets d from when the
// engine starts waiting on it; the client stream gets another d once the
// server stream is done, so a slow server extends the client's budget.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithWorkers sets the worker pool width. Each attempt needs two workers to
// detect lock waits; with one worker the client stream only starts after the
// server stream finished.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.pool = NewPool(n) }
}

// WithDialect selects the SQL dialect the records are rendered in.
func WithDialect(d sqlgen.Dialect) Option {
	return func(e *Engine) { e.dialect = d }
}

// New returns an engine with a Postgres dialect, DefaultTimeout and
// DefaultWorkers unless overridden.
func New(opts ...Option) *Engine {
	e := &Engine{
		pool:    NewPool(DefaultWorkers),
		timeout: DefaultTimeout,
		dialect: sqlgen.Postgres,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// attempt tracks one merge's state transitions.
type attempt struct {
	id    int64
	trace []State
}

func (a *attempt) to(s State) {
	a.trace = append(a.trace, s)
	slog.Debug("merge state", "attempt", a.id, "state", s.String())
}

func (a *attempt) result(accepted bool, reason RejectReason, cause error) Result {
	return Result{
		Accepted: accepted,
		Reason:   reason,
		State:    a.trace[len(a.trace)-1],
		Trace:    append([]State(nil), a.trace...),
		Err:      cause,
	}
}

// TryMergeConcurrentUpdates replays server and client concurrently on db
// and commits both if neither conflicts with the other. A rejection is
// reported in the Result; the error is only set when the database failed
// for a reason that says nothing about the records.
func (e *Engine) TryMergeConcurrentUpdates(ctx context.Context, db Database, server, client []xlog.Record) (Result, error) {
	a := &attempt{id: time.Now().UnixNano()}

	serverStmts, err := e.render(server)
	if err != nil {
		return Result{State: StateFailed, Trace: []State{StateFailed}}, fmt.Errorf("render server records: %w", err)
	}
	clientStmts, err := e.render(client)
	if err != nil {
		return Result{State: StateFailed, Trace: []State{StateFailed}}, fmt.Errorf("render client records: %w", err)
	}

	serverConn, err := db.Begin(ctx)
	if err != nil {
		return Result{State: StateFailed, Trace: []State{StateFailed}}, fmt.Errorf("begin server transaction: %w", err)
	}
	clientConn, err := db.Begin(ctx)
	if err != nil {
		rollback(serverConn, "server")
		return Result{State: StateFailed, Trace: []State{StateFailed}}, fmt.Errorf("begin client transaction: %w", err)
	}
	a.to(StateOpened)

	serverJob := e.pool.Submit(ctx, func(ctx context.Context) error {
		return run(ctx, serverConn, serverStmts)
	})
	a.to(StateServerRunning)
	clientJob := e.pool.Submit(ctx, func(ctx context.Context) error {
		return run(ctx, clientConn, clientStmts)
	})
	a.to(StateClientRunning)

	if err := e.join(ctx, serverJob); err != nil {
		clientJob.Cancel()
		<-clientJob.Done()
		slog.Info("server stream failed", "attempt", a.id, "error", err)
		return e.reject(ctx, a, err, ReasonNone, serverConn, clientConn)
	}
	slog.Debug("server stream done", "attempt", a.id)
	if err := e.join(ctx, clientJob); err != nil {
		slog.Info("client stream failed", "attempt", a.id, "error", err)
		return e.reject(ctx, a, err, ReasonNone, serverConn, clientConn)
	}
	slog.Debug("client stream done", "attempt", a.id)
	a.to(StateBothDone)

	if err := serverConn.Commit(); err != nil {
		return e.reject(ctx, a, err, ReasonServerCommitFailed, clientConn)
	}
	a.to(StateServerCommitted)
	if err := clientConn.Commit(); err != nil {
		return e.reject(ctx, a, err, ReasonClientCommitFailed)
	}
	a.to(StateCommitted)
	return a.result(true, ReasonNone, nil), nil
}

func (e *Engine) render(recs []xlog.Record) ([]string, error) {
	var out []string
	for i, rec := range recs {
		stmts, err := sqlgen.GenerateRecord(e.dialect, rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, stmts...)
	}
	return out, nil
}

func run(ctx context.Context, conn Conn, stmts []string) error {
	for _, s := range stmts {
		slog.Debug("merge exec", "sql", s)
		if err := conn.Exec(ctx, s); err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
	}
	return nil
}

// join waits up to the engine timeout for job. A job that does not finish
// in time is cancelled and drained before join returns, so its connection
// is free again.
func (e *Engine) join(ctx context.Context, job *Job) error {
	waitCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	err := job.Wait(waitCtx)
	select {
	case <-job.Done():
	default:
		job.Cancel()
		<-job.Done()
	}
	return err
}

// reject rolls back conns and turns err into a rejection, or into an error
// when err is not caused by the records. commitReason, when set, replaces
// the conflict reason for commit failures.
func (e *Engine) reject(ctx context.Context, a *attempt, err error, commitReason RejectReason, conns ...Conn) (Result, error) {
	for i, c := range conns {
		rollback(c, fmt.Sprintf("conn %d", i))
	}
	a.to(StateFailed)

	if ctx.Err() != nil {
		return a.result(false, ReasonNone, nil), fmt.Errorf("merge interrupted: %w", ctx.Err())
	}
	reason, ok := classify(err)
	if !ok {
		return a.result(false, ReasonNone, nil), fmt.Errorf("merge failed: %w", err)
	}
	if commitReason != ReasonNone {
		reason = commitReason
	}
	slog.Info("merge rejected", "attempt", a.id, "reason", reason.String(), "error", err)
	return a.result(false, reason, err), nil
}

func rollback(c Conn, name string) {
	if err := c.Rollback(); err != nil {
		slog.Debug("rollback failed", "conn", name, "error", err)
	}
}

// classify maps an error to a rejection reason. ok is false for errors that
// are not about the data, e.g. lost connections.
func classify(err error) (reason RejectReason, ok bool) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ReasonTimeout, true
	}
	if errors.Is(err, pgx.ErrTxCommitRollback) {
		return ReasonConflict, true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "57014": // query_canceled
			return ReasonTimeout, true
		case pgErr.Code == "55P03", // lock_not_available
			strings.HasPrefix(pgErr.Code, "40"), // transaction rollback
			strings.HasPrefix(pgErr.Code, "23"): // integrity constraint violation
			return ReasonConflict, true
		}
	}
	return ReasonNone, false
}
