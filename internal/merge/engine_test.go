package merge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganttproject/colloboque/internal/sqlgen"
	"github.com/ganttproject/colloboque/internal/xlog"
)

// fakeDB hands out fakeConns in order: the first Begin is the server's.
type fakeDB struct {
	mu       sync.Mutex
	conns    []*fakeConn
	next     int
	beginErr error
	events   []string
}

func newFakeDB(server, client *fakeConn) *fakeDB {
	db := &fakeDB{conns: []*fakeConn{server, client}}
	server.db, server.name = db, "server"
	client.db, client.name = db, "client"
	return db
}

func (d *fakeDB) Begin(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.beginErr != nil && d.next == 1 {
		return nil, d.beginErr
	}
	c := d.conns[d.next]
	d.next++
	return c, nil
}

func (d *fakeDB) record(event string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *fakeDB) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

// fakeConn executes nothing. execErr fails every statement; block makes
// Exec wait for its context; delay makes it take that long.
type fakeConn struct {
	db   *fakeDB
	name string

	execErr   error
	block     bool
	delay     time.Duration
	commitErr error

	mu    sync.Mutex
	stmts []string
}

func (c *fakeConn) Exec(ctx context.Context, query string) error {
	c.mu.Lock()
	c.stmts = append(c.stmts, query)
	c.mu.Unlock()
	if c.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.execErr
}

func (c *fakeConn) Commit() error {
	c.db.record(c.name + " commit")
	return c.commitErr
}

func (c *fakeConn) Rollback() error {
	c.db.record(c.name + " rollback")
	return nil
}

func (c *fakeConn) Statements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.stmts...)
}

func rename(uid, name string) xlog.Record {
	return xlog.NewRecord(xlog.Update{
		Table:       "task",
		BinaryConds: []xlog.BinaryCond{xlog.Eq("uid", uid)},
		NewValues:   xlog.Values{"name": xlog.V(name)},
	})
}

func TestMerge_Accepted(t *testing.T) {
	server, client := &fakeConn{}, &fakeConn{}
	db := newFakeDB(server, client)

	res, err := New().TryMergeConcurrentUpdates(context.Background(), db,
		[]xlog.Record{rename("a", "Server")}, []xlog.Record{rename("b", "Client")})
	require.NoError(t, err)

	assert.True(t, res.Accepted)
	assert.Equal(t, ReasonNone, res.Reason)
	assert.Equal(t, StateCommitted, res.State)
	assert.Equal(t, []State{
		StateOpened, StateServerRunning, StateClientRunning,
		StateBothDone, StateServerCommitted, StateCommitted,
	}, res.Trace)
	assert.Equal(t, []string{"server commit", "client commit"}, db.Events())
	assert.Equal(t, []string{"UPDATE task SET name = 'Server' WHERE uid = 'a'"}, server.Statements())
	assert.Equal(t, []string{"UPDATE task SET name = 'Client' WHERE uid = 'b'"}, client.Statements())
}

func TestMerge_TimeoutRejects(t *testing.T) {
	server, client := &fakeConn{}, &fakeConn{block: true}
	db := newFakeDB(server, client)

	res, err := New(WithTimeout(20*time.Millisecond)).TryMergeConcurrentUpdates(context.Background(), db,
		[]xlog.Record{rename("a", "Server")}, []xlog.Record{rename("a", "Client")})
	require.NoError(t, err)

	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonTimeout, res.Reason)
	assert.Equal(t, StateFailed, res.State)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.ElementsMatch(t, []string{"server rollback", "client rollback"}, db.Events())
}

func TestMerge_ServerTimeoutCancelsClient(t *testing.T) {
	server, client := &fakeConn{block: true}, &fakeConn{block: true}
	db := newFakeDB(server, client)

	res, err := New(WithTimeout(20*time.Millisecond)).TryMergeConcurrentUpdates(context.Background(), db,
		[]xlog.Record{rename("a", "Server")}, []xlog.Record{rename("a", "Client")})
	require.NoError(t, err)
	assert.Equal(t, ReasonTimeout, res.Reason)
	assert.Equal(t, []State{StateOpened, StateServerRunning, StateClientRunning, StateFailed}, res.Trace)
}

// The client's wait only starts once the server stream is done, so a client
// may run longer than the timeout as long as the server was slow too.
func TestMerge_ClientDeadlineStartsAfterServer(t *testing.T) {
	server := &fakeConn{delay: 200 * time.Millisecond}
	client := &fakeConn{delay: 400 * time.Millisecond}
	db := newFakeDB(server, client)

	res, err := New(WithTimeout(300*time.Millisecond)).TryMergeConcurrentUpdates(context.Background(), db,
		[]xlog.Record{rename("a", "Server")}, []xlog.Record{rename("b", "Client")})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, StateCommitted, res.State)
}

func TestMerge_ConflictCodes(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "23505", "55P03"} {
		t.Run(code, func(t *testing.T) {
			server, client := &fakeConn{}, &fakeConn{execErr: &pgconn.PgError{Code: code}}
			db := newFakeDB(server, client)

			res, err := New().TryMergeConcurrentUpdates(context.Background(), db,
				[]xlog.Record{rename("a", "Server")}, []xlog.Record{rename("a", "Client")})
			require.NoError(t, err)
			assert.False(t, res.Accepted)
			assert.Equal(t, ReasonConflict, res.Reason)

			var pgErr *pgconn.PgError
			require.ErrorAs(t, res.Err, &pgErr)
			assert.Equal(t, code, pgErr.Code)
		})
	}
}

func TestMerge_InfrastructureErrorIsReturned(t *testing.T) {
	lost := errors.New("connection reset by peer")
	server, client := &fakeConn{}, &fakeConn{execErr: lost}
	db := newFakeDB(server, client)

	res, err := New().TryMergeConcurrentUpdates(context.Background(), db,
		[]xlog.Record{rename("a", "Server")}, []xlog.Record{rename("b", "Client")})
	require.Error(t, err)
	assert.ErrorIs(t, err, lost)
	assert.False(t, res.Accepted)
	assert.Equal(t, StateFailed, res.State)
	assert.ElementsMatch(t, []string{"server rollback", "client rollback"}, db.Events())
}

func TestMerge_ServerCommitFails(t *testing.T) {
	server, client := &fakeConn{commitErr: pgx.ErrTxCommitRollback}, &fakeConn{}
	db := newFakeDB(server, client)

	res, err := New().TryMergeConcurrentUpdates(context.Background(), db,
		[]xlog.Record{rename("a", "Server")}, []xlog.Record{rename("b", "Client")})
	require.NoError(t, err)
	assert.Equal(t, ReasonServerCommitFailed, res.Reason)
	assert.Equal(t, []string{"server commit", "client rollback"}, db.Events())
	assert.Equal(t, []State{
		StateOpened, StateServerRunning, StateClientRunning, StateBothDone, StateFailed,
	}, res.Trace)
}

func TestMerge_ClientCommitFails(t *testing.T) {
	server, client := &fakeConn{}, &fakeConn{commitErr: &pgconn.PgError{Code: "40001"}}
	db := newFakeDB(server, client)

	res, err := New().TryMergeConcurrentUpdates(context.Background(), db,
		[]xlog.Record{rename("a", "Server")}, []xlog.Record{rename("b", "Client")})
	require.NoError(t, err)
	assert.Equal(t, ReasonClientCommitFailed, res.Reason)
	assert.Equal(t, []string{"server commit", "client commit"}, db.Events())
}

func TestMerge_BeginFailureIsReturned(t *testing.T) {
	server, client := &fakeConn{}, &fakeConn{}
	db := newFakeDB(server, client)
	db.beginErr = errors.New("too many connections")

	_, err := New().TryMergeConcurrentUpdates(context.Background(), db, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin client transaction")
	assert.Equal(t, []string{"server rollback"}, db.Events())
}

func TestMerge_SQLiteDialect(t *testing.T) {
	server, client := &fakeConn{}, &fakeConn{}
	db := newFakeDB(server, client)

	upsert := xlog.NewRecord(xlog.Merge{
		Table:                "taskcustomcolumn",
		BinaryConds:          []xlog.BinaryCond{xlog.Eq("uid", "a"), xlog.Eq("column_id", "tpc0")},
		WhenMatchedUpdate:    xlog.Values{"column_value": xlog.V("1")},
		WhenNotMatchedInsert: xlog.Values{"uid": xlog.V("a"), "column_id": xlog.V("tpc0"), "column_value": xlog.V("1")},
	})
	res, err := New(WithDialect(sqlgen.SQLite)).TryMergeConcurrentUpdates(context.Background(), db,
		nil, []xlog.Record{upsert})
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	stmts := client.Statements()
	require.Len(t, stmts, 1)
	assert.True(t, strings.Contains(stmts[0], "WHERE NOT EXISTS"), stmts[0])
	assert.Empty(t, server.Statements())
}

func TestMerge_InvalidRecordIsReturned(t *testing.T) {
	db := newFakeDB(&fakeConn{}, &fakeConn{})
	bad := xlog.NewRecord(xlog.Update{Table: "task"})

	_, err := New().TryMergeConcurrentUpdates(context.Background(), db, nil, []xlog.Record{bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render client records")
	assert.Empty(t, db.Events(), "nothing was opened")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason RejectReason
		ok     bool
	}{
		{"deadline", context.DeadlineExceeded, ReasonTimeout, true},
		{"query canceled", &pgconn.PgError{Code: "57014"}, ReasonTimeout, true},
		{"serialization", &pgconn.PgError{Code: "40001"}, ReasonConflict, true},
		{"unique", &pgconn.PgError{Code: "23505"}, ReasonConflict, true},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, ReasonConflict, true},
		{"commit rollback", pgx.ErrTxCommitRollback, ReasonConflict, true},
		{"syntax", &pgconn.PgError{Code: "42601"}, ReasonNone, false},
		{"other", errors.New("eof"), ReasonNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ok := classify(tt.err)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
