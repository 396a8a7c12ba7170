package merge

import (
	"context"
	"database/sql"
)

// Database opens connections with a transaction already started.
type Database interface {
	Begin(ctx context.Context) (Conn, error)
}

// Conn is one database transaction.
type Conn interface {
	Exec(ctx context.Context, query string) error
	Commit() error
	Rollback() error
}

// SQLDatabase adapts a *sql.DB. Each Begin takes its own pooled connection,
// so DB must allow at least two open connections.
type SQLDatabase struct {
	DB        *sql.DB
	Isolation sql.IsolationLevel
}

// NewSQLDatabase wraps db with REPEATABLE READ transactions.
func NewSQLDatabase(db *sql.DB) *SQLDatabase {
	return &SQLDatabase{DB: db, Isolation: sql.LevelRepeatableRead}
}

func (d *SQLDatabase) Begin(ctx context.Context) (Conn, error) {
	tx, err := d.DB.BeginTx(ctx, &sql.TxOptions{Isolation: d.Isolation})
	if err != nil {
		return nil, err
	}
	return sqlConn{tx: tx}, nil
}

type sqlConn struct {
	tx *sql.Tx
}

func (c sqlConn) Exec(ctx context.Context, query string) error {
	_, err := c.tx.ExecContext(ctx, query)
	return err
}

func (c sqlConn) Commit() error {
	return c.tx.Commit()
}

func (c sqlConn) Rollback() error {
	return c.tx.Rollback()
}
