package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/jackc/pgx/v5"
)

//go:embed template.sql
var templateSQL string

// DefaultTemplateSchema is the schema new projects are cloned from.
const DefaultTemplateSchema = "project_template"

// SchemaName maps a project refid to its schema name. The refid is hashed
// so that any string yields a valid identifier.
func SchemaName(refid string) string {
	h := fnv.New128a()
	h.Write([]byte(refid))
	return "project_" + hex.EncodeToString(h.Sum(nil))
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// SchemaCloner creates schema dest with the layout of schema template.
type SchemaCloner interface {
	Clone(ctx context.Context, db *sql.DB, template, dest string) error
}

// ProcedureCloner calls the clone_schema(source, dest, copy_data) stored
// procedure installed in the database. Data is never copied.
type ProcedureCloner struct{}

func (ProcedureCloner) Clone(ctx context.Context, db *sql.DB, template, dest string) error {
	if _, err := db.ExecContext(ctx, "SELECT clone_schema($1, $2, $3)", template, dest, false); err != nil {
		return fmt.Errorf("clone_schema(%s, %s): %w", template, dest, err)
	}
	return nil
}

// DDLCloner ignores the template schema and creates dest from the embedded
// project layout. It needs no server-side procedure.
type DDLCloner struct{}

func (DDLCloner) Clone(ctx context.Context, db *sql.DB, _ string, dest string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "CREATE SCHEMA "+quoteIdent(dest)); err != nil {
		return fmt.Errorf("create schema %s: %w", dest, err)
	}
	if err := createLayout(ctx, tx, dest); err != nil {
		return err
	}
	return tx.Commit()
}

// EnsureTemplate creates the template schema with the project layout if it
// does not exist yet.
func EnsureTemplate(ctx context.Context, db *sql.DB, template string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	exists, err := schemaExists(ctx, tx, template)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "CREATE SCHEMA "+quoteIdent(template)); err != nil {
		return fmt.Errorf("create schema %s: %w", template, err)
	}
	if err := createLayout(ctx, tx, template); err != nil {
		return err
	}
	return tx.Commit()
}

// createLayout runs the embedded layout statements inside schema.
func createLayout(ctx context.Context, tx *sql.Tx, schema string) error {
	if _, err := tx.ExecContext(ctx, "SET LOCAL search_path TO "+quoteIdent(schema)); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}
	for _, stmt := range layoutStatements() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create layout in %s: %w", schema, err)
		}
	}
	return nil
}

// layoutStatements splits template.sql into statements, dropping comments.
func layoutStatements() []string {
	var lines []string
	for _, line := range strings.Split(templateSQL, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}
	var out []string
	for _, stmt := range strings.Split(strings.Join(lines, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func schemaExists(ctx context.Context, q rowQuerier, name string) (bool, error) {
	var found string
	err := q.QueryRowContext(ctx,
		"SELECT schema_name FROM information_schema.schemata WHERE schema_name = $1", name,
	).Scan(&found)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("look up schema %s: %w", name, err)
	}
	return true, nil
}
