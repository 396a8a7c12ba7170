package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/ganttproject/colloboque/internal/project"
)

// TempDatabase is a disposable schema holding one project's tables. Its DB
// has search_path pinned to the schema on every connection.
type TempDatabase struct {
	Schema string
	DB     *sql.DB

	parent *Postgres
}

// CreateSnapshotDatabase creates a temporary schema loaded with the tasks,
// dependencies and custom values of projectXML.
func (p *Postgres) CreateSnapshotDatabase(ctx context.Context, projectXML string) (*TempDatabase, error) {
	doc, err := project.ParseDocument(projectXML)
	if err != nil {
		return nil, wrap("create snapshot database", "", err)
	}

	name := "merge_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := p.cloner.Clone(ctx, p.db, p.template, name); err != nil {
		return nil, wrap("create snapshot database", "", err)
	}

	config := p.config.Copy()
	if config.RuntimeParams == nil {
		config.RuntimeParams = make(map[string]string)
	}
	config.RuntimeParams["search_path"] = name
	tmp := &TempDatabase{Schema: name, DB: stdlib.OpenDB(*config), parent: p}

	if err := tmp.load(ctx, doc); err != nil {
		tmp.Close(ctx)
		return nil, wrap("create snapshot database", "", err)
	}
	slog.Debug("snapshot database created", "schema", name)
	return tmp, nil
}

func (t *TempDatabase) load(ctx context.Context, doc *project.Document) error {
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := execOps(ctx, tx, taskOps(doc.Tasks())); err != nil {
		return err
	}
	if err := execOps(ctx, tx, dependencyOps(doc.Dependencies())); err != nil {
		return err
	}
	return tx.Commit()
}

// Close releases the connections and drops the schema.
func (t *TempDatabase) Close(ctx context.Context) error {
	closeErr := t.DB.Close()
	if _, err := t.parent.db.ExecContext(ctx, "DROP SCHEMA IF EXISTS "+quoteIdent(t.Schema)+" CASCADE"); err != nil {
		return wrap("drop snapshot database", "", err)
	}
	return wrap("close snapshot database", "", closeErr)
}
