package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ganttproject/colloboque/internal/project"
)

// customColumn is a cp_ column found on the task table.
type customColumn struct {
	name     string
	computed bool
}

// OnCustomColumnChange reshapes the task table to hold one cp_ column per
// definition. Computed columns are dropped first and added last, so that
// stored columns they reference exist whenever they do.
func (m *Mirror) OnCustomColumnChange(ctx context.Context, defs []project.CustomPropertyDef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return wrap("custom columns", m.reshapeCustomColumns(ctx, defs))
}

func (m *Mirror) reshapeCustomColumns(ctx context.Context, defs []project.CustomPropertyDef) error {
	db, err := m.ensureOpen(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := listCustomColumns(ctx, tx)
	if err != nil {
		return err
	}

	wanted := make(map[string]project.CustomPropertyDef, len(defs))
	for _, d := range defs {
		wanted[d.ColumnName()] = d
	}
	present := make(map[string]bool, len(existing))

	var ddl []string
	for _, c := range existing {
		if c.computed {
			ddl = append(ddl, "ALTER TABLE task DROP COLUMN "+c.name)
		}
	}
	for _, c := range existing {
		if c.computed {
			continue
		}
		if d, ok := wanted[c.name]; ok && !d.Computed() {
			present[c.name] = true
			continue
		}
		ddl = append(ddl, "ALTER TABLE task DROP COLUMN "+c.name)
	}
	for _, d := range defs {
		if !d.Computed() && !present[d.ColumnName()] {
			ddl = append(ddl, fmt.Sprintf("ALTER TABLE task ADD COLUMN %s %s", d.ColumnName(), d.SQLType()))
		}
	}
	for _, d := range defs {
		if d.Computed() {
			ddl = append(ddl, fmt.Sprintf("ALTER TABLE task ADD COLUMN %s %s GENERATED ALWAYS AS (%s) VIRTUAL",
				d.ColumnName(), d.SQLType(), d.Expression))
		}
	}

	for _, stmt := range ddl {
		slog.Debug("mirror ddl", "sql", stmt)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}

	m.customDefs = append([]project.CustomPropertyDef(nil), defs...)
	if err := m.refreshCustomColumns(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// listCustomColumns reads the cp_ columns of the task table in declaration
// order. table_xinfo reports generated columns as hidden 2 or 3.
func listCustomColumns(ctx context.Context, q querier) ([]customColumn, error) {
	rows, err := q.QueryContext(ctx, "PRAGMA table_xinfo(task)")
	if err != nil {
		return nil, fmt.Errorf("read task columns: %w", err)
	}
	defer rows.Close()

	var out []customColumn
	for rows.Next() {
		var (
			cid, notNull, pk, hidden int
			name, typ                string
			dflt                     any
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk, &hidden); err != nil {
			return nil, fmt.Errorf("scan task column: %w", err)
		}
		if !strings.HasPrefix(name, "cp_") {
			continue
		}
		out = append(out, customColumn{name: name, computed: hidden == 2 || hidden == 3})
	}
	return out, rows.Err()
}

// refreshCustomColumns copies stored custom values from taskcustomcolumn
// into the cp_ columns. It is local bookkeeping and never logged.
func (m *Mirror) refreshCustomColumns(ctx context.Context, tx execer) error {
	for _, d := range m.customDefs {
		if d.Computed() {
			continue
		}
		query := fmt.Sprintf(`UPDATE task SET %s = (
			SELECT column_value FROM taskcustomcolumn c
			WHERE c.uid = task.uid AND c.column_id = ?
		)`, d.ColumnName())
		if _, err := tx.ExecContext(ctx, query, d.ID); err != nil {
			return fmt.Errorf("refresh %s: %w", d.ColumnName(), err)
		}
	}
	return nil
}
