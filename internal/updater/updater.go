// Package updater rewrites a project file by replaying operation log
// records over a throwaway in-memory mirror of it.
package updater

import (
	"context"
	"fmt"

	"github.com/ganttproject/colloboque/internal/mirror"
	"github.com/ganttproject/colloboque/internal/project"
	"github.com/ganttproject/colloboque/internal/xlog"
)

// Apply returns projectXML with rec applied. An empty record returns the
// input unchanged.
func Apply(ctx context.Context, projectXML string, rec xlog.Record) (string, error) {
	return ApplyAll(ctx, projectXML, []xlog.Record{rec})
}

// ApplyAll returns projectXML with recs applied in order, atomically: if
// any record fails the error is returned and no output is produced.
func ApplyAll(ctx context.Context, projectXML string, recs []xlog.Record) (string, error) {
	var pending []xlog.Record
	for _, rec := range recs {
		if !rec.Empty() {
			pending = append(pending, rec)
		}
	}
	if len(pending) == 0 {
		return projectXML, nil
	}

	doc, err := project.ParseDocument(projectXML)
	if err != nil {
		return "", err
	}

	m := mirror.New("")
	defer m.Shutdown()
	if err := load(ctx, m, doc); err != nil {
		return "", fmt.Errorf("load project: %w", err)
	}
	if err := m.ApplyUpdate(ctx, pending, 0, 1); err != nil {
		return "", err
	}

	rows, err := m.ReadAllTasks(ctx)
	if err != nil {
		return "", err
	}
	values, err := m.ReadCustomValues(ctx)
	if err != nil {
		return "", err
	}
	for i := range rows {
		rows[i].CustomValues = values[rows[i].UID]
	}
	deps, err := m.ReadDependencies(ctx)
	if err != nil {
		return "", err
	}

	doc.ApplyTasks(rows)
	doc.ApplyDependencies(deps)
	return doc.String(), nil
}

// load fills m with the tasks, dependencies and custom values of doc.
// Computed custom properties are left out: rewriting the file only needs
// stored values.
func load(ctx context.Context, m *mirror.Mirror, doc *project.Document) error {
	if err := m.Init(ctx); err != nil {
		return err
	}
	var stored []project.CustomPropertyDef
	for _, def := range doc.CustomPropertyDefs() {
		if !def.Computed() {
			stored = append(stored, def)
		}
	}
	if err := m.OnCustomColumnChange(ctx, stored); err != nil {
		return err
	}

	tasks := doc.Tasks()
	for _, t := range tasks {
		if err := m.InsertTask(ctx, t); err != nil {
			return err
		}
	}
	for _, d := range doc.Dependencies() {
		if err := m.InsertTaskDependency(ctx, d); err != nil {
			return err
		}
	}
	for _, t := range tasks {
		if len(t.CustomValues) == 0 {
			continue
		}
		if err := m.CreateTaskUpdateBuilder(t).SetCustomProperties(nil, t.CustomValues).Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}
