package server

import (
	"context"

	"github.com/ganttproject/colloboque/internal/merge"
	"github.com/ganttproject/colloboque/internal/storage"
	"github.com/ganttproject/colloboque/internal/xlog"
)

// SnapshotDatabases creates disposable databases holding one project state.
type SnapshotDatabases interface {
	CreateSnapshotDatabase(ctx context.Context, projectXML string) (*storage.TempDatabase, error)
}

// SnapshotMerger runs the merge engine on a temporary copy of the client's
// base state.
type SnapshotMerger struct {
	Engine    *merge.Engine
	Databases SnapshotDatabases
}

var _ Merger = (*SnapshotMerger)(nil)

func (m *SnapshotMerger) TryMerge(ctx context.Context, baseXML string, server, client []xlog.Record) (merge.Result, error) {
	tmp, err := m.Databases.CreateSnapshotDatabase(ctx, baseXML)
	if err != nil {
		return merge.Result{}, err
	}
	defer tmp.Close(context.WithoutCancel(ctx))

	return m.Engine.TryMergeConcurrentUpdates(ctx, merge.NewSQLDatabase(tmp.DB), server, client)
}
