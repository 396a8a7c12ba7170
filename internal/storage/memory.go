package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ganttproject/colloboque/internal/project"
	"github.com/ganttproject/colloboque/internal/xlog"
)

// Memory keeps logs and snapshots in process memory. Records are validated
// but never executed: there are no project tables, so the project state is
// only observable through snapshots and the log.
type Memory struct {
	mu       sync.Mutex
	projects map[string]*memoryProject
}

type memoryProject struct {
	logs      map[int64][]xlog.Record
	snapshots map[int64]string
}

var _ Storage = (*Memory)(nil)

// NewMemory returns an empty in-memory storage.
func NewMemory() *Memory {
	return &Memory{projects: make(map[string]*memoryProject)}
}

func (m *Memory) InitProject(ctx context.Context, refid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[refid] = &memoryProject{
		logs:      make(map[int64][]xlog.Record),
		snapshots: make(map[int64]string),
	}
	return nil
}

// get returns the project, provisioning it on first use like Postgres
// does. Callers hold mu.
func (m *Memory) get(refid string) *memoryProject {
	p, ok := m.projects[refid]
	if !ok {
		p = &memoryProject{logs: make(map[int64][]xlog.Record), snapshots: make(map[int64]string)}
		m.projects[refid] = p
	}
	return p
}

func (m *Memory) GetTransactionLogs(ctx context.Context, refid string, baseTxnID int64) ([]xlog.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.between(refid, baseTxnID, func(int64) bool { return true }), nil
}

func (m *Memory) GetTransactionLogsBetween(ctx context.Context, refid string, after, through int64) ([]xlog.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.between(refid, after, func(id int64) bool { return id <= through }), nil
}

func (m *Memory) between(refid string, after int64, keep func(int64) bool) []xlog.Record {
	p := m.get(refid)
	var ids []int64
	for id := range p.logs {
		if id > after && keep(id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	var out []xlog.Record
	for _, id := range ids {
		out = append(out, p.logs[id]...)
	}
	return out
}

func (m *Memory) InsertXlogs(ctx context.Context, refid string, txnID int64, recs []xlog.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.get(refid)
	if _, ok := p.logs[txnID]; ok {
		return wrap("insert xlogs", refid, fmt.Errorf("transaction %d already logged", txnID))
	}
	p.logs[txnID] = slices.Clone(recs)
	return nil
}

// CommitXlogs validates recs and logs them as txnID.
func (m *Memory) CommitXlogs(ctx context.Context, refid string, txnID int64, recs []xlog.Record) error {
	for i, rec := range recs {
		if err := rec.Validate(); err != nil {
			return wrap("commit xlogs", refid, fmt.Errorf("record %d: %w", i, err))
		}
	}
	return m.InsertXlogs(ctx, refid, txnID, recs)
}

// InsertTasks is a no-op; Memory has no project tables.
func (m *Memory) InsertTasks(ctx context.Context, refid string, tasks []project.Task) error {
	return nil
}

// InsertDependencies is a no-op; Memory has no project tables.
func (m *Memory) InsertDependencies(ctx context.Context, refid string, deps []project.Dependency) error {
	return nil
}

func (m *Memory) GetProjectSnapshot(ctx context.Context, refid string, baseTxnID *int64) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[refid]
	if !ok {
		return nil, nil
	}
	if baseTxnID != nil {
		xml, ok := p.snapshots[*baseTxnID]
		if !ok {
			return nil, nil
		}
		return &Snapshot{BaseTxnID: *baseTxnID, ProjectXML: xml}, nil
	}

	var latest *Snapshot
	for id, xml := range p.snapshots {
		if latest == nil || id > latest.BaseTxnID {
			latest = &Snapshot{BaseTxnID: id, ProjectXML: xml}
		}
	}
	return latest, nil
}

func (m *Memory) InsertActualSnapshot(ctx context.Context, refid string, txnID int64, projectXML string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.get(refid)
	if _, ok := p.snapshots[txnID]; ok {
		return wrap("insert snapshot", refid, fmt.Errorf("snapshot %d already stored", txnID))
	}
	p.snapshots[txnID] = projectXML
	return nil
}

func (m *Memory) LatestTxnID(ctx context.Context, refid string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest int64
	for id := range m.get(refid).logs {
		latest = max(latest, id)
	}
	return latest, nil
}
