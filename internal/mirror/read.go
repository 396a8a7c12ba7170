package mirror

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/ganttproject/colloboque/internal/project"
	"github.com/ganttproject/colloboque/internal/xlog"
)

// FetchTransactions returns up to limit logged local transactions starting
// at local txn id start, oldest first. Each transaction is one record.
func (m *Mirror) FetchTransactions(ctx context.Context, start, limit int) ([]xlog.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs, err := m.fetchLocked(ctx, start, start+limit)
	return recs, wrap("fetch transactions", err)
}

// OutgoingTransactions returns the local transactions committed since the
// mirror moved to its current base txn.
func (m *Mirror) OutgoingTransactions(ctx context.Context) ([]xlog.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.syncRanges[m.baseTxnID]
	if !ok || r.end <= r.start {
		return nil, nil
	}
	recs, err := m.fetchLocked(ctx, r.start, r.end)
	return recs, wrap("outgoing transactions", err)
}

// fetchLocked reads local txns in [from, to).
func (m *Mirror) fetchLocked(ctx context.Context, from, to int) ([]xlog.Record, error) {
	if to <= from {
		return nil, nil
	}
	db, err := m.ensureOpen(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT local_txn_id, operation_dto_json
		FROM logrecord
		WHERE local_txn_id >= ? AND local_txn_id < ?
		ORDER BY local_txn_id, id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query log: %w", err)
	}
	defer rows.Close()

	var out []xlog.Record
	last := -1
	for rows.Next() {
		var txnID int
		var data string
		if err := rows.Scan(&txnID, &data); err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
		}
		op, err := xlog.UnmarshalOperation([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("decode local txn %d: %w", txnID, err)
		}
		if txnID != last {
			out = append(out, xlog.Record{})
			last = txnID
		}
		out[len(out)-1].Operations = append(out[len(out)-1].Operations, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return out, nil
}

// ReadAllTasks returns every task ordered by num. ParentUID and
// CustomValues are left empty; see ReadCustomValues.
func (m *Mirror) ReadAllTasks(ctx context.Context) ([]project.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks, err := m.readTasks(ctx)
	return tasks, wrap("read tasks", err)
}

func (m *Mirror) readTasks(ctx context.Context) ([]project.Task, error) {
	db, err := m.ensureOpen(ctx)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + strings.Join(project.TaskColumns, ", ") + " FROM task ORDER BY num, uid"
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []project.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// scanTask reads one row selected in project.TaskColumns order.
func scanTask(rows *sql.Rows) (project.Task, error) {
	var (
		t                                           project.Task
		color, shape, milestone, projectTask        sql.NullString
		completion, thirdDate                       sql.NullInt64
		earliest, priority, webLink, cost, costCalc sql.NullString
		notes                                       sql.NullString
	)
	err := rows.Scan(
		&t.UID, &t.Num, &t.Name, &color, &shape, &milestone, &projectTask,
		&t.Start, &t.Duration, &completion, &earliest, &thirdDate,
		&priority, &webLink, &cost, &costCalc, &notes,
	)
	if err != nil {
		return project.Task{}, fmt.Errorf("scan task: %w", err)
	}

	t.Color = color.String
	t.Shape = shape.String
	t.Milestone = parseBool(milestone.String)
	t.ProjectTask = parseBool(projectTask.String)
	t.Completion = int(completion.Int64)
	t.EarliestStart = earliest.String
	if thirdDate.Valid {
		v := int(thirdDate.Int64)
		t.ThirdDateConstraint = &v
	}
	t.Priority = priority.String
	t.WebLink = webLink.String
	t.Cost.ManualValue = cost.String
	if costCalc.Valid {
		v := parseBool(costCalc.String)
		t.Cost.Calculated = &v
	}
	t.Notes = notes.String
	return t, nil
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

// ReadCustomValues returns the stored custom property values keyed by task
// uid, then by property id.
func (m *Mirror) ReadCustomValues(ctx context.Context) (map[string]map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	db, err := m.ensureOpen(ctx)
	if err != nil {
		return nil, wrap("read custom values", err)
	}
	rows, err := db.QueryContext(ctx, `
		SELECT uid, column_id, column_value
		FROM taskcustomcolumn
		ORDER BY uid, column_id
	`)
	if err != nil {
		return nil, wrap("read custom values", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]string)
	for rows.Next() {
		var uid, id string
		var value sql.NullString
		if err := rows.Scan(&uid, &id, &value); err != nil {
			return nil, wrap("read custom values", err)
		}
		if out[uid] == nil {
			out[uid] = make(map[string]string)
		}
		out[uid][id] = value.String
	}
	return out, wrap("read custom values", rows.Err())
}

// FindTasks returns the nums of tasks matching the SQL condition where,
// which may reference custom property columns by their cp_ name.
func (m *Mirror) FindTasks(ctx context.Context, where string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	db, err := m.ensureOpen(ctx)
	if err != nil {
		return nil, wrap("find tasks", err)
	}
	rows, err := db.QueryContext(ctx, "SELECT num FROM task WHERE "+where+" ORDER BY num")
	if err != nil {
		return nil, wrap("find tasks", err)
	}
	defer rows.Close()

	var nums []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, wrap("find tasks", err)
		}
		nums = append(nums, n)
	}
	return nums, wrap("find tasks", rows.Err())
}

// ReadDependencies returns every dependency ordered by dependee, then
// dependant.
func (m *Mirror) ReadDependencies(ctx context.Context) ([]project.Dependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	db, err := m.ensureOpen(ctx)
	if err != nil {
		return nil, wrap("read dependencies", err)
	}
	rows, err := db.QueryContext(ctx, `
		SELECT dependee_uid, dependant_uid, type, lag, hardness
		FROM taskdependency
		ORDER BY dependee_uid, dependant_uid
	`)
	if err != nil {
		return nil, wrap("read dependencies", err)
	}
	defer rows.Close()

	var deps []project.Dependency
	for rows.Next() {
		var d project.Dependency
		if err := rows.Scan(&d.DependeeUID, &d.DependantUID, &d.Type, &d.Lag, &d.Hardness); err != nil {
			return nil, wrap("read dependencies", err)
		}
		deps = append(deps, d)
	}
	return deps, wrap("read dependencies", rows.Err())
}
