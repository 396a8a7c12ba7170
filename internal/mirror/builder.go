package mirror

import (
	"context"
	"strconv"

	"github.com/ganttproject/colloboque/internal/project"
	"github.com/ganttproject/colloboque/internal/xlog"
)

// TaskUpdateBuilder collects field changes to one task. Each setter takes
// the old and the new value; Commit emits one Update for the new values and
// one for the old values as its undo.
type TaskUpdateBuilder struct {
	m   *Mirror
	uid string

	newValues xlog.Values
	oldValues xlog.Values

	customSet bool
	customOld map[string]string
	customNew map[string]string
}

// CreateTaskUpdateBuilder starts an update of task t.
func (m *Mirror) CreateTaskUpdateBuilder(t project.Task) *TaskUpdateBuilder {
	return &TaskUpdateBuilder{
		m:         m,
		uid:       t.UID,
		newValues: xlog.Values{},
		oldValues: xlog.Values{},
	}
}

func (b *TaskUpdateBuilder) set(column string, oldValue, newValue xlog.Value) *TaskUpdateBuilder {
	b.newValues[column] = newValue
	b.oldValues[column] = oldValue
	return b
}

func (b *TaskUpdateBuilder) SetName(oldValue, newValue string) *TaskUpdateBuilder {
	return b.set(project.ColName, xlog.V(oldValue), xlog.V(newValue))
}

func (b *TaskUpdateBuilder) SetMilestone(oldValue, newValue bool) *TaskUpdateBuilder {
	return b.set(project.ColIsMilestone, project.Bool(oldValue), project.Bool(newValue))
}

func (b *TaskUpdateBuilder) SetPriority(oldValue, newValue string) *TaskUpdateBuilder {
	return b.set(project.ColPriority, project.Text(oldValue), project.Text(newValue))
}

// SetStart takes dates as yyyy-mm-dd.
func (b *TaskUpdateBuilder) SetStart(oldValue, newValue string) *TaskUpdateBuilder {
	return b.set(project.ColStartDate, xlog.V(oldValue), xlog.V(newValue))
}

// SetEnd is accepted for interface parity. The end date is derived from
// start and duration and has no column.
func (b *TaskUpdateBuilder) SetEnd(oldValue, newValue string) *TaskUpdateBuilder {
	return b
}

func (b *TaskUpdateBuilder) SetDuration(oldValue, newValue int) *TaskUpdateBuilder {
	return b.set(project.ColDuration, project.Int(oldValue), project.Int(newValue))
}

func (b *TaskUpdateBuilder) SetCompletionPercentage(oldValue, newValue int) *TaskUpdateBuilder {
	return b.set(project.ColCompletion, project.Int(oldValue), project.Int(newValue))
}

func (b *TaskUpdateBuilder) SetShape(oldValue, newValue string) *TaskUpdateBuilder {
	return b.set(project.ColShape, project.Text(oldValue), project.Text(newValue))
}

func (b *TaskUpdateBuilder) SetColor(oldValue, newValue string) *TaskUpdateBuilder {
	return b.set(project.ColColor, project.Text(oldValue), project.Text(newValue))
}

func (b *TaskUpdateBuilder) SetCost(oldValue, newValue project.Cost) *TaskUpdateBuilder {
	b.set(project.ColCostManualValue, project.Text(oldValue.ManualValue), project.Text(newValue.ManualValue))
	return b.set(project.ColIsCostCalculated, optionalBool(oldValue.Calculated), optionalBool(newValue.Calculated))
}

func (b *TaskUpdateBuilder) SetNotes(oldValue, newValue string) *TaskUpdateBuilder {
	return b.set(project.ColNotes, project.Text(oldValue), project.Text(newValue))
}

func (b *TaskUpdateBuilder) SetWebLink(oldValue, newValue string) *TaskUpdateBuilder {
	return b.set(project.ColWebLink, project.Text(oldValue), project.Text(newValue))
}

func (b *TaskUpdateBuilder) SetProjectTask(oldValue, newValue bool) *TaskUpdateBuilder {
	return b.set(project.ColIsProjectTask, project.Bool(oldValue), project.Bool(newValue))
}

// SetCritical is a no-op: criticality is computed by the scheduler.
func (b *TaskUpdateBuilder) SetCritical(oldValue, newValue bool) *TaskUpdateBuilder {
	return b
}

func (b *TaskUpdateBuilder) SetThirdDate(oldValue, newValue string) *TaskUpdateBuilder {
	return b.set(project.ColEarliestStartDate, project.Text(oldValue), project.Text(newValue))
}

// SetCustomProperties replaces the task's custom property values.
func (b *TaskUpdateBuilder) SetCustomProperties(oldValues, newValues map[string]string) *TaskUpdateBuilder {
	b.customSet = true
	b.customOld = oldValues
	b.customNew = newValues
	return b
}

// Commit emits the collected changes as one local transaction, or adds them
// to the open Txn. A builder with no changes commits nothing.
func (b *TaskUpdateBuilder) Commit(ctx context.Context) error {
	var do, undo []xlog.Operation
	if len(b.newValues) > 0 {
		cond := []xlog.BinaryCond{xlog.Eq(project.ColUID, b.uid)}
		do = append(do, xlog.Update{Table: project.TableTask, BinaryConds: cond, NewValues: b.newValues})
		undo = append(undo, xlog.Update{Table: project.TableTask, BinaryConds: cond, NewValues: b.oldValues})
	}
	if b.customSet {
		do = append(do, project.CustomValueOps(b.uid, b.customNew)...)
		undo = append(undo, project.CustomValueOps(b.uid, b.customOld)...)
	}
	if len(do) == 0 {
		return nil
	}

	stmts, err := newStatements(do)
	if err != nil {
		return wrap("update task "+b.uid, err)
	}
	undoStmts, err := newStatements(undo)
	if err != nil {
		return wrap("update task "+b.uid, err)
	}

	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	return wrap("update task "+b.uid, b.m.withLog(ctx, stmts, undoStmts))
}

func optionalBool(v *bool) xlog.Value {
	if v == nil {
		return xlog.Null
	}
	return xlog.V(strconv.FormatBool(*v))
}
