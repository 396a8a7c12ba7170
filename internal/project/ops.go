package project

import (
	"sort"
	"strconv"

	"github.com/ganttproject/colloboque/internal/xlog"
)

// Mirror table and column names.
const (
	TableTask             = "task"
	TableTaskDependency   = "taskdependency"
	TableTaskCustomColumn = "taskcustomcolumn"

	ColUID                 = "uid"
	ColNum                 = "num"
	ColName                = "name"
	ColColor               = "color"
	ColShape               = "shape"
	ColIsMilestone         = "is_milestone"
	ColIsProjectTask       = "is_project_task"
	ColStartDate           = "start_date"
	ColDuration            = "duration"
	ColCompletion          = "completion"
	ColEarliestStartDate   = "earliest_start_date"
	ColThirdDateConstraint = "third_date_constraint"
	ColPriority            = "priority"
	ColWebLink             = "web_link"
	ColCostManualValue     = "cost_manual_value"
	ColIsCostCalculated    = "is_cost_calculated"
	ColNotes               = "notes"

	ColDependeeUID  = "dependee_uid"
	ColDependantUID = "dependant_uid"
	ColType         = "type"
	ColLag          = "lag"
	ColHardness     = "hardness"

	ColColumnID    = "column_id"
	ColColumnValue = "column_value"
)

// TaskColumns lists the task table's fixed columns in read order.
var TaskColumns = []string{
	ColUID, ColNum, ColName, ColColor, ColShape, ColIsMilestone, ColIsProjectTask,
	ColStartDate, ColDuration, ColCompletion, ColEarliestStartDate, ColThirdDateConstraint,
	ColPriority, ColWebLink, ColCostManualValue, ColIsCostCalculated, ColNotes,
}

// Text returns v, or NULL for "".
func Text(v string) xlog.Value {
	if v == "" {
		return xlog.Null
	}
	return xlog.V(v)
}

// Bool renders a boolean column value.
func Bool(v bool) xlog.Value {
	return xlog.V(strconv.FormatBool(v))
}

// Int renders an integer column value.
func Int(v int) xlog.Value {
	return xlog.V(strconv.Itoa(v))
}

// TaskValues maps every fixed column of t to its value.
func TaskValues(t Task) xlog.Values {
	vs := xlog.Values{
		ColUID:                 xlog.V(t.UID),
		ColNum:                 Int(t.Num),
		ColName:                xlog.V(t.Name),
		ColColor:               Text(t.Color),
		ColShape:               Text(t.Shape),
		ColIsMilestone:         Bool(t.Milestone),
		ColIsProjectTask:       Bool(t.ProjectTask),
		ColStartDate:           xlog.V(t.Start),
		ColDuration:            Int(t.Duration),
		ColCompletion:          Int(t.Completion),
		ColEarliestStartDate:   Text(t.EarliestStart),
		ColThirdDateConstraint: xlog.Null,
		ColPriority:            Text(t.Priority),
		ColWebLink:             Text(t.WebLink),
		ColCostManualValue:     Text(t.Cost.ManualValue),
		ColIsCostCalculated:    xlog.Null,
		ColNotes:               Text(t.Notes),
	}
	if t.ThirdDateConstraint != nil {
		vs[ColThirdDateConstraint] = Int(*t.ThirdDateConstraint)
	}
	if t.Cost.Calculated != nil {
		vs[ColIsCostCalculated] = Bool(*t.Cost.Calculated)
	}
	return vs
}

// InsertTaskOp inserts t into the task table.
func InsertTaskOp(t Task) xlog.Insert {
	return xlog.Insert{Table: TableTask, Values: TaskValues(t)}
}

// DeleteTaskOp deletes the task with the given uid.
func DeleteTaskOp(uid string) xlog.Delete {
	return xlog.Delete{Table: TableTask, BinaryConds: []xlog.BinaryCond{xlog.Eq(ColUID, uid)}}
}

// InsertDependencyOp inserts d into the dependency table.
func InsertDependencyOp(d Dependency) xlog.Insert {
	return xlog.Insert{Table: TableTaskDependency, Values: xlog.Values{
		ColDependeeUID:  xlog.V(d.DependeeUID),
		ColDependantUID: xlog.V(d.DependantUID),
		ColType:         xlog.V(d.Type),
		ColLag:          Int(d.Lag),
		ColHardness:     xlog.V(d.Hardness),
	}}
}

// DeleteDependencyOp deletes the dependency between the tasks of d.
func DeleteDependencyOp(d Dependency) xlog.Delete {
	return xlog.Delete{Table: TableTaskDependency, BinaryConds: []xlog.BinaryCond{
		xlog.Eq(ColDependantUID, d.DependantUID),
		xlog.Eq(ColDependeeUID, d.DependeeUID),
	}}
}

// CustomValueOps replaces a task's custom property values: one Delete of
// every value not in values, then one Merge per value in id order.
func CustomValueOps(uid string, values map[string]string) []xlog.Operation {
	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ops := []xlog.Operation{xlog.Delete{
		Table:       TableTaskCustomColumn,
		BinaryConds: []xlog.BinaryCond{xlog.Eq(ColUID, uid)},
		RangeConds:  []xlog.RangeCond{{Column: ColColumnID, Pred: xlog.NotIn, Values: ids}},
	}}
	for _, id := range ids {
		ops = append(ops, xlog.Merge{
			Table: TableTaskCustomColumn,
			BinaryConds: []xlog.BinaryCond{
				xlog.Eq(ColUID, uid),
				xlog.Eq(ColColumnID, id),
			},
			WhenMatchedUpdate: xlog.Values{ColColumnValue: xlog.V(values[id])},
			WhenNotMatchedInsert: xlog.Values{
				ColUID:         xlog.V(uid),
				ColColumnID:    xlog.V(id),
				ColColumnValue: xlog.V(values[id]),
			},
		})
	}
	return ops
}
