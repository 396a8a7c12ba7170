package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganttproject/colloboque/internal/xlog"
)

func TestTaskValues(t *testing.T) {
	constraint := 2
	calculated := true
	vs := TaskValues(Task{
		Num:                 4,
		UID:                 "u",
		Name:                "N",
		Start:               "2024-01-01",
		Duration:            3,
		ThirdDateConstraint: &constraint,
		Cost:                Cost{ManualValue: "1.5", Calculated: &calculated},
	})

	assert.Len(t, vs, len(TaskColumns))
	assert.Equal(t, xlog.V("4"), vs[ColNum])
	assert.Equal(t, xlog.V("false"), vs[ColIsMilestone])
	assert.Equal(t, xlog.V("2"), vs[ColThirdDateConstraint])
	assert.Equal(t, xlog.V("true"), vs[ColIsCostCalculated])
	assert.Equal(t, xlog.V("1.5"), vs[ColCostManualValue])
	assert.True(t, vs[ColColor].IsNull())
	assert.True(t, vs[ColNotes].IsNull())
	for _, col := range TaskColumns {
		_, ok := vs[col]
		assert.True(t, ok, col)
	}
}

func TestCustomValueOps(t *testing.T) {
	ops := CustomValueOps("u", map[string]string{"tpc1": "b", "tpc0": "a"})
	require.Len(t, ops, 3)

	del, ok := ops[0].(xlog.Delete)
	require.True(t, ok)
	assert.Equal(t, []string{"tpc0", "tpc1"}, del.RangeConds[0].Values)
	assert.Equal(t, xlog.NotIn, del.RangeConds[0].Pred)

	merge, ok := ops[1].(xlog.Merge)
	require.True(t, ok)
	assert.Equal(t, xlog.V("a"), merge.WhenNotMatchedInsert[ColColumnValue])

	for _, op := range ops {
		require.NoError(t, xlog.Validate(op))
	}
}

func TestCustomValueOpsEmpty(t *testing.T) {
	ops := CustomValueOps("u", nil)
	require.Len(t, ops, 1)
	del := ops[0].(xlog.Delete)
	assert.Empty(t, del.RangeConds[0].Values)
}
