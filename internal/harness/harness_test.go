package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_Scenarios(t *testing.T) {
	for _, name := range []string{"rename_task", "add_tasks", "dependency_and_delete", "empty_transaction"} {
		t.Run(name, func(t *testing.T) {
			result, err := Run(context.Background(), loadScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_StepResults(t *testing.T) {
	result, err := Run(context.Background(), loadScenario(t, "rename_task"))
	require.NoError(t, err)

	assert.Equal(t, []StepResult{
		{Step: 0, TrackingCode: "rename_task-1", Committed: true, NewBase: 1},
		{Step: 1, TrackingCode: "rename_task-2", Message: "Invalid transaction id 0, expected 1"},
		{Step: 2, TrackingCode: "rename_task-3", Committed: true, NewBase: 2},
	}, result.Steps)
	assert.Equal(t, 2, result.LogRecords)
}

func TestRun_FailedExpectations(t *testing.T) {
	s := loadScenario(t, "rename_task")
	s.Steps[0].Expect = &StepExpect{Committed: true, NewBase: 5}
	s.Steps[1].Expect = &StepExpect{Committed: true}
	s.Assertions = []Assertion{{Type: AssertTask, UID: "qwerty", Expect: map[string]string{"name": "Task1"}}}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Equal(t, "steps[0]: expected new base 5, got 1", result.Errors[0])
	assert.Contains(t, result.Errors[1], "steps[1]: expected committed=true, got committed=false")
	assert.Contains(t, result.Errors[2], `name="Task3" (want "Task1")`)
}

func TestRun_InvalidRecords(t *testing.T) {
	s := loadScenario(t, "rename_task")
	s.Steps[0].Records = []map[string]any{{"operations": []any{map[string]any{"type": "upsert", "table": "task"}}}}

	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps[0]")
}

func TestRun_InvalidProject(t *testing.T) {
	s := loadScenario(t, "rename_task")
	s.Project = "<project"

	_, err := Run(context.Background(), s)
	assert.ErrorContains(t, err, "failed to initialize project")
}
