package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGolden_RenameTask(t *testing.T) {
	result, err := RunWithGolden(t, loadScenario(t, "rename_task"))
	require.NoError(t, err)
	assert.True(t, result.Pass)
}

func TestGolden_AddTasks(t *testing.T) {
	result, err := RunWithGolden(t, loadScenario(t, "add_tasks"))
	require.NoError(t, err)
	assert.True(t, result.Pass)
}
