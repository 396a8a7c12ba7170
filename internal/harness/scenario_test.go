package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/rename_task.yaml")
	require.NoError(t, err)

	assert.Equal(t, "rename_task", s.Name)
	assert.Contains(t, s.Project, `uid="qwerty"`, "project_file is read relative to the scenario")
	require.Len(t, s.Steps, 3)
	assert.Equal(t, int64(1), s.Steps[2].Base)
	require.NotNil(t, s.Steps[1].Expect)
	assert.Equal(t, "Invalid transaction id 0, expected 1", s.Steps[1].Expect.Message)
	assert.Equal(t, map[string]string{"name": "Task3", "duration": "25", "completion": "85"}, s.Assertions[0].Expect)
}

func TestLoadScenario_InlineProject(t *testing.T) {
	path := writeScenario(t, `
name: inline
description: inline project
project: |
  <project><tasks/></project>
steps:
  - user: u
    base: 0
    records: []
`)
	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "<project><tasks/></project>\n", s.Project)
}

func TestLoadScenario_Errors(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown field",
			content: "name: x\ndescription: d\nproject: p\nstep: []\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "missing name",
			content: "description: d\nproject: p\nsteps: [{user: u, records: []}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing project",
			content: "name: x\ndescription: d\nsteps: [{user: u, records: []}]\n",
			wantErr: "project or project_file is required",
		},
		{
			name:    "no steps",
			content: "name: x\ndescription: d\nproject: p\nsteps: []\n",
			wantErr: "steps list is required",
		},
		{
			name:    "step without records",
			content: "name: x\ndescription: d\nproject: p\nsteps: [{user: u}]\n",
			wantErr: "steps[0]: records is required",
		},
		{
			name:    "unknown assertion",
			content: "name: x\ndescription: d\nproject: p\nsteps: [{user: u, records: []}]\nassertions: [{type: magic}]\n",
			wantErr: `unknown assertion type "magic"`,
		},
		{
			name:    "unknown task field",
			content: "name: x\ndescription: d\nproject: p\nsteps: [{user: u, records: []}]\nassertions: [{type: task, uid: a, expect: {colour: red}}]\n",
			wantErr: `unknown task field "colour"`,
		},
		{
			name:    "dependency without ends",
			content: "name: x\ndescription: d\nproject: p\nsteps: [{user: u, records: []}]\nassertions: [{type: dependency, dependee: a}]\n",
			wantErr: "dependee and dependant are required",
		},
		{
			name:    "missing project file",
			content: "name: x\ndescription: d\nproject_file: nowhere.gan\nsteps: [{user: u, records: []}]\n",
			wantErr: "failed to read project file",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadScenario_CustomFieldAllowed(t *testing.T) {
	path := writeScenario(t, `
name: x
description: d
project: p
steps: [{user: u, records: []}]
assertions: [{type: task, uid: a, expect: {"custom:tpc0": v}}]
`)
	_, err := LoadScenario(path)
	assert.NoError(t, err)
}
