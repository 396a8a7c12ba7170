package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "colloboque", cmd.Use)
	assert.Contains(t, cmd.Long, "operation logs")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"sql"}, {"apply"}, {"merge"}, {"commit"},
		{"project", "init"}, {"project", "logs"}, {"project", "snapshot"}, {"project", "xml"},
	}

	for _, path := range commands {
		t.Run(filepath.Join(path...), func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestSQLCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	sqlCmd, _, err := cmd.Find([]string{"sql"})
	require.NoError(t, err)

	dialectFlag := sqlCmd.Flags().Lookup("dialect")
	require.NotNil(t, dialectFlag)
	assert.Equal(t, "postgres", dialectFlag.DefValue)
}

func TestApplyCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	applyCmd, _, err := cmd.Find([]string{"apply"})
	require.NoError(t, err)

	projectFlag := applyCmd.Flags().Lookup("project")
	require.NotNil(t, projectFlag)
	assert.Equal(t, "p", projectFlag.Shorthand)
	require.NotNil(t, applyCmd.Flags().Lookup("diff"))
	require.NotNil(t, applyCmd.Flags().Lookup("output"))
}

func TestExecute_InvalidFormat(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}

	code := Execute([]string{"--format", "xml", "sql", "records.json"}, stdout, stderr)
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr.String(), `invalid format "xml"`)
}

func TestExecute_MissingConfigFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}

	code := Execute([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "sql", "records.json"}, stdout, stderr)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr.String(), "failed to load config")
}

func TestExecute_SQL(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := writeRecords(t, renameRecordsJSON)
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}

	code := Execute([]string{"sql", path}, stdout, stderr)
	require.Equal(t, ExitSuccess, code, stderr.String())
	assert.Equal(t, "-- record 0\nUPDATE task SET name = 'Task2' WHERE uid = 'qwerty';\n", stdout.String())
}
