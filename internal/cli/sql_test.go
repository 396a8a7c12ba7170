package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const renameRecordsJSON = `[
  {"operations": [
    {"type": "update", "table": "task",
     "binaryConditions": [{"column": "uid", "pred": "EQ", "value": "qwerty"}],
     "newValues": {"name": "Task2"}}
  ]}
]`

func writeRecords(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSQLCommand_SQLite(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewSQLCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--dialect", "sqlite", writeRecords(t, `[
  {"operations": [
    {"type": "delete", "table": "task", "binaryConditions": [{"column": "uid", "pred": "EQ", "value": "a"}]}
  ]},
  {"operations": []}
]`)})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "-- record 0\nDELETE FROM task WHERE uid = 'a';\n-- record 1\n", buf.String())
}

func TestSQLCommand_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewSQLCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{writeRecords(t, renameRecordsJSON)})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string    `json:"status"`
		Data   SQLResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "postgres", resp.Data.Dialect)
	assert.Equal(t, [][]string{{"UPDATE task SET name = 'Task2' WHERE uid = 'qwerty'"}}, resp.Data.Statements)
}

func TestSQLCommand_Stdin(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewSQLCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetIn(strings.NewReader(renameRecordsJSON))
	cmd.SetArgs([]string{"-"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "UPDATE task SET name = 'Task2'")
}

func TestSQLCommand_InvalidRecords(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewSQLCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{writeRecords(t, `[{"operations": [{"type": "upsert", "table": "task"}]}]`)})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [E001]: failed to read records")
}

func TestSQLCommand_UnknownDialect(t *testing.T) {
	cmd := NewSQLCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--dialect", "oracle", writeRecords(t, renameRecordsJSON)})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSQLCommand_MissingFile(t *testing.T) {
	cmd := NewSQLCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.json")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
