package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganttproject/colloboque/internal/project"
	"github.com/ganttproject/colloboque/internal/testutil"
	"github.com/ganttproject/colloboque/internal/xlog"
)

// createTestStorage opens the test database with a DDL cloner and returns a
// refid whose schema is dropped when the test ends.
func createTestStorage(t *testing.T) (*Postgres, string) {
	t.Helper()
	dsn := testutil.PostgresDSN(t)
	ctx := context.Background()

	p, err := Open(ctx, dsn, WithCloner(DDLCloner{}))
	require.NoError(t, err)
	refid := "test-" + uuid.NewString()
	t.Cleanup(func() {
		p.db.ExecContext(ctx, "DROP SCHEMA IF EXISTS "+quoteIdent(SchemaName(refid))+" CASCADE")
		p.Close()
	})
	return p, refid
}

func renameOp(uid, name string) xlog.Update {
	return xlog.Update{
		Table:       project.TableTask,
		BinaryConds: []xlog.BinaryCond{xlog.Eq(project.ColUID, uid)},
		NewValues:   xlog.Values{project.ColName: xlog.V(name)},
	}
}

func TestPostgres_SchemaProvisionedLazily(t *testing.T) {
	p, refid := createTestStorage(t)
	ctx := context.Background()

	schema, err := p.GetOrCreateProjectSchema(ctx, refid)
	require.NoError(t, err)
	assert.Equal(t, SchemaName(refid), schema)

	exists, err := schemaExists(ctx, p.db, schema)
	require.NoError(t, err)
	assert.True(t, exists)

	again, err := p.GetOrCreateProjectSchema(ctx, refid)
	require.NoError(t, err)
	assert.Equal(t, schema, again)
}

func TestPostgres_CommitXlogsAndLogs(t *testing.T) {
	p, refid := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, p.InsertTasks(ctx, refid, []project.Task{
		{Num: 1, UID: "qwerty", Name: "Task1", Start: "2024-01-01", Duration: 1,
			CustomValues: map[string]string{"tpc0": "x"}},
	}))

	latest, err := p.LatestTxnID(ctx, refid)
	require.NoError(t, err)
	assert.Equal(t, int64(0), latest)

	first := xlog.NewRecord(renameOp("qwerty", "Task2"))
	second := xlog.NewRecord(renameOp("qwerty", "Task3"))
	require.NoError(t, p.CommitXlogs(ctx, refid, 1, []xlog.Record{first}))
	require.NoError(t, p.CommitXlogs(ctx, refid, 2, []xlog.Record{second}))

	latest, err = p.LatestTxnID(ctx, refid)
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest)

	all, err := p.GetTransactionLogs(ctx, refid, 0)
	require.NoError(t, err)
	assert.Equal(t, []xlog.Record{first, second}, all)

	tail, err := p.GetTransactionLogs(ctx, refid, 1)
	require.NoError(t, err)
	assert.Equal(t, []xlog.Record{second}, tail)

	head, err := p.GetTransactionLogsBetween(ctx, refid, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []xlog.Record{first}, head)

	var name string
	schema := quoteIdent(SchemaName(refid))
	require.NoError(t, p.db.QueryRowContext(ctx, "SELECT name FROM "+schema+".task WHERE uid = 'qwerty'").Scan(&name))
	assert.Equal(t, "Task3", name)
}

func TestPostgres_CommitXlogsIsAtomic(t *testing.T) {
	p, refid := createTestStorage(t)
	ctx := context.Background()

	bad := xlog.NewRecord(
		renameOp("qwerty", "Task2"),
		xlog.Insert{Table: "nosuchtable", Values: xlog.Values{"a": xlog.V("1")}},
	)
	err := p.CommitXlogs(ctx, refid, 1, []xlog.Record{bad})
	var sErr *Error
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, "commit xlogs", sErr.Op)

	logs, err := p.GetTransactionLogs(ctx, refid, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestPostgres_Snapshots(t *testing.T) {
	p, refid := createTestStorage(t)
	ctx := context.Background()

	none, err := p.GetProjectSnapshot(ctx, refid, nil)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, p.InsertActualSnapshot(ctx, refid, 0, "<project/>"))
	require.NoError(t, p.InsertActualSnapshot(ctx, refid, 3, "<project name=\"3\"/>"))

	latest, err := p.GetProjectSnapshot(ctx, refid, nil)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, Snapshot{BaseTxnID: 3, ProjectXML: "<project name=\"3\"/>"}, *latest)

	zero := int64(0)
	exact, err := p.GetProjectSnapshot(ctx, refid, &zero)
	require.NoError(t, err)
	require.NotNil(t, exact)
	assert.Equal(t, "<project/>", exact.ProjectXML)

	missing := int64(2)
	absent, err := p.GetProjectSnapshot(ctx, refid, &missing)
	require.NoError(t, err)
	assert.Nil(t, absent)
}

func TestPostgres_SnapshotDatabase(t *testing.T) {
	p, _ := createTestStorage(t)
	ctx := context.Background()

	tmp, err := p.CreateSnapshotDatabase(ctx, testutil.ProjectXMLTemplate)
	require.NoError(t, err)

	var name string
	require.NoError(t, tmp.DB.QueryRowContext(ctx, "SELECT name FROM task WHERE uid = 'qwerty'").Scan(&name))
	assert.Equal(t, "Task1", name)

	require.NoError(t, tmp.Close(ctx))
	exists, err := schemaExists(ctx, p.db, tmp.Schema)
	require.NoError(t, err)
	assert.False(t, exists)
}
