package updater

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganttproject/colloboque/internal/project"
	"github.com/ganttproject/colloboque/internal/testutil"
	"github.com/ganttproject/colloboque/internal/xlog"
)

const nestedXML = `<?xml version="1.0" encoding="UTF-8"?>
<project name="p">
  <tasks>
    <taskproperties>
      <taskproperty id="tpc0" name="Owner" type="custom" valuetype="text"/>
      <taskproperty id="tpc1" name="Double" type="custom" valuetype="int">
        <simple-select select="duration * 2"/>
      </taskproperty>
    </taskproperties>
    <task id="1" uid="parent" name="Parent" meeting="false" start="2024-01-01" duration="5" complete="0">
      <depend id="3" type="2" difference="1" hardness="Strong"/>
      <task id="2" uid="child" name="Child" meeting="false" start="2024-01-01" duration="2" complete="50">
        <customproperty taskproperty-id="tpc0" value="alice"/>
      </task>
    </task>
    <task id="3" uid="other" name="Other" meeting="false" start="2024-01-06" duration="1" complete="0"/>
  </tasks>
</project>
`

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func rename(uid, name string) xlog.Update {
	return xlog.Update{
		Table:       project.TableTask,
		BinaryConds: []xlog.BinaryCond{xlog.Eq(project.ColUID, uid)},
		NewValues:   xlog.Values{project.ColName: xlog.V(name)},
	}
}

func TestApply_EmptyRecord(t *testing.T) {
	out, err := Apply(context.Background(), testutil.ProjectXMLTemplate, xlog.Record{})
	require.NoError(t, err)
	assert.Equal(t, testutil.ProjectXMLTemplate, out)
}

func TestApply_TaskNameChange(t *testing.T) {
	out, err := Apply(context.Background(), testutil.ProjectXMLTemplate, xlog.NewRecord(rename("qwerty", "Task2")))
	require.NoError(t, err)

	line := regexp.MustCompile(`<task.*name=.Task2.*>`)
	assert.True(t, line.MatchString(out), "result of applying updates:\n%s", out)
	newGoldie(t).Assert(t, "rename", []byte(out))
}

func TestApplyAll_PersistentLog(t *testing.T) {
	insert := func(uid, name, duration string) xlog.Record {
		return xlog.NewRecord(xlog.Insert{Table: project.TableTask, Values: xlog.Values{
			project.ColName:      xlog.V(name),
			project.ColNum:       xlog.V("2"),
			project.ColUID:       xlog.V(uid),
			project.ColStartDate: xlog.V("2024-03-05"),
			project.ColDuration:  xlog.V(duration),
		}})
	}
	out, err := ApplyAll(context.Background(), testutil.ProjectXMLTemplate, []xlog.Record{
		insert("qwerty234", "TaskA", "1"),
		{},
		insert("asdfg", "TaskB", "10"),
	})
	require.NoError(t, err)
	newGoldie(t).Assert(t, "persistent_log", []byte(out))
}

func TestApplyAll_OnlyEmptyRecords(t *testing.T) {
	out, err := ApplyAll(context.Background(), "not even xml", []xlog.Record{{}, {}})
	require.NoError(t, err)
	assert.Equal(t, "not even xml", out)
}

func TestApply_DeleteLiftsChildren(t *testing.T) {
	out, err := Apply(context.Background(), nestedXML, xlog.NewRecord(project.DeleteTaskOp("parent")))
	require.NoError(t, err)

	assert.NotContains(t, out, `uid="parent"`)
	assert.NotContains(t, out, "<depend", "dependencies of the deleted task cascade")
	assert.Contains(t, out, "\n    <task id=\"2\" uid=\"child\"")
	assert.Contains(t, out, `<customproperty taskproperty-id="tpc0" value="alice"/>`)
	assert.Contains(t, out, `<simple-select select="duration * 2"/>`)
}

func TestApply_CustomValueChange(t *testing.T) {
	rec := xlog.NewRecord(project.CustomValueOps("child", map[string]string{"tpc0": "bob"})...)
	out, err := Apply(context.Background(), nestedXML, rec)
	require.NoError(t, err)

	assert.Contains(t, out, `<customproperty taskproperty-id="tpc0" value="bob"/>`)
	assert.NotContains(t, out, "alice")
}

func TestApply_NewDependency(t *testing.T) {
	rec := xlog.NewRecord(project.InsertDependencyOp(project.Dependency{
		DependeeUID: "other", DependantUID: "child", Type: "2", Lag: 0, Hardness: "Strong",
	}))
	out, err := Apply(context.Background(), nestedXML, rec)
	require.NoError(t, err)

	assert.Contains(t, out, `<depend id="2" type="2" difference="0" hardness="Strong"/>`)
	assert.Contains(t, out, `<depend id="3" type="2" difference="1" hardness="Strong"/>`)
	assert.Equal(t, 2, strings.Count(out, "<depend "))
}

func TestApply_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Apply(ctx, "<notaproject/>", xlog.NewRecord(rename("qwerty", "x")))
	assert.Error(t, err)

	_, err = Apply(ctx, testutil.ProjectXMLTemplate, xlog.NewRecord(
		xlog.Insert{Table: "nosuchtable", Values: xlog.Values{"a": xlog.V("1")}},
	))
	assert.Error(t, err)
}
