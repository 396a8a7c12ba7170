package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const assertionsXML = `<?xml version="1.0" encoding="UTF-8"?>
<project name="p">
  <tasks>
    <taskproperties>
      <taskproperty id="tpc0" name="owner" type="custom" valuetype="text"/>
    </taskproperties>
    <task id="1" uid="parent" name="Parent" meeting="false" start="2024-01-01" duration="5" complete="0" expand="true">
      <depend id="3" type="2" difference="1" hardness="Rubber"/>
      <task id="2" uid="child" name="Child" meeting="false" start="2024-01-02" duration="1" complete="50" expand="true">
        <customproperty taskproperty-id="tpc0" value="alice"/>
      </task>
    </task>
    <task id="3" uid="other" name="Other" meeting="false" start="2024-01-09" duration="2" complete="0" expand="true"/>
  </tasks>
</project>
`

func TestEvaluateAssertions_Pass(t *testing.T) {
	result := &Result{ProjectXML: assertionsXML, LogRecords: 4}
	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTask, UID: "child", Expect: map[string]string{
			"name": "Child", "parent": "parent", "completion": "50", "custom:tpc0": "alice",
		}},
		{Type: AssertTaskAbsent, UID: "gone"},
		{Type: AssertDependency, Dependee: "parent", Dependant: "other", Expect: map[string]string{"lag": "1", "hardness": "Rubber"}},
		{Type: AssertContains, Text: `name="Other"`},
		{Type: AssertLogCount, Count: 4},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	result := &Result{ProjectXML: assertionsXML, LogRecords: 1}
	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTask, UID: "missing"},
		{Type: AssertTaskAbsent, UID: "other"},
		{Type: AssertDependency, Dependee: "other", Dependant: "parent"},
		{Type: AssertDependency, Dependee: "parent", Dependant: "other", Expect: map[string]string{"type": "3"}},
		{Type: AssertContains, Text: "Nope"},
		{Type: AssertLogCount, Count: 2},
	})
	require.Len(t, errs, 6)
	assert.Contains(t, errs[0], "assertions[0] task failed")
	assert.Contains(t, errs[0], "no such task")
	assert.Contains(t, errs[1], "task present")
	assert.Contains(t, errs[2], "dependency other -> parent")
	assert.Contains(t, errs[3], `type="2"`)
	assert.Contains(t, errs[4], `"Nope"`)
	assert.Contains(t, errs[5], "Actual: 1")
}

func TestEvaluateAssertions_UnparseableProject(t *testing.T) {
	errs := EvaluateAssertions(&Result{ProjectXML: "<project"}, []Assertion{{Type: AssertContains, Text: "x"}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "project file does not parse")
}
