package harness

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ganttproject/colloboque/internal/project"
)

// customPrefix selects a custom property value in task expectations,
// e.g. "custom:tpc0".
const customPrefix = "custom:"

var taskFields = map[string]func(project.Task) string{
	"num":            func(t project.Task) string { return strconv.Itoa(t.Num) },
	"name":           func(t project.Task) string { return t.Name },
	"color":          func(t project.Task) string { return t.Color },
	"shape":          func(t project.Task) string { return t.Shape },
	"milestone":      func(t project.Task) string { return strconv.FormatBool(t.Milestone) },
	"project_task":   func(t project.Task) string { return strconv.FormatBool(t.ProjectTask) },
	"start":          func(t project.Task) string { return t.Start },
	"duration":       func(t project.Task) string { return strconv.Itoa(t.Duration) },
	"completion":     func(t project.Task) string { return strconv.Itoa(t.Completion) },
	"earliest_start": func(t project.Task) string { return t.EarliestStart },
	"priority":       func(t project.Task) string { return t.Priority },
	"web_link":       func(t project.Task) string { return t.WebLink },
	"cost":           func(t project.Task) string { return t.Cost.ManualValue },
	"notes":          func(t project.Task) string { return t.Notes },
	"parent":         func(t project.Task) string { return t.ParentUID },
}

var dependencyFields = map[string]func(project.Dependency) string{
	"type":     func(d project.Dependency) string { return d.Type },
	"lag":      func(d project.Dependency) string { return strconv.Itoa(d.Lag) },
	"hardness": func(d project.Dependency) string { return d.Hardness },
}

func isCustomField(field string) bool {
	return strings.HasPrefix(field, customPrefix) && len(field) > len(customPrefix)
}

// AssertionError describes one failed assertion.
type AssertionError struct {
	Index    int
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertions[%d] %s failed\n  Expected: %s\n  Actual: %s", e.Index, e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	if len(assertions) == 0 {
		return nil
	}
	doc, err := project.ParseDocument(result.ProjectXML)
	if err != nil {
		return []string{fmt.Sprintf("project file does not parse: %v", err)}
	}
	tasks := make(map[string]project.Task)
	for _, t := range doc.Tasks() {
		tasks[t.UID] = t
	}
	deps := doc.Dependencies()

	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTask:
			err = assertTask(tasks, a)
		case AssertTaskAbsent:
			if _, ok := tasks[a.UID]; ok {
				err = &AssertionError{Expected: "no task " + a.UID, Actual: "task present"}
			}
		case AssertDependency:
			err = assertDependency(deps, a)
		case AssertContains:
			if !strings.Contains(result.ProjectXML, a.Text) {
				err = &AssertionError{Expected: fmt.Sprintf("project file containing %q", a.Text), Actual: "not found"}
			}
		case AssertLogCount:
			if result.LogRecords != a.Count {
				err = &AssertionError{Expected: fmt.Sprintf("%d log records", a.Count), Actual: strconv.Itoa(result.LogRecords)}
			}
		default:
			err = &AssertionError{Expected: "a known assertion type", Actual: a.Type}
		}
		if err != nil {
			if ae, ok := err.(*AssertionError); ok {
				ae.Index, ae.Type = i, a.Type
			}
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func assertTask(tasks map[string]project.Task, a Assertion) error {
	t, ok := tasks[a.UID]
	if !ok {
		return &AssertionError{Expected: "task " + a.UID, Actual: "no such task"}
	}
	var mismatches []string
	for _, field := range sortedKeys(a.Expect) {
		want := a.Expect[field]
		var got string
		if isCustomField(field) {
			got = t.CustomValues[strings.TrimPrefix(field, customPrefix)]
		} else {
			got = taskFields[field](t)
		}
		if got != want {
			mismatches = append(mismatches, fmt.Sprintf("%s=%q (want %q)", field, got, want))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Expected: fmt.Sprintf("task %s with %v", a.UID, a.Expect),
			Actual:   strings.Join(mismatches, ", "),
		}
	}
	return nil
}

func assertDependency(deps []project.Dependency, a Assertion) error {
	for _, d := range deps {
		if d.DependeeUID != a.Dependee || d.DependantUID != a.Dependant {
			continue
		}
		for _, field := range sortedKeys(a.Expect) {
			if got := dependencyFields[field](d); got != a.Expect[field] {
				return &AssertionError{
					Expected: fmt.Sprintf("dependency %s -> %s with %s=%q", a.Dependee, a.Dependant, field, a.Expect[field]),
					Actual:   fmt.Sprintf("%s=%q", field, got),
				}
			}
		}
		return nil
	}
	return &AssertionError{
		Expected: fmt.Sprintf("dependency %s -> %s", a.Dependee, a.Dependant),
		Actual:   "not found",
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
