package project

import (
	"regexp"
	"strings"
)

// Task is one row of the task table plus the hierarchy and custom values
// carried by the project file.
//
// Optional text fields use "" for absent. ParentUID is not stored in the
// mirror; it only exists in the file.
type Task struct {
	Num                 int
	UID                 string
	Name                string
	Color               string
	Shape               string
	Milestone           bool
	ProjectTask         bool
	Start               string // yyyy-mm-dd
	Duration            int
	Completion          int
	EarliestStart       string
	ThirdDateConstraint *int
	Priority            string
	WebLink             string
	Cost                Cost
	Notes               string

	ParentUID    string
	CustomValues map[string]string
}

// Cost is a task's manual cost and whether it is calculated instead.
// Calculated is nil when the file does not say.
type Cost struct {
	ManualValue string
	Calculated  *bool
}

// Dependency links two tasks by uid.
type Dependency struct {
	DependeeUID  string
	DependantUID string
	Type         string
	Lag          int
	Hardness     string
}

// CustomPropertyDef describes a task custom property. A definition with an
// Expression is computed from other columns and never stored.
type CustomPropertyDef struct {
	ID           string
	Name         string
	Type         string
	ValueType    string
	DefaultValue string
	Expression   string
}

// Computed reports whether the property is a generated column.
func (d CustomPropertyDef) Computed() bool {
	return d.Expression != ""
}

var nonIdent = regexp.MustCompile(`[^a-z0-9_]`)

// ColumnName is the task-table column holding this property.
func (d CustomPropertyDef) ColumnName() string {
	return "cp_" + nonIdent.ReplaceAllString(strings.ToLower(d.ID), "_")
}

// SQLType maps the property value type to a column type.
func (d CustomPropertyDef) SQLType() string {
	switch strings.ToLower(d.ValueType) {
	case "int", "integer":
		return "INTEGER"
	case "double":
		return "REAL"
	case "date":
		return "DATE"
	case "boolean":
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}
