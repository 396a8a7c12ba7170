package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ganttproject/colloboque/internal/xlog"
)

// Scenario is a sequence of client submissions against one project.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Project is the initial project file. ProjectFile is read instead when
	// set; relative paths resolve against the scenario file.
	Project     string `yaml:"project,omitempty"`
	ProjectFile string `yaml:"project_file,omitempty"`

	// SnapshotEvery is passed to the server; zero disables snapshots.
	SnapshotEvery int `yaml:"snapshot_every,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one client submission.
type Step struct {
	User         string `yaml:"user"`
	Base         int64  `yaml:"base"`
	TrackingCode string `yaml:"tracking_code,omitempty"`

	// Records are log records in wire form.
	Records []map[string]any `yaml:"records"`

	Expect *StepExpect `yaml:"expect,omitempty"`
}

// StepExpect is the response a step must get.
type StepExpect struct {
	Committed bool   `yaml:"committed"`
	NewBase   int64  `yaml:"new_base,omitempty"`
	Message   string `yaml:"message,omitempty"`
}

// Assertion checks the final project file or server log.
type Assertion struct {
	Type string `yaml:"type"`

	UID       string `yaml:"uid,omitempty"`
	Dependee  string `yaml:"dependee,omitempty"`
	Dependant string `yaml:"dependant,omitempty"`

	// Expect holds field values (subset match).
	Expect map[string]string `yaml:"expect,omitempty"`

	Text  string `yaml:"text,omitempty"`
	Count int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTask       = "task"
	AssertTaskAbsent = "task_absent"
	AssertDependency = "dependency"
	AssertContains   = "contains"
	AssertLogCount   = "log_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.ProjectFile != "" {
		projectPath := scenario.ProjectFile
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(filepath.Dir(path), projectPath)
		}
		xml, err := os.ReadFile(projectPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read project file: %w", err)
		}
		scenario.Project = string(xml)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Project == "" {
		return fmt.Errorf("project or project_file is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if step.Records == nil {
			return fmt.Errorf("steps[%d]: records is required (use an empty list for none)", i)
		}
		if step.Base < 0 {
			return fmt.Errorf("steps[%d]: base must be non-negative", i)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTask:
		if a.UID == "" {
			return fmt.Errorf("assertions[%d]: uid is required for task", index)
		}
		for field := range a.Expect {
			if _, ok := taskFields[field]; !ok && !isCustomField(field) {
				return fmt.Errorf("assertions[%d]: unknown task field %q", index, field)
			}
		}
	case AssertTaskAbsent:
		if a.UID == "" {
			return fmt.Errorf("assertions[%d]: uid is required for task_absent", index)
		}
	case AssertDependency:
		if a.Dependee == "" || a.Dependant == "" {
			return fmt.Errorf("assertions[%d]: dependee and dependant are required for dependency", index)
		}
		for field := range a.Expect {
			if _, ok := dependencyFields[field]; !ok {
				return fmt.Errorf("assertions[%d]: unknown dependency field %q", index, field)
			}
		}
	case AssertContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for contains", index)
		}
	case AssertLogCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for log_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// decodeRecords converts the YAML records of a step to log records through
// the wire schema.
func decodeRecords(v *xlog.Validator, raw []map[string]any) ([]xlog.Record, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return v.DecodeRecords(data)
}
