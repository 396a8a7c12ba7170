package harness

// StepResult is what the server answered to one step.
type StepResult struct {
	Step         int    `json:"step"`
	TrackingCode string `json:"tracking_code"`
	Committed    bool   `json:"committed"`
	NewBase      int64  `json:"new_base,omitempty"`
	Message      string `json:"message,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	Steps []StepResult `json:"steps"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// ProjectXML is the project file after the last step.
	ProjectXML string `json:"project_xml"`

	// LogRecords is the number of records in the server log.
	LogRecords int `json:"log_records"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
