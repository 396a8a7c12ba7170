package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/ganttproject/colloboque/internal/server"
	"github.com/ganttproject/colloboque/internal/storage"
	"github.com/ganttproject/colloboque/internal/testutil"
	"github.com/ganttproject/colloboque/internal/xlog"
)

// stepTimeout bounds the wait for one server response.
const stepTimeout = 10 * time.Second

// Harness drives one scenario through a server.
type Harness struct {
	refid     string
	storage   *storage.Memory
	server    *server.Server
	codes     *testutil.TrackingCodes
	validator *xlog.Validator
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against fresh in-memory storage. The project is
// initialized from the scenario's project file, every step is submitted
// and answered in order, and the assertions are evaluated against the
// project file the server builds afterwards.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	validator, err := xlog.NewValidator()
	if err != nil {
		return nil, err
	}
	st := storage.NewMemory()
	h := &Harness{
		refid:     "scenario-" + scenario.Name,
		storage:   st,
		server:    server.New(st, server.WithSnapshotEvery(scenario.SnapshotEvery)),
		codes:     testutil.NewTrackingCodes(scenario.Name),
		validator: validator,
	}

	if _, err := h.server.Init(ctx, h.refid, scenario.Project); err != nil {
		return nil, fmt.Errorf("failed to initialize project: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.server.Run(runCtx)
	}()
	defer func() {
		h.server.Stop()
		<-done
	}()

	result := NewResult()
	for i, step := range scenario.Steps {
		sr, err := h.executeStep(ctx, i, step)
		if err != nil {
			return nil, err
		}
		result.Steps = append(result.Steps, sr)
		if step.Expect != nil {
			if msg := checkStep(sr, *step.Expect); msg != "" {
				result.AddError(msg)
			}
		}
	}

	result.ProjectXML, err = h.server.ProjectXML(ctx, h.refid)
	if err != nil {
		return nil, fmt.Errorf("failed to build project file: %w", err)
	}
	logs, err := h.storage.GetTransactionLogs(ctx, h.refid, server.NullTxnID)
	if err != nil {
		return nil, err
	}
	result.LogRecords = len(logs)

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, i int, step Step) (StepResult, error) {
	records, err := decodeRecords(h.validator, step.Records)
	if err != nil {
		return StepResult{}, fmt.Errorf("steps[%d]: %w", i, err)
	}
	code := step.TrackingCode
	if code == "" {
		code = h.codes.Next()
	}

	h.server.Submit(xlog.InputXlog{
		BaseTxnID:          step.Base,
		UserID:             step.User,
		ProjectRefid:       h.refid,
		Transactions:       records,
		ClientTrackingCode: code,
	})

	var resp xlog.ServerResponse
	select {
	case resp = <-h.server.Responses():
	case <-time.After(stepTimeout):
		return StepResult{}, fmt.Errorf("steps[%d]: no response after %s", i, stepTimeout)
	case <-ctx.Done():
		return StepResult{}, ctx.Err()
	}

	sr := StepResult{Step: i, TrackingCode: code}
	switch r := resp.(type) {
	case xlog.CommitResponse:
		sr.Committed = true
		sr.NewBase = r.NewBaseTxnID
	case xlog.ErrorResponse:
		sr.Message = r.Message
	}
	return sr, nil
}

func checkStep(sr StepResult, want StepExpect) string {
	switch {
	case sr.Committed != want.Committed:
		return fmt.Sprintf("steps[%d]: expected committed=%t, got committed=%t (%s)",
			sr.Step, want.Committed, sr.Committed, sr.Message)
	case want.NewBase != 0 && sr.NewBase != want.NewBase:
		return fmt.Sprintf("steps[%d]: expected new base %d, got %d", sr.Step, want.NewBase, sr.NewBase)
	case want.Message != "" && sr.Message != want.Message:
		return fmt.Sprintf("steps[%d]: expected message %q, got %q", sr.Step, want.Message, sr.Message)
	}
	return ""
}
