package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/ganttproject/colloboque/internal/merge"
	"github.com/ganttproject/colloboque/internal/project"
	"github.com/ganttproject/colloboque/internal/storage"
	"github.com/ganttproject/colloboque/internal/updater"
	"github.com/ganttproject/colloboque/internal/xlog"
)

// NullTxnID is the transaction id of a freshly initialized project.
const NullTxnID int64 = 0

// Merger decides whether client records based on the project state
// baseXML can be committed after the server records.
type Merger interface {
	TryMerge(ctx context.Context, baseXML string, server, client []xlog.Record) (merge.Result, error)
}

// Server commits client transactions, one at a time.
type Server struct {
	storage       storage.Storage
	merger        Merger
	snapshotEvery int

	queue     *inputQueue
	responses chan xlog.ServerResponse

	mu       sync.Mutex
	projects map[string]*projectState
}

// projectState is owned by the Run goroutine once the project is
// initialized; mu guards the map itself.
type projectState struct {
	baseTxnID     int64
	sinceSnapshot int
	// committed maps a client tracking code to the commit it produced.
	committed map[string]trackedCommit
}

type trackedCommit struct {
	digest   string
	response xlog.CommitResponse
}

// Option configures a Server.
type Option func(*Server)

// WithMerger lets clients that are behind commit when their changes do
// not conflict. Without a merger they are always told to resync.
func WithMerger(m Merger) Option {
	return func(s *Server) { s.merger = m }
}

// WithSnapshotEvery stores a project file snapshot after every n commits.
// Zero disables snapshots.
func WithSnapshotEvery(n int) Option {
	return func(s *Server) { s.snapshotEvery = n }
}

// WithResponseBuffer sets the capacity of the Responses channel.
func WithResponseBuffer(n int) Option {
	return func(s *Server) { s.responses = make(chan xlog.ServerResponse, n) }
}

// New returns a server over st. Call Run to start committing.
func New(st storage.Storage, opts ...Option) *Server {
	s := &Server{
		storage:   st,
		queue:     newInputQueue(),
		responses: make(chan xlog.ServerResponse, 64),
		projects:  make(map[string]*projectState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init provisions refid and stores projectXML as its state at NullTxnID.
// The returned id is the base clients start from.
func (s *Server) Init(ctx context.Context, refid, projectXML string) (int64, error) {
	if err := s.storage.InitProject(ctx, refid); err != nil {
		return 0, fmt.Errorf("init project %s: %w", refid, err)
	}
	if projectXML != "" {
		doc, err := project.ParseDocument(projectXML)
		if err != nil {
			return 0, fmt.Errorf("init project %s: %w", refid, err)
		}
		if err := s.storage.InsertTasks(ctx, refid, doc.Tasks()); err != nil {
			return 0, fmt.Errorf("init project %s: %w", refid, err)
		}
		if err := s.storage.InsertDependencies(ctx, refid, doc.Dependencies()); err != nil {
			return 0, fmt.Errorf("init project %s: %w", refid, err)
		}
		if err := s.storage.InsertActualSnapshot(ctx, refid, NullTxnID, projectXML); err != nil {
			return 0, fmt.Errorf("init project %s: %w", refid, err)
		}
	}

	s.mu.Lock()
	s.projects[refid] = &projectState{baseTxnID: NullTxnID, committed: make(map[string]trackedCommit)}
	s.mu.Unlock()

	slog.Info("project initialized", "project", refid)
	return NullTxnID, nil
}

// Open registers a project that was initialized earlier, resuming from
// its newest committed transaction.
func (s *Server) Open(ctx context.Context, refid string) (int64, error) {
	snap, err := s.storage.GetProjectSnapshot(ctx, refid, nil)
	if err != nil {
		return 0, fmt.Errorf("open project %s: %w", refid, err)
	}
	if snap == nil {
		return 0, fmt.Errorf("open project %s: not initialized", refid)
	}
	latest, err := s.storage.LatestTxnID(ctx, refid)
	if err != nil {
		return 0, fmt.Errorf("open project %s: %w", refid, err)
	}

	s.mu.Lock()
	s.projects[refid] = &projectState{
		baseTxnID:     latest,
		sinceSnapshot: int(latest - snap.BaseTxnID),
		committed:     make(map[string]trackedCommit),
	}
	s.mu.Unlock()

	slog.Info("project opened", "project", refid, "base", latest)
	return latest, nil
}

// BaseTxnID returns the latest committed transaction of refid.
func (s *Server) BaseTxnID(refid string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.projects[refid]
	if !ok {
		return 0, false
	}
	return st.baseTxnID, true
}

// Submit queues in for commit. It returns false after Stop.
func (s *Server) Submit(in xlog.InputXlog) bool {
	return s.queue.Enqueue(in)
}

// Responses delivers one response per submission, in submission order.
// It is closed when Run returns.
func (s *Server) Responses() <-chan xlog.ServerResponse {
	return s.responses
}

// Run commits submissions until ctx is cancelled or Stop was called and
// the queue drained.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("server starting")
	defer close(s.responses)

	for {
		if in, ok := s.queue.TryDequeue(); ok {
			resp := s.process(ctx, in)
			select {
			case s.responses <- resp:
			case <-ctx.Done():
				s.queue.Close()
				return ctx.Err()
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("server stopping: context cancelled")
			s.queue.Close()
			return ctx.Err()
		case <-s.queue.Wait():
			if s.queue.Drained() {
				slog.Info("server stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop stops accepting submissions. Run returns once the queue is drained.
func (s *Server) Stop() {
	s.queue.Close()
}

// process is only called from Run.
func (s *Server) process(ctx context.Context, in xlog.InputXlog) xlog.ServerResponse {
	slog.Debug("next xlog", "project", in.ProjectRefid, "base", in.BaseTxnID, "tracking", in.ClientTrackingCode)
	resp, err := s.commit(ctx, in)
	if err != nil {
		slog.Error("failed to commit", "project", in.ProjectRefid, "base", in.BaseTxnID, "error", err)
		message := err.Error()
		var ce *CommitError
		if errors.As(err, &ce) {
			message = ce.Message
		}
		return xlog.ErrorResponse{BaseTxnID: in.BaseTxnID, ProjectRefid: in.ProjectRefid, Message: message}
	}
	return resp
}

func (s *Server) commit(ctx context.Context, in xlog.InputXlog) (xlog.CommitResponse, error) {
	s.mu.Lock()
	st, ok := s.projects[in.ProjectRefid]
	s.mu.Unlock()
	if !ok {
		return xlog.CommitResponse{}, &CommitError{
			Code:    ErrCodeUnknownProject,
			Message: fmt.Sprintf("Unknown project %s", in.ProjectRefid),
			Project: in.ProjectRefid,
		}
	}

	txns := nonEmpty(in.Transactions)
	if len(txns) == 0 {
		return xlog.CommitResponse{}, &CommitError{
			Code:    ErrCodeEmptyTransaction,
			Message: "Empty transactions not allowed",
			Project: in.ProjectRefid,
		}
	}

	digest, err := digestOf(txns)
	if err != nil {
		return xlog.CommitResponse{}, err
	}
	if prev, ok := st.committed[in.ClientTrackingCode]; ok && in.ClientTrackingCode != "" && prev.digest == digest {
		slog.Info("duplicate submission, resending commit", "project", in.ProjectRefid, "tracking", in.ClientTrackingCode)
		return prev.response, nil
	}

	switch {
	case in.BaseTxnID == st.baseTxnID:
	case in.BaseTxnID < st.baseTxnID && s.merger != nil:
		if err := s.tryMerge(ctx, in, st, txns); err != nil {
			return xlog.CommitResponse{}, err
		}
	default:
		return xlog.CommitResponse{}, &CommitError{
			Code:    ErrCodeBaseMismatch,
			Message: fmt.Sprintf("Invalid transaction id %d, expected %d", in.BaseTxnID, st.baseTxnID),
			Project: in.ProjectRefid,
		}
	}

	next := st.baseTxnID + 1
	if err := s.storage.CommitXlogs(ctx, in.ProjectRefid, next, txns); err != nil {
		return xlog.CommitResponse{}, &CommitError{
			Code:    ErrCodeStorageFailure,
			Message: "Failed to commit transaction",
			Project: in.ProjectRefid,
			Err:     err,
		}
	}
	s.mu.Lock()
	st.baseTxnID = next
	s.mu.Unlock()

	resp := xlog.CommitResponse{
		BaseTxnID:          in.BaseTxnID,
		NewBaseTxnID:       next,
		ProjectRefid:       in.ProjectRefid,
		LogRecords:         txns,
		ClientTrackingCode: in.ClientTrackingCode,
	}
	if in.ClientTrackingCode != "" {
		st.committed[in.ClientTrackingCode] = trackedCommit{digest: digest, response: resp}
	}
	slog.Info("transaction committed", "project", in.ProjectRefid, "txn", next, "records", len(txns))

	st.sinceSnapshot++
	if s.snapshotEvery > 0 && st.sinceSnapshot >= s.snapshotEvery {
		if err := s.snapshot(ctx, in.ProjectRefid, next); err != nil {
			slog.Warn("snapshot failed", "project", in.ProjectRefid, "txn", next, "error", err)
		} else {
			st.sinceSnapshot = 0
		}
	}
	return resp, nil
}

// tryMerge merges txns, based on in.BaseTxnID, against everything the
// server committed since. A nil error means the client's records may be
// committed on top of the server's.
func (s *Server) tryMerge(ctx context.Context, in xlog.InputXlog, st *projectState, txns []xlog.Record) error {
	fail := func(err error) error {
		return &CommitError{
			Code:    ErrCodeStorageFailure,
			Message: "Failed to merge transaction",
			Project: in.ProjectRefid,
			Err:     err,
		}
	}
	baseXML, err := s.projectXMLAt(ctx, in.ProjectRefid, in.BaseTxnID)
	if err != nil {
		return fail(err)
	}
	serverRecs, err := s.storage.GetTransactionLogsBetween(ctx, in.ProjectRefid, in.BaseTxnID, st.baseTxnID)
	if err != nil {
		return fail(err)
	}

	res, err := s.merger.TryMerge(ctx, baseXML, serverRecs, txns)
	if err != nil {
		return fail(err)
	}
	if !res.Accepted {
		return &CommitError{
			Code: ErrCodeMergeRejected,
			Message: fmt.Sprintf("Transaction based on %d conflicts with concurrent updates (%s), expected %d",
				in.BaseTxnID, res.Reason, st.baseTxnID),
			Project: in.ProjectRefid,
			Err:     res.Err,
		}
	}
	slog.Info("merged concurrent transaction", "project", in.ProjectRefid, "base", in.BaseTxnID, "head", st.baseTxnID)
	return nil
}

func (s *Server) snapshot(ctx context.Context, refid string, txnID int64) error {
	xml, err := s.projectXMLAt(ctx, refid, txnID)
	if err != nil {
		return err
	}
	return s.storage.InsertActualSnapshot(ctx, refid, txnID, xml)
}

// ProjectXML returns the latest project file of refid: its newest snapshot
// with every later transaction applied.
func (s *Server) ProjectXML(ctx context.Context, refid string) (string, error) {
	return s.projectXMLAt(ctx, refid, math.MaxInt64)
}

// projectXMLAt builds the project file as of txnID from the newest snapshot
// not after txnID.
func (s *Server) projectXMLAt(ctx context.Context, refid string, txnID int64) (string, error) {
	snap, err := s.storage.GetProjectSnapshot(ctx, refid, nil)
	if err != nil {
		return "", err
	}
	if snap == nil || snap.BaseTxnID > txnID {
		initial := NullTxnID
		if snap, err = s.storage.GetProjectSnapshot(ctx, refid, &initial); err != nil {
			return "", err
		}
	}
	if snap == nil {
		return "", fmt.Errorf("project %s has no snapshot", refid)
	}

	logs, err := s.storage.GetTransactionLogsBetween(ctx, refid, snap.BaseTxnID, txnID)
	if err != nil {
		return "", err
	}
	return updater.ApplyAll(ctx, snap.ProjectXML, logs)
}

func nonEmpty(recs []xlog.Record) []xlog.Record {
	var out []xlog.Record
	for _, r := range recs {
		if !r.Empty() {
			out = append(out, r)
		}
	}
	return out
}

func digestOf(recs []xlog.Record) (string, error) {
	parts := make([]string, len(recs))
	for i, r := range recs {
		d, err := r.Digest()
		if err != nil {
			return "", err
		}
		parts[i] = d
	}
	return strings.Join(parts, ","), nil
}
