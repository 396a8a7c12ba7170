package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ganttproject/colloboque/internal/merge"
	"github.com/ganttproject/colloboque/internal/server"
	"github.com/ganttproject/colloboque/internal/storage"
	"github.com/ganttproject/colloboque/internal/xlog"
)

// CommitResult is the JSON payload of the commit command.
type CommitResult struct {
	Responses []json.RawMessage `json:"responses"`
	Committed int               `json:"committed"`
	Rejected  int               `json:"rejected"`
}

// NewCommitCommand creates the commit command.
func NewCommitCommand(rootOpts *RootOptions) *cobra.Command {
	var noMerge bool
	cmd := &cobra.Command{
		Use:   "commit <inputs.json>",
		Short: "Commit client transactions through the server",
		Long: `Submit a JSON array of client transactions to the server, in order, and
print one response per transaction. Every project named must have been
created with "project init". Transactions based on an older transaction
are merged unless --no-merge is set.

Exit codes:
  0 - All transactions committed
  1 - At least one transaction was rejected
  2 - Command error (database unreachable, bad input, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommit(rootOpts, args[0], noMerge, cmd)
		},
	}
	cmd.Flags().BoolVar(&noMerge, "no-merge", false, "reject transactions that are behind instead of merging them")
	return cmd
}

func runCommit(opts *RootOptions, path string, noMerge bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	inputs, err := loadInputs(path, cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, "failed to read transactions", err)
	}

	return withStorage(cmd.Context(), opts, formatter, func(ctx context.Context, st *storage.Postgres) error {
		srvOpts := []server.Option{
			server.WithSnapshotEvery(opts.Config.SnapshotEvery),
			server.WithResponseBuffer(len(inputs)),
		}
		if !noMerge {
			srvOpts = append(srvOpts, server.WithMerger(&server.SnapshotMerger{
				Engine:    newMergeEngine(opts),
				Databases: st,
			}))
		}
		srv := server.New(st, srvOpts...)

		opened := make(map[string]bool)
		for _, in := range inputs {
			if opened[in.ProjectRefid] {
				continue
			}
			if _, err := srv.Open(ctx, in.ProjectRefid); err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeStorage, "failed to open project", err)
			}
			opened[in.ProjectRefid] = true
		}

		for _, in := range inputs {
			srv.Submit(in)
		}
		srv.Stop()
		if err := srv.Run(ctx); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStorage, "server stopped", err)
		}

		result := CommitResult{Responses: []json.RawMessage{}}
		var text strings.Builder
		for resp := range srv.Responses() {
			data, err := xlog.MarshalServerResponse(resp)
			if err != nil {
				return formatter.Fail(ExitFailure, ErrCodeRecords, "failed to encode response", err)
			}
			result.Responses = append(result.Responses, data)
			switch r := resp.(type) {
			case xlog.CommitResponse:
				result.Committed++
				fmt.Fprintf(&text, "committed %s: %d -> %d (%d record(s))\n",
					r.ProjectRefid, r.BaseTxnID, r.NewBaseTxnID, len(r.LogRecords))
			case xlog.ErrorResponse:
				result.Rejected++
				fmt.Fprintf(&text, "rejected %s at %d: %s\n", r.ProjectRefid, r.BaseTxnID, r.Message)
			}
		}

		if err := formatter.Success(result, text.String()); err != nil {
			return err
		}
		if result.Rejected > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("%d transaction(s) rejected", result.Rejected))
		}
		return nil
	})
}

// loadInputs reads and validates a JSON array of client transactions.
// Transactions without a tracking code get a fresh one, so that duplicate
// detection never matches two unrelated submissions.
func loadInputs(path string, cmd *cobra.Command) ([]xlog.InputXlog, error) {
	data, err := readInput(path, cmd.InOrStdin())
	if err != nil {
		return nil, err
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	v, err := xlog.NewValidator()
	if err != nil {
		return nil, err
	}
	inputs := make([]xlog.InputXlog, 0, len(raws))
	for i, raw := range raws {
		in, err := v.DecodeInputXlog(raw)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		if in.ClientTrackingCode == "" {
			in.ClientTrackingCode = xlog.NewTrackingCode()
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func newMergeEngine(opts *RootOptions) *merge.Engine {
	return merge.New(
		merge.WithTimeout(opts.Config.MergeTimeout),
		merge.WithWorkers(opts.Config.MergeWorkers),
	)
}
