package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ganttproject/colloboque/internal/merge"
	"github.com/ganttproject/colloboque/internal/server"
	"github.com/ganttproject/colloboque/internal/storage"
)

// MergeOptions holds flags for the merge command.
type MergeOptions struct {
	*RootOptions
	Base   string
	Server string
	Client string
}

// MergeResult is the JSON payload of the merge command.
type MergeResult struct {
	Accepted bool     `json:"accepted"`
	Reason   string   `json:"reason"`
	State    string   `json:"state"`
	Trace    []string `json:"trace"`
	Error    string   `json:"error,omitempty"`
}

// NewMergeCommand creates the merge command.
func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MergeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Check whether two concurrent record lists merge",
		Long: `Load the base project file into a temporary schema and run the server
and client records against it concurrently. Nothing is kept: the
temporary schema is dropped afterwards.

Exit codes:
  0 - The records merge
  1 - The merge was rejected (conflict or timeout)
  2 - Command error

Example:
  colloboque merge --base plan.gan --server server.json --client client.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Base, "base", "", "project file both record lists start from (required)")
	cmd.Flags().StringVar(&opts.Server, "server", "", "records committed by the server (required)")
	cmd.Flags().StringVar(&opts.Client, "client", "", "records submitted by the client (required)")
	_ = cmd.MarkFlagRequired("base")
	_ = cmd.MarkFlagRequired("server")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func runMerge(opts *MergeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	base, err := os.ReadFile(opts.Base)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, "failed to read project file", err)
	}
	serverRecs, err := loadRecords(opts.Server, cmd)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeInput, "failed to read server records", err)
	}
	clientRecs, err := loadRecords(opts.Client, cmd)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeInput, "failed to read client records", err)
	}

	return withStorage(cmd.Context(), opts.RootOptions, formatter, func(ctx context.Context, st *storage.Postgres) error {
		m := &server.SnapshotMerger{Engine: newMergeEngine(opts.RootOptions), Databases: st}
		res, err := m.TryMerge(ctx, string(base), serverRecs, clientRecs)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStorage, "merge failed", err)
		}

		out := mergeResult(res)
		text := fmt.Sprintf("accepted: %t\nreason: %s\ntrace: %s\n", out.Accepted, out.Reason, strings.Join(out.Trace, " -> "))
		if err := formatter.Success(out, text); err != nil {
			return err
		}
		if !res.Accepted {
			return NewExitError(ExitFailure, fmt.Sprintf("merge rejected: %s", res.Reason))
		}
		return nil
	})
}

func mergeResult(res merge.Result) MergeResult {
	out := MergeResult{
		Accepted: res.Accepted,
		Reason:   res.Reason.String(),
		State:    res.State.String(),
		Trace:    make([]string, len(res.Trace)),
	}
	for i, s := range res.Trace {
		out.Trace[i] = s.String()
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}
