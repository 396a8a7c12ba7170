package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ganttproject/colloboque/internal/server"
	"github.com/ganttproject/colloboque/internal/storage"
	"github.com/ganttproject/colloboque/internal/xlog"
)

// ProjectLogsResult is the JSON payload of project logs.
type ProjectLogsResult struct {
	Project string        `json:"project"`
	After   int64         `json:"after"`
	Records []xlog.Record `json:"records"`
}

// ProjectSnapshotResult is the JSON payload of project snapshot and
// project xml.
type ProjectSnapshotResult struct {
	Project    string `json:"project"`
	BaseTxnID  *int64 `json:"base_txn_id,omitempty"`
	ProjectXML string `json:"project_xml"`
}

// NewProjectCommand creates the project command group.
func NewProjectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Inspect and provision projects in the server database",
	}
	cmd.AddCommand(newProjectInitCommand(rootOpts))
	cmd.AddCommand(newProjectLogsCommand(rootOpts))
	cmd.AddCommand(newProjectSnapshotCommand(rootOpts))
	cmd.AddCommand(newProjectXMLCommand(rootOpts))
	return cmd
}

func newProjectInitCommand(opts *RootOptions) *cobra.Command {
	var recordPath string
	cmd := &cobra.Command{
		Use:   "init <refid> <project-file> | init --record <init.json>",
		Short: "Create a project schema and store its initial state",
		Long: `Clone the template schema for the project, load the tasks and
dependencies of the project file into it, and store the file as the
snapshot of transaction 0.

With --record the project id and file come from a JSON init record
({"userId", "projectRefid", "payload"}) instead of the arguments.

Examples:
  colloboque project init my-plan plan.gan
  colloboque project init --record init.json`,
		Args: func(cmd *cobra.Command, args []string) error {
			if recordPath != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjectInit(opts, args, recordPath, cmd)
		},
	}
	cmd.Flags().StringVar(&recordPath, "record", "", "read the project id and file from an init record (- for stdin)")
	return cmd
}

func runProjectInit(opts *RootOptions, args []string, recordPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	var rec xlog.InitRecord
	if recordPath != "" {
		var err error
		rec, err = loadInitRecord(recordPath, cmd)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInput, "failed to read init record", err)
		}
	} else {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInput, "failed to read project file", err)
		}
		rec = xlog.InitRecord{ProjectRefid: args[0], Payload: string(data)}
	}

	return withStorage(cmd.Context(), opts, formatter, func(ctx context.Context, st *storage.Postgres) error {
		base, err := server.New(st).Init(ctx, rec.ProjectRefid, rec.Payload)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStorage, "failed to initialize project", err)
		}
		if rec.UserID != "" {
			slog.Debug("project initialized", "project", rec.ProjectRefid, "user", rec.UserID)
		}
		return formatter.Success(map[string]any{"project": rec.ProjectRefid, "base_txn_id": base},
			fmt.Sprintf("Initialized %s at transaction %d\n", rec.ProjectRefid, base))
	})
}

// loadInitRecord reads and validates an init record.
func loadInitRecord(path string, cmd *cobra.Command) (xlog.InitRecord, error) {
	data, err := readInput(path, cmd.InOrStdin())
	if err != nil {
		return xlog.InitRecord{}, err
	}
	v, err := xlog.NewValidator()
	if err != nil {
		return xlog.InitRecord{}, err
	}
	return v.DecodeInitRecord(data)
}

func newProjectLogsCommand(opts *RootOptions) *cobra.Command {
	var after int64
	cmd := &cobra.Command{
		Use:           "logs <refid>",
		Short:         "Print the log records committed after a transaction",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withStorage(cmd.Context(), opts, formatter, func(ctx context.Context, st *storage.Postgres) error {
				recs, err := st.GetTransactionLogs(ctx, args[0], after)
				if err != nil {
					return formatter.Fail(ExitCommandError, ErrCodeStorage, "failed to read logs", err)
				}
				var text strings.Builder
				for _, rec := range recs {
					line, err := xlog.MarshalRecord(rec)
					if err != nil {
						return formatter.Fail(ExitFailure, ErrCodeRecords, "failed to encode record", err)
					}
					text.Write(line)
					text.WriteByte('\n')
				}
				if recs == nil {
					recs = []xlog.Record{}
				}
				return formatter.Success(ProjectLogsResult{Project: args[0], After: after, Records: recs}, text.String())
			})
		},
	}
	cmd.Flags().Int64Var(&after, "after", server.NullTxnID, "only records of transactions after this one")
	return cmd
}

func newProjectSnapshotCommand(opts *RootOptions) *cobra.Command {
	var txn int64
	cmd := &cobra.Command{
		Use:           "snapshot <refid>",
		Short:         "Print a stored project file snapshot",
		Long:          "Print the newest stored snapshot, or with --txn the one taken at that transaction.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			var at *int64
			if cmd.Flags().Changed("txn") {
				at = &txn
			}
			return withStorage(cmd.Context(), opts, formatter, func(ctx context.Context, st *storage.Postgres) error {
				snap, err := st.GetProjectSnapshot(ctx, args[0], at)
				if err != nil {
					return formatter.Fail(ExitCommandError, ErrCodeStorage, "failed to read snapshot", err)
				}
				if snap == nil {
					return formatter.Fail(ExitFailure, ErrCodeStorage, "no snapshot found", nil)
				}
				return formatter.Success(ProjectSnapshotResult{
					Project:    args[0],
					BaseTxnID:  &snap.BaseTxnID,
					ProjectXML: snap.ProjectXML,
				}, snap.ProjectXML)
			})
		},
	}
	cmd.Flags().Int64Var(&txn, "txn", 0, "transaction the snapshot was taken at")
	return cmd
}

func newProjectXMLCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "xml <refid>",
		Short:         "Print the current project file",
		Long:          "Print the newest snapshot with every later transaction applied.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withStorage(cmd.Context(), opts, formatter, func(ctx context.Context, st *storage.Postgres) error {
				xml, err := server.New(st).ProjectXML(ctx, args[0])
				if err != nil {
					return formatter.Fail(ExitCommandError, ErrCodeProject, "failed to build project file", err)
				}
				return formatter.Success(ProjectSnapshotResult{Project: args[0], ProjectXML: xml}, xml)
			})
		},
	}
}

// withStorage runs fn with the configured database open.
func withStorage(ctx context.Context, opts *RootOptions, formatter *OutputFormatter, fn func(context.Context, *storage.Postgres) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := openStorage(ctx, opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStorage, "failed to open database", err)
	}
	defer st.Close()
	return fn(ctx, st)
}
