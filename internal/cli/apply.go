package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/ganttproject/colloboque/internal/updater"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Project string
	Output  string
	Diff    bool
}

// ApplyResult is the JSON payload of the apply command.
type ApplyResult struct {
	Records    int    `json:"records"`
	ProjectXML string `json:"project_xml,omitempty"`
	Diff       string `json:"diff,omitempty"`
	Output     string `json:"output,omitempty"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <records.json>",
		Short: "Apply log records to a project file",
		Long: `Apply a JSON array of log records to a GanttProject file and print the
updated file, or with --diff a unified diff against the original.

Examples:
  colloboque apply --project plan.gan records.json
  colloboque apply --project plan.gan --diff records.json
  colloboque apply --project plan.gan -o updated.gan records.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Project, "project", "p", "", "project file to update (required)")
	_ = cmd.MarkFlagRequired("project")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the updated file here instead of printing it")
	cmd.Flags().BoolVar(&opts.Diff, "diff", false, "print a unified diff instead of the updated file")
	return cmd
}

func runApply(opts *ApplyOptions, recordsPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	original, err := os.ReadFile(opts.Project)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, "failed to read project file", err)
	}
	records, err := loadRecords(recordsPath, cmd)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeInput, "failed to read records", err)
	}
	formatter.VerboseLog("Applying %d record(s) to %s", len(records), opts.Project)

	updated, err := updater.ApplyAll(context.Background(), string(original), records)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeProject, "failed to apply records", err)
	}

	result := ApplyResult{Records: len(records)}
	var text string
	switch {
	case opts.Diff:
		diff, err := unifiedDiff(opts.Project, string(original), updated)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeProject, "failed to diff project file", err)
		}
		result.Diff, text = diff, diff
	case opts.Output != "":
		if err := os.WriteFile(opts.Output, []byte(updated), 0o644); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInput, "failed to write project file", err)
		}
		result.Output = opts.Output
		text = fmt.Sprintf("Wrote %s (%d record(s) applied)\n", opts.Output, len(records))
	default:
		result.ProjectXML, text = updated, updated
	}
	return formatter.Success(result, text)
}

func unifiedDiff(name, before, after string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: name,
		ToFile:   name + " (updated)",
		Context:  2,
	})
}
