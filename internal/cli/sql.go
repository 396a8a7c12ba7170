package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ganttproject/colloboque/internal/sqlgen"
	"github.com/ganttproject/colloboque/internal/xlog"
)

// SQLOptions holds flags for the sql command.
type SQLOptions struct {
	*RootOptions
	Dialect string
}

// SQLResult is the JSON payload of the sql command.
type SQLResult struct {
	Dialect    string     `json:"dialect"`
	Statements [][]string `json:"statements"` // per record
}

// NewSQLCommand creates the sql command.
func NewSQLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SQLOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sql <records.json>",
		Short: "Print the SQL a list of log records executes",
		Long: `Validate a JSON array of log records and print the statements each
record runs, in order. Use "-" to read the records from standard input.

Examples:
  colloboque sql records.json
  colloboque sql --dialect sqlite - < records.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSQL(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dialect, "dialect", "postgres", "SQL dialect (postgres|sqlite)")
	return cmd
}

func runSQL(opts *SQLOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	dialect, err := sqlgen.ParseDialect(opts.Dialect)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid dialect", err)
	}
	records, err := loadRecords(path, cmd)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeInput, "failed to read records", err)
	}
	formatter.VerboseLog("Loaded %d record(s) from %s", len(records), path)

	result := SQLResult{Dialect: dialect.String(), Statements: make([][]string, 0, len(records))}
	var text strings.Builder
	for i, rec := range records {
		stmts, err := sqlgen.GenerateRecord(dialect, rec)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeRecords, fmt.Sprintf("record %d", i), err)
		}
		result.Statements = append(result.Statements, stmts)
		fmt.Fprintf(&text, "-- record %d\n", i)
		for _, s := range stmts {
			text.WriteString(s)
			text.WriteString(";\n")
		}
	}
	return formatter.Success(result, text.String())
}

// loadRecords reads and validates a JSON array of records.
func loadRecords(path string, cmd *cobra.Command) ([]xlog.Record, error) {
	data, err := readInput(path, cmd.InOrStdin())
	if err != nil {
		return nil, err
	}
	v, err := xlog.NewValidator()
	if err != nil {
		return nil, err
	}
	return v.DecodeRecords(data)
}
