package sqlgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ganttproject/colloboque/internal/xlog"
)

// Generate renders op as one SQL statement text for dialect d.
//
// Malformed operations (see xlog.Validate) and unknown dialects are
// reported as errors.
func Generate(d Dialect, op xlog.Operation) (string, error) {
	if d != Postgres && d != SQLite {
		return "", fmt.Errorf("unsupported dialect: %v", d)
	}
	if err := xlog.Validate(op); err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	switch o := op.(type) {
	case xlog.Insert:
		return generateInsert(o), nil
	case xlog.Update:
		return generateUpdate(o), nil
	case xlog.Delete:
		return generateDelete(o), nil
	case xlog.Merge:
		if d == SQLite {
			return generateSQLiteMerge(o), nil
		}
		return generatePostgresMerge(o), nil
	default:
		return "", fmt.Errorf("unsupported operation type: %T", op)
	}
}

// GenerateRecord renders every operation of rec in order.
func GenerateRecord(d Dialect, rec xlog.Record) ([]string, error) {
	stmts := make([]string, 0, len(rec.Operations))
	for i, op := range rec.Operations {
		sql, err := Generate(d, op)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		stmts = append(stmts, sql)
	}
	return stmts, nil
}

func generateInsert(o xlog.Insert) string {
	cols, vals := columnsAndValues(o.Values)
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", ident(o.Table), cols, vals)
}

func generateUpdate(o xlog.Update) string {
	return fmt.Sprintf("UPDATE %s SET %s%s",
		ident(o.Table),
		assignments(o.NewValues),
		whereClause(o.BinaryConds, o.RangeConds))
}

func generateDelete(o xlog.Delete) string {
	return fmt.Sprintf("DELETE FROM %s%s", ident(o.Table), whereClause(o.BinaryConds, o.RangeConds))
}

// generatePostgresMerge renders a native MERGE keyed on an empty one-row
// source, so the ON conditions alone decide matched vs not matched.
func generatePostgresMerge(o xlog.Merge) string {
	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s USING (SELECT 1) AS one ON (%s)",
		ident(o.Table), conditions(o.BinaryConds, o.RangeConds))
	if len(o.WhenMatchedUpdate) > 0 {
		fmt.Fprintf(&b, " WHEN MATCHED THEN UPDATE SET %s", assignments(o.WhenMatchedUpdate))
	} else {
		b.WriteString(" WHEN MATCHED THEN DO NOTHING")
	}
	cols, vals := columnsAndValues(o.WhenNotMatchedInsert)
	fmt.Fprintf(&b, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)", cols, vals)
	return b.String()
}

// generateSQLiteMerge emulates MERGE. The guarded INSERT runs first and
// the UPDATE only fires when it inserted nothing, so exactly one branch
// applies even when the update rewrites a column the conditions match on.
// changes() still reports the INSERT while the UPDATE runs.
func generateSQLiteMerge(o xlog.Merge) string {
	table := ident(o.Table)
	conds := conditions(o.BinaryConds, o.RangeConds)

	var b strings.Builder
	cols, vals := columnsAndValues(o.WhenNotMatchedInsert)
	fmt.Fprintf(&b, "INSERT INTO %s (%s) SELECT %s WHERE NOT EXISTS (SELECT 1 FROM %s WHERE %s)",
		table, cols, vals, table, conds)
	if len(o.WhenMatchedUpdate) > 0 {
		fmt.Fprintf(&b, "; UPDATE %s SET %s WHERE (%s) AND changes() = 0",
			table, assignments(o.WhenMatchedUpdate), conds)
	}
	return b.String()
}

// ident lower-cases an identifier. Validation guarantees it needs no quoting.
func ident(name string) string {
	return strings.ToLower(name)
}

// literal renders a value as a quoted SQL literal or the null keyword.
func literal(v xlog.Value) string {
	if v.IsNull() {
		return "null"
	}
	return quote(v.String)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// sortedColumns returns lower-cased column names in ascending order, paired
// with their values.
func sortedColumns(vs xlog.Values) ([]string, map[string]xlog.Value) {
	lowered := make(map[string]xlog.Value, len(vs))
	for k, v := range vs {
		lowered[ident(k)] = v
	}
	names := make([]string, 0, len(lowered))
	for k := range lowered {
		names = append(names, k)
	}
	sort.Strings(names)
	return names, lowered
}

func columnsAndValues(vs xlog.Values) (string, string) {
	names, lowered := sortedColumns(vs)
	vals := make([]string, len(names))
	for i, n := range names {
		vals[i] = literal(lowered[n])
	}
	return strings.Join(names, ", "), strings.Join(vals, ", ")
}

func assignments(vs xlog.Values) string {
	names, lowered := sortedColumns(vs)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + " = " + literal(lowered[n])
	}
	return strings.Join(parts, ", ")
}

var binaryOps = map[xlog.BinaryPred]string{
	xlog.EQ: "=",
	xlog.GT: ">",
	xlog.LT: "<",
	xlog.LE: "<=",
	xlog.GE: ">=",
}

// conditions joins all conditions with AND, binary ones first. With no
// conditions it yields an always-true predicate.
func conditions(binary []xlog.BinaryCond, ranged []xlog.RangeCond) string {
	parts := make([]string, 0, len(binary)+len(ranged))
	for _, c := range binary {
		parts = append(parts, fmt.Sprintf("%s %s %s", ident(c.Column), binaryOps[c.Pred], quote(c.Value)))
	}
	for _, c := range ranged {
		parts = append(parts, rangeCondition(c))
	}
	if len(parts) == 0 {
		return "1 = 1"
	}
	return strings.Join(parts, " AND ")
}

// rangeCondition renders IN / NOT IN. An empty list matches nothing for IN
// and everything for NOT IN.
func rangeCondition(c xlog.RangeCond) string {
	if len(c.Values) == 0 {
		if c.Pred == xlog.In {
			return "1 = 0"
		}
		return "1 = 1"
	}
	quoted := make([]string, len(c.Values))
	for i, v := range c.Values {
		quoted[i] = quote(v)
	}
	op := "IN"
	if c.Pred == xlog.NotIn {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", ident(c.Column), op, strings.Join(quoted, ", "))
}

func whereClause(binary []xlog.BinaryCond, ranged []xlog.RangeCond) string {
	if len(binary) == 0 && len(ranged) == 0 {
		return ""
	}
	return " WHERE " + conditions(binary, ranged)
}
