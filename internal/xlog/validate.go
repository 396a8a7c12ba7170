package xlog

import (
	"fmt"
	"regexp"
	"strings"
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdentifier reports whether name is usable as a table or column name
// once lower-cased.
func ValidIdentifier(name string) bool {
	return identPattern.MatchString(strings.ToLower(name))
}

// Validate checks that op is well formed: known variant, valid identifiers
// and predicates, and no two columns that collide after lower-casing.
// It performs no semantic checks against any schema.
func Validate(op Operation) error {
	if op == nil {
		return fmt.Errorf("nil operation")
	}
	if !ValidIdentifier(op.TableName()) {
		return fmt.Errorf("invalid table name %q", op.TableName())
	}

	switch o := op.(type) {
	case Insert:
		if len(o.Values) == 0 {
			return fmt.Errorf("insert into %s: no values", o.Table)
		}
		return validateValues("insert", o.Values)
	case Update:
		if len(o.NewValues) == 0 {
			return fmt.Errorf("update %s: no new values", o.Table)
		}
		if err := validateConds(o.BinaryConds, o.RangeConds); err != nil {
			return fmt.Errorf("update %s: %w", o.Table, err)
		}
		return validateValues("update", o.NewValues)
	case Delete:
		if err := validateConds(o.BinaryConds, o.RangeConds); err != nil {
			return fmt.Errorf("delete from %s: %w", o.Table, err)
		}
		return nil
	case Merge:
		if len(o.WhenNotMatchedInsert) == 0 {
			return fmt.Errorf("merge into %s: no insert values", o.Table)
		}
		if err := validateConds(o.BinaryConds, o.RangeConds); err != nil {
			return fmt.Errorf("merge into %s: %w", o.Table, err)
		}
		if err := validateValues("merge update", o.WhenMatchedUpdate); err != nil {
			return err
		}
		return validateValues("merge insert", o.WhenNotMatchedInsert)
	default:
		return fmt.Errorf("unsupported operation type: %T", op)
	}
}

// Validate checks every operation of the record.
func (r Record) Validate() error {
	for i, op := range r.Operations {
		if err := Validate(op); err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
	}
	return nil
}

func validateValues(what string, vs Values) error {
	seen := make(map[string]string, len(vs))
	for _, k := range vs.SortedKeys() {
		if !ValidIdentifier(k) {
			return fmt.Errorf("%s: invalid column name %q", what, k)
		}
		lower := strings.ToLower(k)
		if prev, ok := seen[lower]; ok {
			return fmt.Errorf("%s: columns %q and %q collide", what, prev, k)
		}
		seen[lower] = k
	}
	return nil
}

func validateConds(binary []BinaryCond, ranged []RangeCond) error {
	for _, c := range binary {
		if !ValidIdentifier(c.Column) {
			return fmt.Errorf("invalid condition column %q", c.Column)
		}
		if !c.Pred.Valid() {
			return fmt.Errorf("unknown binary predicate %q", c.Pred)
		}
	}
	for _, c := range ranged {
		if !ValidIdentifier(c.Column) {
			return fmt.Errorf("invalid condition column %q", c.Column)
		}
		if !c.Pred.Valid() {
			return fmt.Errorf("unknown range predicate %q", c.Pred)
		}
	}
	return nil
}
