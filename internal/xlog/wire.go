package xlog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var wireSchema string

// Wire definitions in schema.cue.
const (
	DefInitRecord = "#InitRecord"
	DefClientXlog = "#ClientXlog"
	DefInputXlog  = "#InputXlog"
	DefRecord     = "#Record"
)

// Validator checks raw client JSON against the embedded CUE wire schema
// before it is decoded. It is safe for concurrent use.
type Validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

// NewValidator compiles the wire schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(wireSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile wire schema: %s", errors.Details(err, nil))
	}
	return &Validator{ctx: ctx, schema: schema}, nil
}

// Validate unifies data with the named definition and requires the result
// to be concrete.
func (v *Validator) Validate(def string, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	schema := v.schema.LookupPath(cue.ParsePath(def))
	if !schema.Exists() {
		return fmt.Errorf("unknown wire definition %s", def)
	}
	value := v.ctx.CompileBytes(data, cue.Filename(def+".json"))
	if err := value.Err(); err != nil {
		return fmt.Errorf("parse %s: %s", def, firstError(err))
	}
	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid %s: %s", def, firstError(err))
	}
	return nil
}

// DecodeInputXlog validates and decodes an InputXlog.
func (v *Validator) DecodeInputXlog(data []byte) (InputXlog, error) {
	var in InputXlog
	if err := v.decode(DefInputXlog, data, &in); err != nil {
		return InputXlog{}, err
	}
	return in, nil
}

// DecodeInitRecord validates and decodes an InitRecord.
func (v *Validator) DecodeInitRecord(data []byte) (InitRecord, error) {
	var in InitRecord
	if err := v.decode(DefInitRecord, data, &in); err != nil {
		return InitRecord{}, err
	}
	return in, nil
}

// DecodeRecords validates and decodes a JSON array of records.
func (v *Validator) DecodeRecords(data []byte) ([]Record, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	records := make([]Record, 0, len(raws))
	for i, raw := range raws {
		var r Record
		if err := v.decode(DefRecord, raw, &r); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, r)
	}
	return records, nil
}

func (v *Validator) decode(def string, data []byte, out any) error {
	if err := v.Validate(def, data); err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", def, err)
	}
	return nil
}

// firstError reports the first CUE error with its position, if any.
func firstError(err error) string {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	first := errs[0]
	if pos := errors.Positions(first); len(pos) > 0 && pos[0].IsValid() {
		return fmt.Sprintf("%s: %s", pos[0], first.Error())
	}
	return first.Error()
}
