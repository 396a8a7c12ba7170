package xlog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Operation type discriminators used on the wire.
const (
	typeInsert = "insert"
	typeUpdate = "update"
	typeDelete = "delete"
	typeMerge  = "merge"
)

// operationJSON is the tagged wire form shared by all variants.
// Field order is fixed, so encoding is deterministic.
type operationJSON struct {
	Type                 string       `json:"type"`
	Table                string       `json:"table"`
	Values               Values       `json:"values,omitempty"`
	BinaryConds          []BinaryCond `json:"binaryConditions,omitempty"`
	RangeConds           []RangeCond  `json:"rangeConditions,omitempty"`
	NewValues            Values       `json:"newValues,omitempty"`
	WhenMatchedUpdate    Values       `json:"whenMatchedUpdate,omitempty"`
	WhenNotMatchedInsert Values       `json:"whenNotMatchedInsert,omitempty"`
}

type recordJSON struct {
	Operations []json.RawMessage `json:"operations"`
}

// MarshalOperation encodes op as tagged JSON.
func MarshalOperation(op Operation) ([]byte, error) {
	var w operationJSON
	switch o := op.(type) {
	case Insert:
		w = operationJSON{Type: typeInsert, Table: o.Table, Values: o.Values}
	case Update:
		w = operationJSON{Type: typeUpdate, Table: o.Table, BinaryConds: o.BinaryConds, RangeConds: o.RangeConds, NewValues: o.NewValues}
	case Delete:
		w = operationJSON{Type: typeDelete, Table: o.Table, BinaryConds: o.BinaryConds, RangeConds: o.RangeConds}
	case Merge:
		w = operationJSON{
			Type:                 typeMerge,
			Table:                o.Table,
			BinaryConds:          o.BinaryConds,
			RangeConds:           o.RangeConds,
			WhenMatchedUpdate:    o.WhenMatchedUpdate,
			WhenNotMatchedInsert: o.WhenNotMatchedInsert,
		}
	default:
		return nil, fmt.Errorf("unsupported operation type: %T", op)
	}
	return encode(w)
}

// UnmarshalOperation decodes tagged JSON produced by MarshalOperation.
func UnmarshalOperation(data []byte) (Operation, error) {
	var w operationJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode operation: %w", err)
	}
	switch w.Type {
	case typeInsert:
		return Insert{Table: w.Table, Values: orEmpty(w.Values)}, nil
	case typeUpdate:
		return Update{Table: w.Table, BinaryConds: w.BinaryConds, RangeConds: w.RangeConds, NewValues: orEmpty(w.NewValues)}, nil
	case typeDelete:
		return Delete{Table: w.Table, BinaryConds: w.BinaryConds, RangeConds: w.RangeConds}, nil
	case typeMerge:
		return Merge{
			Table:                w.Table,
			BinaryConds:          w.BinaryConds,
			RangeConds:           w.RangeConds,
			WhenMatchedUpdate:    orEmpty(w.WhenMatchedUpdate),
			WhenNotMatchedInsert: orEmpty(w.WhenNotMatchedInsert),
		}, nil
	default:
		return nil, fmt.Errorf("unknown operation type %q", w.Type)
	}
}

// MarshalJSON encodes the record as {"operations":[...]}.
func (r Record) MarshalJSON() ([]byte, error) {
	ops := make([]json.RawMessage, 0, len(r.Operations))
	for i, op := range r.Operations {
		data, err := MarshalOperation(op)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		ops = append(ops, data)
	}
	return encode(recordJSON{Operations: ops})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var w recordJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	ops := make([]Operation, 0, len(w.Operations))
	for i, raw := range w.Operations {
		op, err := UnmarshalOperation(raw)
		if err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
		ops = append(ops, op)
	}
	r.Operations = ops
	return nil
}

// MarshalRecord is json.Marshal for a Record without HTML escaping.
func MarshalRecord(r Record) ([]byte, error) {
	return r.MarshalJSON()
}

// UnmarshalRecord decodes a record produced by MarshalRecord.
func UnmarshalRecord(data []byte) (Record, error) {
	var r Record
	if err := r.UnmarshalJSON(data); err != nil {
		return Record{}, err
	}
	return r, nil
}

func orEmpty(vs Values) Values {
	if vs == nil {
		return Values{}
	}
	return vs
}

// encode is json.Marshal with HTML escaping disabled.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Marshal is json.Marshal with HTML escaping disabled. Use it for every
// value that embeds records so that nested record JSON is not re-escaped.
func Marshal(v any) ([]byte, error) {
	return encode(v)
}
