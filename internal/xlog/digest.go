package xlog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Digest returns a content hash of the record.
//
// Strings are NFC-normalized before hashing, so records that differ only in
// Unicode composition (for example text typed on different platforms) share
// a digest. The digest is an identity, not a serialization: the stored and
// replayed form of a record is always MarshalRecord, unnormalized.
func (r Record) Digest() (string, error) {
	data, err := MarshalRecord(normalizeRecord(r))
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func normalizeRecord(r Record) Record {
	ops := make([]Operation, len(r.Operations))
	for i, op := range r.Operations {
		ops[i] = normalizeOperation(op)
	}
	return Record{Operations: ops}
}

func normalizeOperation(op Operation) Operation {
	switch o := op.(type) {
	case Insert:
		return Insert{Table: o.Table, Values: normalizeValues(o.Values)}
	case Update:
		return Update{
			Table:       o.Table,
			BinaryConds: normalizeBinary(o.BinaryConds),
			RangeConds:  normalizeRange(o.RangeConds),
			NewValues:   normalizeValues(o.NewValues),
		}
	case Delete:
		return Delete{Table: o.Table, BinaryConds: normalizeBinary(o.BinaryConds), RangeConds: normalizeRange(o.RangeConds)}
	case Merge:
		return Merge{
			Table:                o.Table,
			BinaryConds:          normalizeBinary(o.BinaryConds),
			RangeConds:           normalizeRange(o.RangeConds),
			WhenMatchedUpdate:    normalizeValues(o.WhenMatchedUpdate),
			WhenNotMatchedInsert: normalizeValues(o.WhenNotMatchedInsert),
		}
	default:
		// MarshalRecord reports unknown variants.
		return op
	}
}

func normalizeValues(vs Values) Values {
	if vs == nil {
		return nil
	}
	out := make(Values, len(vs))
	for k, v := range vs {
		if v.Valid {
			v.String = norm.NFC.String(v.String)
		}
		out[k] = v
	}
	return out
}

func normalizeBinary(conds []BinaryCond) []BinaryCond {
	out := make([]BinaryCond, len(conds))
	for i, c := range conds {
		c.Value = norm.NFC.String(c.Value)
		out[i] = c
	}
	return out
}

func normalizeRange(conds []RangeCond) []RangeCond {
	out := make([]RangeCond, len(conds))
	for i, c := range conds {
		values := make([]string, len(c.Values))
		for j, v := range c.Values {
			values[j] = norm.NFC.String(v)
		}
		c.Values = values
		out[i] = c
	}
	return out
}
