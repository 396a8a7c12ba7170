package xlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Value is a nullable textual column value.
//
// The zero Value is NULL. SQL generators render it as the unquoted keyword null
// and everything else as a quoted literal.
type Value struct {
	String string
	Valid  bool
}

// Null is the NULL column value.
var Null = Value{}

// V returns a non-null Value holding s.
func V(s string) Value {
	return Value{String: s, Valid: true}
}

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool {
	return !v.Valid
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return encodeString(v.String)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Null
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("column value must be a string or null: %w", err)
	}
	*v = V(s)
	return nil
}

// Values maps column names to values.
type Values map[string]Value

// SortedKeys returns the column names in ascending byte order.
func (vs Values) SortedKeys() []string {
	keys := make([]string, 0, len(vs))
	for k := range vs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of vs. A nil map clones to nil.
func (vs Values) Clone() Values {
	if vs == nil {
		return nil
	}
	out := make(Values, len(vs))
	for k, v := range vs {
		out[k] = v
	}
	return out
}

// encodeString encodes s as a JSON string without HTML escaping.
func encodeString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
