package xlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestNormalizesUnicode(t *testing.T) {
	composed := NewRecord(Insert{Table: "task", Values: Values{"name": V("caf\u00e9")}})
	decomposed := NewRecord(Insert{Table: "task", Values: Values{"name": V("cafe\u0301")}})

	a, err := composed.Digest()
	require.NoError(t, err)
	b, err := decomposed.Digest()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestDigestDistinguishesContent(t *testing.T) {
	a, err := NewRecord(Insert{Table: "task", Values: Values{"name": V("a")}}).Digest()
	require.NoError(t, err)
	b, err := NewRecord(Insert{Table: "task", Values: Values{"name": Null}}).Digest()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDigestKeepsStoredFormUnnormalized(t *testing.T) {
	rec := NewRecord(Insert{Table: "task", Values: Values{"name": V("cafe\u0301")}})
	_, err := rec.Digest()
	require.NoError(t, err)

	data, err := MarshalRecord(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cafe\u0301")
}
