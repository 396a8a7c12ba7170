package xlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	require.NoError(t, err)
	return v
}

func TestDecodeInputXlog(t *testing.T) {
	v := newTestValidator(t)
	data := []byte(`{
		"baseTxnId": 0,
		"userId": "user1",
		"projectRefid": "prj",
		"transactions": [
			{"operations": [
				{"type": "update", "table": "task",
				 "binaryConditions": [{"column": "uid", "pred": "EQ", "value": "qwerty"}],
				 "newValues": {"name": "Task2", "notes": null}}
			]}
		],
		"clientTrackingCode": "abc"
	}`)

	in, err := v.DecodeInputXlog(data)
	require.NoError(t, err)
	assert.Equal(t, "prj", in.ProjectRefid)
	require.Len(t, in.Transactions, 1)
	require.Len(t, in.Transactions[0].Operations, 1)

	upd, ok := in.Transactions[0].Operations[0].(Update)
	require.True(t, ok)
	assert.Equal(t, V("Task2"), upd.NewValues["name"])
	assert.True(t, upd.NewValues["notes"].IsNull())
}

func TestValidatorRejects(t *testing.T) {
	v := newTestValidator(t)
	tests := []struct {
		name string
		def  string
		data string
	}{
		{"unknown operation type", DefRecord, `{"operations":[{"type":"truncate","table":"task"}]}`},
		{"bad identifier", DefRecord, `{"operations":[{"type":"delete","table":"task; drop"}]}`},
		{"bad predicate", DefRecord, `{"operations":[{"type":"delete","table":"t","binaryConditions":[{"column":"a","pred":"LIKE","value":"x"}]}]}`},
		{"numeric value", DefRecord, `{"operations":[{"type":"insert","table":"t","values":{"a":1}}]}`},
		{"negative base", DefInputXlog, `{"baseTxnId":-1,"userId":"u","projectRefid":"p","transactions":[]}`},
		{"missing refid", DefInputXlog, `{"baseTxnId":0,"userId":"u","projectRefid":"","transactions":[]}`},
		{"client batch without refid", DefClientXlog, `{"userId":"u","projectRefid":"","xlogRecords":[]}`},
		{"extra field", DefInitRecord, `{"userId":"u","projectRefid":"p","payload":"","extra":1}`},
		{"not json", DefInitRecord, `{"userId":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, v.Validate(tt.def, []byte(tt.data)))
		})
	}
}

func TestValidatorUnknownDefinition(t *testing.T) {
	v := newTestValidator(t)
	err := v.Validate("#Nope", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown wire definition")
}

func TestDecodeRecords(t *testing.T) {
	v := newTestValidator(t)
	recs, err := v.DecodeRecords([]byte(`[
		{"operations":[{"type":"insert","table":"task","values":{"uid":"a"}}]},
		{"operations":[]}
	]`))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[1].Empty())
}

func TestDecodeInitRecord(t *testing.T) {
	v := newTestValidator(t)
	rec, err := v.DecodeInitRecord([]byte(`{"userId":"u","projectRefid":"p","payload":"<project/>"}`))
	require.NoError(t, err)
	assert.Equal(t, "<project/>", rec.Payload)
}
