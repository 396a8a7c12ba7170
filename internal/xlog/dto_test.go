package xlog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputXlogFieldNames(t *testing.T) {
	in := InputXlog{
		BaseTxnID:          3,
		UserID:             "user1",
		ProjectRefid:       "prj",
		Transactions:       []Record{NewRecord(Delete{Table: "task", BinaryConds: []BinaryCond{Eq("uid", "a")}})},
		ClientTrackingCode: "abc",
	}
	data, err := Marshal(in)
	require.NoError(t, err)
	assert.Equal(t,
		`{"baseTxnId":3,"userId":"user1","projectRefid":"prj","transactions":[{"operations":[{"type":"delete","table":"task","binaryConditions":[{"column":"uid","pred":"EQ","value":"a"}]}]}],"clientTrackingCode":"abc"}`,
		string(data))

	var decoded InputXlog
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, in, decoded)
}

func TestServerResponseRoundTrip(t *testing.T) {
	commit := CommitResponse{
		BaseTxnID:          1,
		NewBaseTxnID:       2,
		ProjectRefid:       "prj",
		LogRecords:         []Record{NewRecord(Insert{Table: "task", Values: Values{"uid": V("x")}})},
		ClientTrackingCode: "code",
	}
	data, err := MarshalServerResponse(commit)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"commit"`)

	decoded, err := UnmarshalServerResponse(data)
	require.NoError(t, err)
	assert.Equal(t, commit, decoded)

	errResp := ErrorResponse{BaseTxnID: 5, ProjectRefid: "prj", Message: "Empty transactions not allowed"}
	data, err = MarshalServerResponse(errResp)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"error","baseTxnId":5,"projectRefid":"prj","message":"Empty transactions not allowed"}`, string(data))

	decoded, err = UnmarshalServerResponse(data)
	require.NoError(t, err)
	assert.Equal(t, errResp, decoded)
	assert.Equal(t, "prj", decoded.Refid())
}

func TestUnmarshalServerResponseUnknownType(t *testing.T) {
	_, err := UnmarshalServerResponse([]byte(`{"type":"ack"}`))
	require.Error(t, err)
}

func TestNewTrackingCode(t *testing.T) {
	code := NewTrackingCode()
	assert.Len(t, code, 32)
	assert.NotContains(t, code, "-")
	assert.NotEqual(t, code, NewTrackingCode())
}
