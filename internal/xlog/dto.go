package xlog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// InitRecord asks the server to initialize a project from a serialized
// project file.
type InitRecord struct {
	UserID       string `json:"userId"`
	ProjectRefid string `json:"projectRefid"`
	Payload      string `json:"payload"`
}

// ClientXlog is a batch of local transactions sent by a client.
type ClientXlog struct {
	UserID       string   `json:"userId"`
	ProjectRefid string   `json:"projectRefid"`
	XlogRecords  []Record `json:"xlogRecords"`
}

// InputXlog is a client's request to commit transactions on top of
// BaseTxnID.
type InputXlog struct {
	BaseTxnID          int64    `json:"baseTxnId"`
	UserID             string   `json:"userId"`
	ProjectRefid       string   `json:"projectRefid"`
	Transactions       []Record `json:"transactions"`
	ClientTrackingCode string   `json:"clientTrackingCode"`
}

// NewTrackingCode returns a random client tracking code.
func NewTrackingCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ServerResponse is the server's answer to an InputXlog.
//
// This is a sealed interface: only CommitResponse and ErrorResponse
// implement it.
type ServerResponse interface {
	serverResponse()

	// Refid returns the project the response belongs to.
	Refid() string
}

// CommitResponse reports that LogRecords were committed, moving the project
// from BaseTxnID to NewBaseTxnID.
type CommitResponse struct {
	BaseTxnID          int64    `json:"baseTxnId"`
	NewBaseTxnID       int64    `json:"newBaseTxnId"`
	ProjectRefid       string   `json:"projectRefid"`
	LogRecords         []Record `json:"logRecords"`
	ClientTrackingCode string   `json:"clientTrackingCode"`
}

// ErrorResponse reports that a submission was not committed.
type ErrorResponse struct {
	BaseTxnID    int64  `json:"baseTxnId"`
	ProjectRefid string `json:"projectRefid"`
	Message      string `json:"message"`
}

func (CommitResponse) serverResponse() {}
func (ErrorResponse) serverResponse()  {}

func (r CommitResponse) Refid() string { return r.ProjectRefid }
func (r ErrorResponse) Refid() string  { return r.ProjectRefid }

// MarshalServerResponse encodes r with a "type" discriminator
// ("commit" or "error").
func MarshalServerResponse(r ServerResponse) ([]byte, error) {
	switch resp := r.(type) {
	case CommitResponse:
		return Marshal(struct {
			Type string `json:"type"`
			CommitResponse
		}{"commit", resp})
	case ErrorResponse:
		return Marshal(struct {
			Type string `json:"type"`
			ErrorResponse
		}{"error", resp})
	default:
		return nil, fmt.Errorf("unsupported server response type: %T", r)
	}
}

// UnmarshalServerResponse decodes output of MarshalServerResponse.
func UnmarshalServerResponse(data []byte) (ServerResponse, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode server response: %w", err)
	}
	switch head.Type {
	case "commit":
		var resp CommitResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("decode commit response: %w", err)
		}
		return resp, nil
	case "error":
		var resp ErrorResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("decode error response: %w", err)
		}
		return resp, nil
	default:
		return nil, fmt.Errorf("unknown server response type %q", head.Type)
	}
}
