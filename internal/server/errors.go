package server

import (
	"errors"
	"fmt"
)

// CommitError is why a submitted transaction was not committed. Message
// is what the client is told.
type CommitError struct {
	Code    CommitErrorCode
	Message string
	Project string
	Err     error
}

// CommitErrorCode categorizes commit failures.
type CommitErrorCode string

const (
	// ErrCodeEmptyTransaction: the submission carried no operations.
	ErrCodeEmptyTransaction CommitErrorCode = "EMPTY_TRANSACTION"

	// ErrCodeBaseMismatch: the client is based on a transaction the server
	// cannot build on.
	ErrCodeBaseMismatch CommitErrorCode = "BASE_MISMATCH"

	// ErrCodeMergeRejected: the client is behind and its changes conflict
	// with the server's.
	ErrCodeMergeRejected CommitErrorCode = "MERGE_REJECTED"

	// ErrCodeUnknownProject: the project was never initialized.
	ErrCodeUnknownProject CommitErrorCode = "UNKNOWN_PROJECT"

	// ErrCodeStorageFailure: the database failed.
	ErrCodeStorageFailure CommitErrorCode = "STORAGE_FAILURE"
)

func (e *CommitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (project=%s): %v", e.Code, e.Message, e.Project, e.Err)
	}
	return fmt.Sprintf("%s: %s (project=%s)", e.Code, e.Message, e.Project)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// IsBaseMismatch reports whether err says the client must resync.
func IsBaseMismatch(err error) bool {
	var ce *CommitError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeBaseMismatch || ce.Code == ErrCodeMergeRejected
	}
	return false
}

// IsStorageFailure reports whether err was caused by the database.
func IsStorageFailure(err error) bool {
	var ce *CommitError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeStorageFailure
	}
	return false
}
