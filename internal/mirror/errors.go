package mirror

import (
	"errors"
	"fmt"
)

// Error is returned by every mirror operation that fails.
type Error struct {
	// Op names the failed operation, e.g. "insert task".
	Op string
	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mirror: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrTxnState is wrapped by errors from misuse of a Txn.
var ErrTxnState = errors.New("invalid transaction state")

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
