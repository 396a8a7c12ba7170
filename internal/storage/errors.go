package storage

import "fmt"

// Error is returned by every Postgres storage operation that fails.
type Error struct {
	Op      string
	Project string
	Err     error
}

func (e *Error) Error() string {
	if e.Project == "" {
		return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Project, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op, refid string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Project: refid, Err: err}
}
