package mirror

import (
	"context"
	"fmt"
)

// Txn groups mutations into one local transaction. Statements added while a
// Txn is open are held back until Commit. After Commit the Txn can be undone
// and redone, each as a new local transaction.
type Txn struct {
	m     *Mirror
	title string

	stmts     []statement
	undo      []statement
	committed bool
}

// StartTransaction opens a transaction. Only one may be open at a time.
func (m *Mirror) StartTransaction(title string) (*Txn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentTxn != nil {
		return nil, wrap("start transaction", fmt.Errorf("%w: %q not committed", ErrTxnState, m.currentTxn.title))
	}
	m.currentTxn = &Txn{m: m, title: title}
	return m.currentTxn, nil
}

// Title returns the name the transaction was started with.
func (t *Txn) Title() string {
	return t.title
}

// add is called with t.m.mu held.
func (t *Txn) add(stmts, undo []statement) error {
	if t.committed {
		return fmt.Errorf("%w: %q already committed", ErrTxnState, t.title)
	}
	t.stmts = append(t.stmts, stmts...)
	// Groups are undone last first; statements within a group's undo run in
	// the order given. Undo reverses the whole list, so store groups reversed.
	for i := len(undo) - 1; i >= 0; i-- {
		t.undo = append(t.undo, undo[i])
	}
	return nil
}

// Commit executes the collected statements as one local transaction.
// The Txn is closed even if execution fails.
func (t *Txn) Commit(ctx context.Context) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	if t.committed {
		return wrap("commit", fmt.Errorf("%w: %q already committed", ErrTxnState, t.title))
	}
	defer func() { t.m.currentTxn = nil }()
	if err := t.m.commitStatements(ctx, t.stmts); err != nil {
		return wrap("commit", err)
	}
	t.committed = true
	return nil
}

// Rollback discards the collected statements without executing them.
func (t *Txn) Rollback() {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.m.currentTxn == t {
		t.m.currentTxn = nil
	}
}

// Undo reverts a committed transaction.
func (t *Txn) Undo(ctx context.Context) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	if !t.committed {
		return wrap("undo", fmt.Errorf("%w: cannot undo uncommitted %q", ErrTxnState, t.title))
	}
	reversed := make([]statement, len(t.undo))
	for i, s := range t.undo {
		reversed[len(t.undo)-1-i] = s
	}
	return wrap("undo", t.m.commitStatements(ctx, reversed))
}

// Redo re-applies a committed transaction after Undo.
func (t *Txn) Redo(ctx context.Context) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	if !t.committed {
		return wrap("redo", fmt.Errorf("%w: cannot redo uncommitted %q", ErrTxnState, t.title))
	}
	return wrap("redo", t.m.commitStatements(ctx, t.stmts))
}
