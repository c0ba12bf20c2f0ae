package rag

import "fmt"

// StoreError wraps a vector-store failure with the operation that produced
// it. Store failures are terminal for the current operation — the store
// performs no internal retries; callers decide whether to fall back.
type StoreError struct {
	// Op names the failed operation ("upsert", "query", "delete", "count").
	Op string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("rag: vector store %s failed: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *StoreError) Unwrap() error { return e.Err }

// storeErr is a small constructor helper used by store implementations.
func storeErr(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}
