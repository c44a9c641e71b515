package engine

import (
	"errors"
	"fmt"
)

// Illegal-transition errors. All recoverable: the caller reports them to
// the end user and the stored session is left unchanged.
var (
	ErrAlreadyInSession = errors.New("a session is already in progress")
	ErrNotActive        = errors.New("session is not active")
	ErrNotPaused        = errors.New("session is not paused")
	ErrNoSession        = errors.New("no session in progress")
)

// StoreError wraps a failed session or aggregate store call. Transient:
// the caller may retry the whole operation; the engine never retries
// internally.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
