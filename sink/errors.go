package sink

import (
	"errors"
	"fmt"
)

// ErrIllegalPhase matches every PhaseError.
var ErrIllegalPhase = errors.New("illegal lifecycle phase")

// PhaseError reports a lifecycle call made in a phase where it is not allowed.
// It indicates a programming error in the caller, not a recoverable fault.
type PhaseError struct {
	Op     string
	Phase  Phase
	Reason string
}

func (e *PhaseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("sink %s called in phase %s: %s", e.Op, e.Phase, e.Reason)
	}
	return fmt.Sprintf("sink %s called in phase %s", e.Op, e.Phase)
}

func (e *PhaseError) Is(target error) bool {
	return target == ErrIllegalPhase
}

// InitializationError means the writer could not acquire the resources it needs
// to start. It is fatal for the subtask.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return "sink initialization failed: " + e.Err.Error()
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}

// RestoreError means recovered checkpoint state was malformed or incompatible.
// It is fatal and must not be retried with the same state.
type RestoreError struct {
	Err error
}

func (e *RestoreError) Error() string {
	return "sink restore failed: " + e.Err.Error()
}

func (e *RestoreError) Unwrap() error {
	return e.Err
}

// WriteError fails the task instance. The engine restarts it from the last
// completed checkpoint.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return "sink write failed: " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// FlushError aborts the current checkpoint attempt. The task keeps running
// unless Fatal is set.
type FlushError struct {
	Err   error
	Fatal bool
}

func (e *FlushError) Error() string {
	if e.Fatal {
		return "sink flush failed (fatal): " + e.Err.Error()
	}
	return "sink flush failed: " + e.Err.Error()
}

func (e *FlushError) Unwrap() error {
	return e.Err
}

func NewInitializationError(err error) *InitializationError {
	return &InitializationError{Err: err}
}

func NewRestoreError(err error) *RestoreError {
	return &RestoreError{Err: err}
}

func NewWriteError(err error) *WriteError {
	return &WriteError{Err: err}
}

func NewFlushError(err error, fatal bool) *FlushError {
	return &FlushError{Err: err, Fatal: fatal}
}

// IsFatal reports whether err must fail the task. Only a FlushError that is
// not marked fatal lets the task continue.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var flushErr *FlushError
	if errors.As(err, &flushErr) {
		return flushErr.Fatal
	}
	return true
}

// classified reports whether err already carries one of the sink error types.
func classified(err error) bool {
	var (
		initErr    *InitializationError
		restoreErr *RestoreError
		writeErr   *WriteError
		flushErr   *FlushError
		phaseErr   *PhaseError
	)
	return errors.As(err, &initErr) ||
		errors.As(err, &restoreErr) ||
		errors.As(err, &writeErr) ||
		errors.As(err, &flushErr) ||
		errors.As(err, &phaseErr)
}
