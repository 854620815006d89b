package sinktest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"reduction.dev/ckptsink/sink"
)

// RecordingWriter is a sink.Writer that records every call it receives. Records
// written move from Pending to Delivered on a successful Flush. Snapshots are
// the JSON encoding of the pending records.
type RecordingWriter[T any] struct {
	// Errors returned by the corresponding operation when set.
	OpenErr     error
	WriteErr    error
	RestoreErr  error
	SnapshotErr error
	CloseErr    error

	// FlushGate, when set, blocks Flush until it receives a value.
	FlushGate chan struct{}

	mu        sync.Mutex
	calls     []string
	flushErrs []error
	identity  sink.SubtaskIdentity
	Pending   []T
	Delivered []T
}

// FailNextFlush makes the next Flush call return err and keep records pending.
func (w *RecordingWriter[T]) FailNextFlush(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushErrs = append(w.flushErrs, err)
}

// Calls returns the names of the operations called so far, in order.
func (w *RecordingWriter[T]) Calls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.calls...)
}

func (w *RecordingWriter[T]) Identity() sink.SubtaskIdentity {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.identity
}

func (w *RecordingWriter[T]) record(call string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, call)
}

func (w *RecordingWriter[T]) Open(ctx context.Context, identity sink.SubtaskIdentity) error {
	w.record("Open")
	w.mu.Lock()
	defer w.mu.Unlock()
	w.identity = identity
	return w.OpenErr
}

func (w *RecordingWriter[T]) Write(ctx context.Context, record T) error {
	w.record("Write")
	if w.WriteErr != nil {
		return w.WriteErr
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Pending = append(w.Pending, record)
	return nil
}

func (w *RecordingWriter[T]) Flush(ctx context.Context) error {
	w.record("Flush")
	if w.FlushGate != nil {
		select {
		case <-w.FlushGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.flushErrs) > 0 {
		err := w.flushErrs[0]
		w.flushErrs = w.flushErrs[1:]
		return err
	}
	w.Delivered = append(w.Delivered, w.Pending...)
	w.Pending = nil
	w.calls = append(w.calls, "FlushDone")
	return nil
}

func (w *RecordingWriter[T]) SnapshotState(ctx context.Context) (sink.CheckpointState, error) {
	w.record("SnapshotState")
	if w.SnapshotErr != nil {
		return nil, w.SnapshotErr
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	pending := w.Pending
	if pending == nil {
		pending = []T{}
	}
	data, err := json.Marshal(pending)
	if err != nil {
		return nil, fmt.Errorf("RecordingWriter.SnapshotState: %w", err)
	}
	return data, nil
}

func (w *RecordingWriter[T]) RestoreState(ctx context.Context, state sink.CheckpointState) error {
	w.record("RestoreState")
	if w.RestoreErr != nil {
		return w.RestoreErr
	}
	var pending []T
	if err := json.Unmarshal(state, &pending); err != nil {
		return fmt.Errorf("RecordingWriter.RestoreState: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Pending = append(pending, w.Pending...)
	return nil
}

func (w *RecordingWriter[T]) Close() error {
	w.record("Close")
	return w.CloseErr
}

var _ sink.Writer[string] = (*RecordingWriter[string])(nil)
