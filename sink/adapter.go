package sink

import (
	"context"
	"log/slog"
	"time"
)

// Lifecycle is the part of the adapter driven for every subtask run.
type Lifecycle[T any] interface {
	Open(ctx context.Context, identity SubtaskIdentity) error
	Invoke(ctx context.Context, record T) error
	Close() error
}

// Checkpointable is the part of the adapter driven by checkpoints and
// recovery.
type Checkpointable interface {
	InitializeState(ctx context.Context, state CheckpointState) error
	SnapshotState(ctx context.Context) (CheckpointState, error)
}

// Adapter relays engine lifecycle calls to a Writer. It is driven by a single
// task goroutine and holds no locks.
type Adapter[T any] struct {
	writer        Writer[T]
	identity      SubtaskIdentity
	phase         Phase
	openAttempted bool
	stateDone     bool // InitializeState may no longer be called
	log           *slog.Logger
}

func NewAdapter[T any](w Writer[T]) *Adapter[T] {
	if w == nil {
		panic("sink.NewAdapter requires a non-nil Writer")
	}
	return &Adapter[T]{
		writer: w,
		phase:  PhaseUnopened,
		log:    slog.With("instanceID", "sink"),
	}
}

func (a *Adapter[T]) Phase() Phase {
	return a.phase
}

func (a *Adapter[T]) Identity() SubtaskIdentity {
	return a.identity
}

func (a *Adapter[T]) Open(ctx context.Context, identity SubtaskIdentity) error {
	if a.phase != PhaseUnopened || a.openAttempted {
		return &PhaseError{Op: "Open", Phase: a.phase, Reason: "open may only be called once"}
	}
	a.openAttempted = true

	if err := identity.Validate(); err != nil {
		return NewInitializationError(err)
	}
	a.identity = identity
	a.log = slog.With("instanceID", "sink-"+identity.String())

	if err := a.writer.Open(ctx, identity); err != nil {
		a.log.Error("writer open failed", "err", err)
		if classified(err) {
			return err
		}
		return NewInitializationError(err)
	}

	a.phase = PhaseOpened
	a.log.Info("opened")
	return nil
}

func (a *Adapter[T]) InitializeState(ctx context.Context, state CheckpointState) error {
	if a.phase != PhaseOpened {
		return &PhaseError{Op: "InitializeState", Phase: a.phase}
	}
	if a.stateDone {
		return &PhaseError{Op: "InitializeState", Phase: a.phase, Reason: "state already initialized or records already written"}
	}
	a.stateDone = true

	if state == nil {
		a.log.Info("starting without recovered state")
		return nil
	}

	if err := a.writer.RestoreState(ctx, state); err != nil {
		if classified(err) {
			return err
		}
		return NewRestoreError(err)
	}
	a.log.Info("restored state", "bytes", len(state))
	return nil
}

func (a *Adapter[T]) Invoke(ctx context.Context, record T) error {
	if a.phase != PhaseOpened {
		return &PhaseError{Op: "Invoke", Phase: a.phase}
	}
	a.stateDone = true

	if err := a.writer.Write(ctx, record); err != nil {
		if classified(err) {
			return err
		}
		return NewWriteError(err)
	}
	return nil
}

// SnapshotState flushes the writer to completion before asking it to
// serialize its state. A checkpoint is never produced while records it should
// contain are only held in memory.
func (a *Adapter[T]) SnapshotState(ctx context.Context) (CheckpointState, error) {
	if a.phase != PhaseOpened {
		return nil, &PhaseError{Op: "SnapshotState", Phase: a.phase}
	}
	a.stateDone = true

	start := time.Now()
	if err := a.writer.Flush(ctx); err != nil {
		a.log.Warn("flush failed, abandoning snapshot", "err", err)
		if classified(err) {
			return nil, err
		}
		return nil, NewFlushError(err, false)
	}

	// Flush succeeded, so a state the writer cannot encode is fatal.
	state, err := a.writer.SnapshotState(ctx)
	if err != nil {
		a.log.Error("snapshot state failed", "err", err)
		if classified(err) {
			return nil, err
		}
		return nil, NewFlushError(err, true)
	}

	a.log.Debug("snapshot", "bytes", len(state), "duration", time.Since(start))
	return state, nil
}

// Close releases writer resources. It is safe to call after a failed Open and
// more than once.
func (a *Adapter[T]) Close() error {
	if a.phase == PhaseClosed {
		return nil
	}
	releaseWriter := a.phase == PhaseOpened || a.openAttempted
	a.phase = PhaseClosed

	if !releaseWriter {
		return nil
	}
	if err := a.writer.Close(); err != nil {
		a.log.Warn("writer close failed", "err", err)
		return err
	}
	a.log.Info("closed")
	return nil
}

var (
	_ Lifecycle[[]byte] = (*Adapter[[]byte])(nil)
	_ Checkpointable    = (*Adapter[[]byte])(nil)
)
