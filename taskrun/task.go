// Package taskrun drives sink adapters the way a stream engine does: records
// in order, checkpoint barriers between them and restarts from the last
// completed checkpoint after fatal errors.
package taskrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/ksuid"
	"golang.org/x/sync/errgroup"
	"reduction.dev/ckptsink/checkpoints"
	"reduction.dev/ckptsink/clocks"
	"reduction.dev/ckptsink/connectors"
	"reduction.dev/ckptsink/sink"
	"reduction.dev/ckptsink/telemetry"
)

type Params[T any] struct {
	Subtask sink.SubtaskIdentity
	// NewWriter builds a fresh writer for every attempt.
	NewWriter   func() (sink.Writer[T], error)
	Source      Source[T]
	Checkpoints *checkpoints.Store

	// A barrier is injected after every CheckpointEvery records and every
	// CheckpointInterval. Zero disables either trigger.
	CheckpointEvery    int
	CheckpointInterval time.Duration

	// MaxRestarts bounds recoveries after fatal errors.
	MaxRestarts int
	Clock       clocks.Clock
}

type Task[T any] struct {
	params   Params[T]
	restarts int
	log      *slog.Logger
	metrics  taskMetrics
}

type taskMetrics struct {
	completed, aborted, restarts prometheus.Counter
	duration                     prometheus.Observer
}

func NewTask[T any](params Params[T]) *Task[T] {
	if params.Clock == nil {
		params.Clock = clocks.NewSystemClock()
	}
	label := telemetry.SubtaskLabel(params.Subtask.Index)
	return &Task[T]{
		params: params,
		log:    slog.With("instanceID", fmt.Sprintf("task-%d", params.Subtask.Index)),
		metrics: taskMetrics{
			completed: telemetry.CheckpointsCompleted.WithLabelValues(label),
			aborted:   telemetry.CheckpointsAborted.WithLabelValues(label),
			restarts:  telemetry.TaskRestarts.WithLabelValues(label),
			duration:  telemetry.CheckpointDuration.WithLabelValues(label),
		},
	}
}

// Restarts is the number of times the task recovered from a fatal error.
func (t *Task[T]) Restarts() int {
	return t.restarts
}

// Run processes the source to its end. Fatal sink errors restart the task
// from the last completed checkpoint up to MaxRestarts times.
func (t *Task[T]) Run(ctx context.Context) error {
	for {
		err := t.runAttempt(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if t.restarts >= t.params.MaxRestarts {
			return fmt.Errorf("subtask %s failed after %d restarts: %w", t.params.Subtask, t.restarts, err)
		}

		t.restarts++
		t.metrics.restarts.Inc()
		t.log.Warn("restarting from last checkpoint", "restart", t.restarts, "err", err)
	}
}

func (t *Task[T]) runAttempt(ctx context.Context) (err error) {
	log := t.log.With("attempt", ksuid.New().String())

	w, err := t.params.NewWriter()
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	adapter := sink.NewAdapter(w)
	defer func() {
		if closeErr := adapter.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("closing sink: %w", closeErr))
		}
	}()

	if err := adapter.Open(ctx, t.params.Subtask); err != nil {
		return err
	}

	latest, err := t.params.Checkpoints.Latest(ctx, t.params.Subtask.Index)
	if err != nil {
		return fmt.Errorf("loading latest checkpoint: %w", err)
	}
	var state sink.CheckpointState
	var offset uint64
	if latest != nil {
		state, offset = latest.WriterState, latest.SourceOffset
		log.Info("recovering", "checkpoint", latest.ID, "offset", offset)
	}
	if err := adapter.InitializeState(ctx, state); err != nil {
		return err
	}
	if err := t.params.Source.Seek(offset); err != nil {
		return fmt.Errorf("seeking source: %w", err)
	}

	barriers := make(chan struct{}, 1)
	if t.params.CheckpointInterval > 0 {
		ticker := t.params.Clock.Every(t.params.CheckpointInterval, func() {
			select {
			case barriers <- struct{}{}:
			default: // A barrier is already waiting
			}
		}, fmt.Sprintf("checkpoint-%d", t.params.Subtask.Index))
		defer ticker.Stop()
	}

	var sinceCheckpoint int
	for {
		select {
		case <-barriers:
			if _, err := t.checkpoint(ctx, adapter); err != nil {
				return err
			}
			sinceCheckpoint = 0
			continue
		default:
		}

		record, err := t.params.Source.Next(ctx)
		if errors.Is(err, connectors.ErrEndOfInput) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading source: %w", err)
		}

		if err := adapter.Invoke(ctx, record); err != nil {
			return err
		}

		sinceCheckpoint++
		if t.params.CheckpointEvery > 0 && sinceCheckpoint >= t.params.CheckpointEvery {
			if _, err := t.checkpoint(ctx, adapter); err != nil {
				return err
			}
			sinceCheckpoint = 0
		}
	}

	// Input is only done once a final checkpoint confirms every record
	completed, err := t.checkpoint(ctx, adapter)
	if err != nil {
		return err
	}
	if !completed {
		return errors.New("final checkpoint did not complete")
	}
	log.Info("end of input")
	return nil
}

// checkpoint snapshots the sink and persists the result. Non-fatal snapshot
// failures abort only this checkpoint and report completed as false.
func (t *Task[T]) checkpoint(ctx context.Context, adapter *sink.Adapter[T]) (completed bool, err error) {
	start := t.params.Clock.Now()
	offset := t.params.Source.Offset()

	state, err := adapter.SnapshotState(ctx)
	if err != nil {
		if sink.IsFatal(err) {
			return false, err
		}
		t.metrics.aborted.Inc()
		t.log.Warn("checkpoint aborted", "offset", offset, "err", err)
		return false, nil
	}

	ckpt := &checkpoints.Checkpoint{
		Subtask:      t.params.Subtask,
		SourceOffset: offset,
		WriterState:  state,
	}
	if err := t.params.Checkpoints.Save(ctx, ckpt); err != nil {
		t.metrics.aborted.Inc()
		t.log.Warn("checkpoint aborted", "offset", offset, "err", err)
		return false, nil
	}

	t.metrics.completed.Inc()
	t.metrics.duration.Observe(t.params.Clock.Now().Sub(start).Seconds())
	t.log.Debug("checkpoint completed", "id", ckpt.ID, "offset", offset, "stateBytes", len(state))
	return true, nil
}

// RunSubtasks runs tasks concurrently. The first task to fail cancels the
// others.
func RunSubtasks[T any](ctx context.Context, tasks []*Task[T]) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error {
			return task.Run(gctx)
		})
	}
	return g.Wait()
}
