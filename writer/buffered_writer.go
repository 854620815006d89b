package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/segmentio/ksuid"
	"golang.org/x/sync/errgroup"
	"reduction.dev/ckptsink/batching"
	"reduction.dev/ckptsink/clocks"
	"reduction.dev/ckptsink/connectors"
	"reduction.dev/ckptsink/sink"
)

var (
	recordsWritten     = metrics.NewCounter("writer_records_written_total")
	recordsDelivered   = metrics.NewCounter("writer_records_delivered_total")
	batchesDelivered   = metrics.NewCounter("writer_batches_delivered_total")
	batchesRedelivered = metrics.NewCounter("writer_batches_redelivered_total")
	deliveryFailures   = metrics.NewCounter("writer_delivery_failures_total")
)

// ErrBufferFull is returned by Write when the store does not acknowledge
// batches fast enough to stay under MaxBufferedRecords.
var ErrBufferFull = errors.New("writer buffer full")

var errNotOpen = errors.New("writer is not open")

const (
	DefaultMaxBatchSize       = 500
	DefaultMaxBufferedRecords = 10_000
	DefaultMaxInFlight        = 2
	DefaultDeliveryTimeout    = 30 * time.Second
)

type Params[T any] struct {
	Transport connectors.Transport
	Encoder   Encoder[T]

	// LabelPrefix namespaces batch labels. A prefix restored from checkpoint
	// state replaces it. Defaults to a new ksuid.
	LabelPrefix string

	// Epoch is part of the label of every batch this writer seals. Defaults to
	// a new ksuid so labels are never reused by a later writer.
	Epoch string

	MaxBatchSize       int           // Records per batch
	MaxBatchDelay      time.Duration // Age at which an open batch is sent. Zero waits for size or Flush.
	MaxBufferedRecords int           // Records held without acknowledgement before Write fails
	MaxInFlight        int           // Concurrent deliveries
	DeliveryTimeout    time.Duration // Limit for a single delivery attempt

	Timer clocks.Timer
}

// BufferedWriter batches records and delivers them asynchronously through a
// Transport. Records leave its bookkeeping only when the store acknowledges
// them, so a snapshot always carries every record that may not have arrived.
type BufferedWriter[T any] struct {
	transport          connectors.Transport
	encoder            Encoder[T]
	maxBatchSize       int
	maxBatchDelay      time.Duration
	maxBufferedRecords int
	maxInFlight        int
	deliveryTimeout    time.Duration
	timer              clocks.Timer
	log                *slog.Logger

	identity     sink.SubtaskIdentity
	epoch        string
	opened       bool
	closed       bool
	needsReplay  bool // Restored batches must be delivered before new records
	ctx          context.Context
	cancel       context.CancelFunc
	batcher      *batching.Batcher[[]byte]
	timeoutsDone chan struct{}

	dispatchMu       sync.Mutex // Serializes sealing and dispatching with waiting on deliveries
	deliveries       *errgroup.Group
	deliveryCtx      context.Context
	cancelDeliveries context.CancelFunc
	slots            chan struct{} // One token per running delivery

	mu          sync.Mutex // Guards pending, nextSeq and labelPrefix
	pending     *pendingSet
	nextSeq     uint64
	labelPrefix string
}

func New[T any](params Params[T]) *BufferedWriter[T] {
	if params.Transport == nil || params.Encoder == nil {
		panic("writer.New requires a Transport and an Encoder")
	}
	if params.LabelPrefix == "" {
		params.LabelPrefix = ksuid.New().String()
	}
	if params.Epoch == "" {
		params.Epoch = ksuid.New().String()
	}
	if params.MaxBatchSize < 1 {
		params.MaxBatchSize = DefaultMaxBatchSize
	}
	if params.MaxBufferedRecords < 1 {
		params.MaxBufferedRecords = DefaultMaxBufferedRecords
	}
	if params.MaxBufferedRecords < params.MaxBatchSize {
		params.MaxBufferedRecords = params.MaxBatchSize
	}
	if params.MaxInFlight < 1 {
		params.MaxInFlight = DefaultMaxInFlight
	}
	if params.DeliveryTimeout <= 0 {
		params.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if params.Timer == nil {
		params.Timer = &clocks.SystemTimer{}
	}

	return &BufferedWriter[T]{
		transport:          params.Transport,
		encoder:            params.Encoder,
		labelPrefix:        params.LabelPrefix,
		epoch:              params.Epoch,
		maxBatchSize:       params.MaxBatchSize,
		maxBatchDelay:      params.MaxBatchDelay,
		maxBufferedRecords: params.MaxBufferedRecords,
		maxInFlight:        params.MaxInFlight,
		deliveryTimeout:    params.DeliveryTimeout,
		timer:              params.Timer,
		log:                slog.With("instanceID", "writer"),
		pending:            newPendingSet(),
		slots:              make(chan struct{}, params.MaxInFlight),
	}
}

func (w *BufferedWriter[T]) Open(ctx context.Context, identity sink.SubtaskIdentity) error {
	if w.opened || w.closed {
		return sink.NewInitializationError(errors.New("writer can only be opened once"))
	}
	if err := identity.Validate(); err != nil {
		return sink.NewInitializationError(err)
	}
	w.identity = identity
	w.log = slog.With("instanceID", fmt.Sprintf("writer-%d", identity.Index))

	if err := w.transport.Open(ctx, identity); err != nil {
		return sink.NewInitializationError(fmt.Errorf("open transport: %w", err))
	}

	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.batcher = batching.New[[]byte](w.ctx, batching.Params{
		MaxSize:  w.maxBatchSize,
		MaxDelay: w.maxBatchDelay,
		Timer:    w.timer,
	})
	w.resetDeliveries()
	w.timeoutsDone = make(chan struct{})
	go w.sealOnTimeout()

	w.opened = true
	w.log.Info("opened", "labelPrefix", w.labelPrefix, "epoch", w.epoch, "maxBatchSize", w.maxBatchSize, "maxBufferedRecords", w.maxBufferedRecords)
	return nil
}

func (w *BufferedWriter[T]) Write(ctx context.Context, record T) error {
	if !w.isOpen() {
		return sink.NewWriteError(errNotOpen)
	}

	w.dispatchMu.Lock()
	defer w.dispatchMu.Unlock()

	if w.needsReplay {
		if err := w.awaitDeliveries(ctx); err != nil {
			return sink.NewWriteError(fmt.Errorf("replay restored batches: %w", err))
		}
		if err := w.redeliverFailed(ctx); err != nil {
			return sink.NewWriteError(fmt.Errorf("replay restored batches: %w", err))
		}
		w.needsReplay = false
	}

	data, err := w.encoder.Encode(record)
	if err != nil {
		return sink.NewWriteError(fmt.Errorf("encode record: %w", err))
	}

	if err := w.reserve(ctx); err != nil {
		return sink.NewWriteError(err)
	}

	if full := w.batcher.Add(data); full {
		if err := w.dispatch(ctx, w.batcher.Seal(batching.CurrentBatch)); err != nil {
			return sink.NewWriteError(err)
		}
	}
	recordsWritten.Inc()
	return nil
}

// reserve makes room for one more record, waiting on in-flight deliveries and
// retrying failed ones once before giving up.
func (w *BufferedWriter[T]) reserve(ctx context.Context) error {
	if w.buffered() < w.maxBufferedRecords {
		return nil
	}

	if err := w.awaitDeliveries(ctx); err != nil {
		return err
	}
	if w.buffered() < w.maxBufferedRecords {
		return nil
	}

	if err := w.redeliverFailed(ctx); err != nil {
		return fmt.Errorf("%w: %d records unacknowledged: %w", ErrBufferFull, w.buffered(), err)
	}
	if w.buffered() >= w.maxBufferedRecords {
		return fmt.Errorf("%w: %d records unacknowledged", ErrBufferFull, w.buffered())
	}
	return nil
}

// Flush sends the open batch, waits for every in-flight delivery and retries
// failed batches once in sequence order. Batches that still fail stay pending.
// Cancelling ctx cancels the deliveries it waits on and aborts the flush.
func (w *BufferedWriter[T]) Flush(ctx context.Context) error {
	if !w.isOpen() {
		return sink.NewFlushError(errNotOpen, true)
	}

	w.dispatchMu.Lock()
	defer w.dispatchMu.Unlock()

	if err := w.dispatch(ctx, w.batcher.Seal(batching.CurrentBatch)); err != nil {
		return sink.NewFlushError(err, false)
	}
	if err := w.awaitDeliveries(ctx); err != nil {
		return sink.NewFlushError(fmt.Errorf("await deliveries: %w", err), false)
	}
	if err := w.redeliverFailed(ctx); err != nil {
		return sink.NewFlushError(err, !connectors.IsRetryable(err))
	}
	w.needsReplay = false
	return nil
}

func (w *BufferedWriter[T]) SnapshotState(ctx context.Context) (sink.CheckpointState, error) {
	if !w.isOpen() {
		return nil, sink.NewFlushError(errNotOpen, true)
	}

	w.dispatchMu.Lock()
	defer w.dispatchMu.Unlock()

	w.mu.Lock()
	state := &State{
		LabelPrefix: w.labelPrefix,
		Subtask:     w.identity,
		NextSeq:     w.nextSeq,
		Batches:     w.pending.batches(),
		OpenRecords: w.batcher.Items(),
	}
	w.mu.Unlock()

	data, err := EncodeState(state)
	if err != nil {
		return nil, sink.NewFlushError(fmt.Errorf("encode state: %w", err), true)
	}
	w.log.Debug("snapshot", "pendingBatches", len(state.Batches), "pendingRecords", state.PendingRecords())
	return data, nil
}

// RestoreState queues the unacknowledged batches of a snapshot for redelivery
// under their original labels. It must be called before the first Write.
func (w *BufferedWriter[T]) RestoreState(ctx context.Context, data sink.CheckpointState) error {
	if !w.isOpen() {
		return sink.NewRestoreError(errNotOpen)
	}

	w.dispatchMu.Lock()
	defer w.dispatchMu.Unlock()

	if w.buffered() > 0 || w.nextSeq > 0 {
		return sink.NewRestoreError(errors.New("state must be restored before records are written"))
	}

	state, err := DecodeState(data)
	if err != nil {
		return sink.NewRestoreError(err)
	}
	if state.Subtask != w.identity {
		w.log.Info("restoring state written by another subtask", "from", state.Subtask, "to", w.identity)
	}

	w.mu.Lock()
	w.labelPrefix = state.LabelPrefix
	w.nextSeq = state.NextSeq
	for _, b := range state.Batches {
		w.pending.add(&pendingBatch{batch: b, status: statusFailed})
		if b.Seq >= w.nextSeq {
			w.nextSeq = b.Seq + 1
		}
	}
	if len(state.OpenRecords) > 0 {
		w.pending.add(&pendingBatch{batch: w.newBatchLocked(state.OpenRecords), status: statusFailed})
	}
	w.needsReplay = w.pending.len() > 0
	batches, records := w.pending.len(), w.pending.records
	w.mu.Unlock()

	w.log.Info("restored", "labelPrefix", state.LabelPrefix, "pendingBatches", batches, "pendingRecords", records)
	return nil
}

// Close cancels outstanding deliveries and releases the transport. Records
// that were never acknowledged are left to the last checkpoint.
func (w *BufferedWriter[T]) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.opened {
		w.cancel()
		w.timer.Stop()
		<-w.timeoutsDone

		w.dispatchMu.Lock()
		w.deliveries.Wait() // Delivery errors no longer matter
		w.dispatchMu.Unlock()

		if n := w.buffered(); n > 0 {
			w.log.Info("closing with unacknowledged records", "records", n)
		}
	}

	if err := w.transport.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

// Stats describes the writer's buffered records.
type Stats struct {
	LabelPrefix    string
	NextSeq        uint64
	PendingBatches int
	PendingRecords int
	OpenRecords    int
	Epoch          string
}

func (w *BufferedWriter[T]) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Stats{
		LabelPrefix:    w.labelPrefix,
		NextSeq:        w.nextSeq,
		PendingBatches: w.pending.len(),
		PendingRecords: w.pending.records,
		Epoch:          w.epoch,
	}
	if w.batcher != nil {
		s.OpenRecords = w.batcher.Len()
	}
	return s
}

func (w *BufferedWriter[T]) isOpen() bool {
	return w.opened && !w.closed
}

func (w *BufferedWriter[T]) buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending.records + w.batcher.Len()
}

// resetDeliveries starts a new delivery group with its own cancellation.
// Caller must hold dispatchMu or be opening the writer.
func (w *BufferedWriter[T]) resetDeliveries() {
	w.deliveries = &errgroup.Group{}
	w.deliveryCtx, w.cancelDeliveries = context.WithCancel(w.ctx)
}

func (w *BufferedWriter[T]) sealOnTimeout() {
	defer close(w.timeoutsDone)
	for {
		select {
		case token := <-w.batcher.TimedOut():
			w.dispatchMu.Lock()
			if err := w.dispatch(w.ctx, w.batcher.Seal(token)); err != nil {
				w.log.Debug("timed out batch left pending", "err", err)
			}
			w.dispatchMu.Unlock()
		case <-w.ctx.Done():
			return
		}
	}
}

// Caller must hold mu.
func (w *BufferedWriter[T]) newBatchLocked(records [][]byte) *connectors.Batch {
	seq := w.nextSeq
	w.nextSeq++
	return &connectors.Batch{
		Label:   Label(w.labelPrefix, w.identity.Index, w.epoch, seq),
		Seq:     seq,
		Records: records,
	}
}

// dispatch seals records into a pending batch and starts delivering it. It
// blocks while MaxInFlight deliveries are running. If ctx ends first the batch
// stays pending as failed. Caller must hold dispatchMu.
func (w *BufferedWriter[T]) dispatch(ctx context.Context, records [][]byte) error {
	if len(records) == 0 {
		return nil
	}

	w.mu.Lock()
	pb := &pendingBatch{batch: w.newBatchLocked(records), status: statusInFlight}
	w.pending.add(pb)
	w.mu.Unlock()

	select {
	case w.slots <- struct{}{}:
	case <-ctx.Done():
		w.settle(pb, ctx.Err())
		return fmt.Errorf("dispatch batch %s: %w", pb.batch.Label, ctx.Err())
	}

	deliveryCtx := w.deliveryCtx
	w.deliveries.Go(func() error {
		defer func() { <-w.slots }()
		ctx, cancel := context.WithTimeout(deliveryCtx, w.deliveryTimeout)
		defer cancel()
		err := w.transport.Deliver(ctx, pb.batch)
		w.settle(pb, err)
		return err
	})
	return nil
}

// awaitDeliveries blocks until every dispatched batch has settled. When ctx
// ends first the running deliveries are cancelled, left pending as failed and
// ctx's error is returned. Caller must hold dispatchMu.
func (w *BufferedWriter[T]) awaitDeliveries(ctx context.Context) error {
	group := w.deliveries
	done := make(chan struct{})
	go func() {
		group.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.cancelDeliveries()
		<-done
	}
	w.cancelDeliveries()
	w.resetDeliveries()
	return ctx.Err()
}

// redeliverFailed synchronously retries failed batches in sequence order,
// stopping at the first failure so batches are applied in order. A batch the
// store rejected with a terminal error is not retried. Caller must hold
// dispatchMu with no deliveries in flight.
func (w *BufferedWriter[T]) redeliverFailed(ctx context.Context) error {
	w.mu.Lock()
	failed := w.pending.withStatus(statusFailed)
	for _, pb := range failed {
		if pb.err != nil && !connectors.IsRetryable(pb.err) {
			w.mu.Unlock()
			return fmt.Errorf("deliver batch %s: %w", pb.batch.Label, pb.err)
		}
	}
	for _, pb := range failed {
		pb.status = statusInFlight
	}
	w.mu.Unlock()

	for i, pb := range failed {
		if err := ctx.Err(); err != nil {
			w.mu.Lock()
			for _, rest := range failed[i:] {
				rest.status = statusFailed
			}
			w.mu.Unlock()
			return err
		}
		deliverCtx, cancel := context.WithTimeout(ctx, w.deliveryTimeout)
		err := w.transport.Deliver(deliverCtx, pb.batch)
		cancel()
		w.settle(pb, err)

		if err != nil {
			w.mu.Lock()
			for _, rest := range failed[i+1:] {
				rest.status = statusFailed
			}
			w.mu.Unlock()
			return fmt.Errorf("deliver batch %s: %w", pb.batch.Label, err)
		}
		batchesRedelivered.Inc()
	}
	return nil
}

func (w *BufferedWriter[T]) settle(pb *pendingBatch, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err == nil {
		w.pending.remove(pb.batch.Seq)
		batchesDelivered.Inc()
		recordsDelivered.Add(len(pb.batch.Records))
		return
	}

	pb.status = statusFailed
	pb.err = err
	deliveryFailures.Inc()
	w.log.Warn("delivery failed", "label", pb.batch.Label, "records", len(pb.batch.Records), "retryable", connectors.IsRetryable(err), "err", err)
}

var _ sink.Writer[[]byte] = (*BufferedWriter[[]byte])(nil)

// Label names a batch. Stores that de-duplicate by label treat two batches with
// the same label as one, so a label is never given to different records.
func Label(prefix string, subtask int, epoch string, seq uint64) string {
	return fmt.Sprintf("%s_%d_%s_%d", prefix, subtask, epoch, seq)
}
