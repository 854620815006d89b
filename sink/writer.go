package sink

import "context"

// Writer owns the record buffer, the session with the downstream store and the
// checkpoint state encoding. Any implementation of these six operations can be
// driven by an Adapter.
type Writer[T any] interface {
	// Open acquires connections and resources for the given subtask.
	Open(ctx context.Context, identity SubtaskIdentity) error

	// Write appends a record to the pending batch. It must not block
	// indefinitely.
	Write(ctx context.Context, record T) error

	// Flush blocks until every record written so far is acknowledged by the
	// downstream store or is retained for redelivery, returning an error in the
	// latter case.
	Flush(ctx context.Context) error

	// SnapshotState serializes the writer's pending-delivery bookkeeping.
	SnapshotState(ctx context.Context) (CheckpointState, error)

	// RestoreState rebuilds pending-delivery bookkeeping from a prior snapshot.
	RestoreState(ctx context.Context, state CheckpointState) error

	// Close releases all resources. It is called even if Open failed.
	Close() error
}
