package connectors

import (
	"context"

	"reduction.dev/ckptsink/sink"
)

// Batch is a sealed group of encoded records delivered to a store as one unit.
// The label is stable across redeliveries so stores that de-duplicate loads by
// label apply a batch at most once.
type Batch struct {
	Label   string
	Seq     uint64
	Records [][]byte
}

// Bytes returns the total size of the batch's records.
func (b *Batch) Bytes() int {
	var n int
	for _, r := range b.Records {
		n += len(r)
	}
	return n
}

// Transport delivers batches to a downstream store. Retry policy for a single
// delivery belongs to the transport.
type Transport interface {
	// Open acquires the connection or session for the subtask and checks that
	// the store is reachable.
	Open(ctx context.Context, identity sink.SubtaskIdentity) error

	// Deliver returns nil once the store acknowledged every record in the batch.
	// Errors not marked with NewTerminalError are considered retryable.
	Deliver(ctx context.Context, batch *Batch) error

	Close() error
}
