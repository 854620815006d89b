package writer

import (
	"github.com/google/btree"
	"reduction.dev/ckptsink/connectors"
)

type batchStatus int

const (
	statusInFlight batchStatus = iota // Handed to a delivery goroutine
	statusFailed                      // Awaiting redelivery
)

type pendingBatch struct {
	batch  *connectors.Batch
	status batchStatus
	err    error
}

// pendingSet holds sealed batches the store has not acknowledged, ordered by
// sequence number.
type pendingSet struct {
	tree    *btree.BTreeG[*pendingBatch]
	records int
}

func newPendingSet() *pendingSet {
	return &pendingSet{
		tree: btree.NewG(8, func(a, b *pendingBatch) bool {
			return a.batch.Seq < b.batch.Seq
		}),
	}
}

func (s *pendingSet) add(pb *pendingBatch) {
	if old, replaced := s.tree.ReplaceOrInsert(pb); replaced {
		s.records -= len(old.batch.Records)
	}
	s.records += len(pb.batch.Records)
}

func (s *pendingSet) remove(seq uint64) {
	if old, ok := s.tree.Delete(&pendingBatch{batch: &connectors.Batch{Seq: seq}}); ok {
		s.records -= len(old.batch.Records)
	}
}

func (s *pendingSet) len() int {
	return s.tree.Len()
}

// withStatus returns the batches with the given status in sequence order.
func (s *pendingSet) withStatus(status batchStatus) []*pendingBatch {
	var out []*pendingBatch
	s.tree.Ascend(func(pb *pendingBatch) bool {
		if pb.status == status {
			out = append(out, pb)
		}
		return true
	})
	return out
}

func (s *pendingSet) batches() []*connectors.Batch {
	out := make([]*connectors.Batch, 0, s.tree.Len())
	s.tree.Ascend(func(pb *pendingBatch) bool {
		out = append(out, pb.batch)
		return true
	})
	return out
}
