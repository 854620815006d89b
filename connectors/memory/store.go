// Package memory is an in-process store that applies each batch label at most
// once. Faults can be injected to exercise flush and restart paths.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"reduction.dev/ckptsink/connectors"
	"reduction.dev/ckptsink/sink"
)

var ErrUnavailable = errors.New("memory store unavailable")

// Store is shared by every Transport created from it, the way subtasks share a
// downstream database.
type Store struct {
	mu          sync.Mutex
	labels      map[string]struct{}
	records     [][]byte
	attempts    int
	failNext    int
	failErr     error
	unavailable bool
	openErr     error
}

func NewStore() *Store {
	return &Store{labels: make(map[string]struct{})}
}

// FailNext makes the next n deliveries fail with err.
func (s *Store) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
	s.failErr = err
}

// SetUnavailable makes every delivery fail until reset.
func (s *Store) SetUnavailable(unavailable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = unavailable
}

// SetOpenError makes Transport.Open fail with err.
func (s *Store) SetOpenError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openErr = err
}

// Records returns every applied record in the order batches were applied.
func (s *Store) Records() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.records...)
}

// Strings returns Records as strings.
func (s *Store) Strings() []string {
	records := s.Records()
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = string(r)
	}
	return out
}

// Attempts is the number of Deliver calls, including failed and duplicate ones.
func (s *Store) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *Store) HasLabel(label string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.labels[label]
	return ok
}

func (s *Store) apply(batch *connectors.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++
	if s.unavailable {
		return connectors.NewRetryableError(ErrUnavailable)
	}
	if s.failNext > 0 {
		s.failNext--
		return s.failErr
	}

	if _, ok := s.labels[batch.Label]; ok {
		return nil // Already applied
	}
	s.labels[batch.Label] = struct{}{}
	for _, r := range batch.Records {
		s.records = append(s.records, append([]byte(nil), r...))
	}
	return nil
}

// Transport delivers to a Store.
type Transport struct {
	store  *Store
	opened bool
	closed bool
}

func NewTransport(store *Store) *Transport {
	return &Transport{store: store}
}

func (t *Transport) Open(ctx context.Context, identity sink.SubtaskIdentity) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.openErr != nil {
		return t.store.openErr
	}
	t.opened = true
	return nil
}

func (t *Transport) Deliver(ctx context.Context, batch *connectors.Batch) error {
	if !t.opened || t.closed {
		return connectors.NewTerminalError(fmt.Errorf("memory transport not open"))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.store.apply(batch)
}

func (t *Transport) Close() error {
	t.closed = true
	return nil
}

var _ connectors.Transport = (*Transport)(nil)
