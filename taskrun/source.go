package taskrun

import (
	"context"
	"fmt"

	"reduction.dev/ckptsink/connectors"
)

// Source is a replayable input for one subtask. Offsets count records read so
// a checkpoint's offset is where reading resumes after recovery.
type Source[T any] interface {
	// Next returns the next record or connectors.ErrEndOfInput.
	Next(ctx context.Context) (T, error)
	// Offset of the next record Next will return.
	Offset() uint64
	Seek(offset uint64) error
}

// SliceSource reads records from memory.
type SliceSource[T any] struct {
	records []T
	pos     uint64
}

func NewSliceSource[T any](records []T) *SliceSource[T] {
	return &SliceSource[T]{records: records}
}

func (s *SliceSource[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if s.pos >= uint64(len(s.records)) {
		return zero, connectors.ErrEndOfInput
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

func (s *SliceSource[T]) Offset() uint64 {
	return s.pos
}

func (s *SliceSource[T]) Seek(offset uint64) error {
	if offset > uint64(len(s.records)) {
		return fmt.Errorf("offset %d beyond end of input (%d records)", offset, len(s.records))
	}
	s.pos = offset
	return nil
}

var _ Source[string] = (*SliceSource[string])(nil)
