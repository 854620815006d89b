package checkpoints

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
	"reduction.dev/ckptsink/sink"
)

// Checkpoint is what a subtask needs to resume: where to re-read its source
// from and the sink state captured at the same barrier.
type Checkpoint struct {
	ID           uint64
	Subtask      sink.SubtaskIdentity
	SourceOffset uint64
	WriterState  sink.CheckpointState
	CreatedAt    time.Time

	// URI is where the checkpoint was stored. It is not part of the encoding.
	URI string
}

// Field numbers of the checkpoint file encoding
const (
	fieldID           protowire.Number = 1
	fieldIndex        protowire.Number = 2
	fieldParallelism  protowire.Number = 3
	fieldSourceOffset protowire.Number = 4
	fieldWriterState  protowire.Number = 5
	fieldCreatedAt    protowire.Number = 6
)

var ErrMalformed = errors.New("malformed checkpoint")

// Marshal encodes the checkpoint in protobuf wire format.
func (c *Checkpoint) Marshal() []byte {
	var b []byte
	b = appendVarint(b, fieldID, c.ID)
	b = appendVarint(b, fieldIndex, uint64(c.Subtask.Index))
	b = appendVarint(b, fieldParallelism, uint64(c.Subtask.Parallelism))
	b = appendVarint(b, fieldSourceOffset, c.SourceOffset)
	if c.WriterState != nil {
		b = protowire.AppendTag(b, fieldWriterState, protowire.BytesType)
		b = protowire.AppendBytes(b, c.WriterState)
	}
	if !c.CreatedAt.IsZero() {
		b = appendVarint(b, fieldCreatedAt, uint64(c.CreatedAt.UnixNano()))
	}
	return b
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// Unmarshal decodes a checkpoint, skipping unknown fields.
func Unmarshal(b []byte) (*Checkpoint, error) {
	c := &Checkpoint{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldWriterState && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: writer state: %v", ErrMalformed, protowire.ParseError(n))
			}
			c.WriterState = append(sink.CheckpointState{}, v...)
			b = b[n:]
		case typ == protowire.VarintType && num >= fieldID && num <= fieldCreatedAt:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			c.setVarint(num, v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return c, nil
}

func (c *Checkpoint) setVarint(num protowire.Number, v uint64) {
	switch num {
	case fieldID:
		c.ID = v
	case fieldIndex:
		c.Subtask.Index = int(v)
	case fieldParallelism:
		c.Subtask.Parallelism = int(v)
	case fieldSourceOffset:
		c.SourceOffset = v
	case fieldCreatedAt:
		c.CreatedAt = time.Unix(0, int64(v)).UTC()
	}
}
