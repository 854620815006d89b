package writer

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"

	"reduction.dev/ckptsink/connectors"
	"reduction.dev/ckptsink/sink"
	"reduction.dev/ckptsink/util/fields"
)

// StateVersion is the checkpoint state format written by this package.
const StateVersion uint32 = 1

var stateMagic = []byte("CKST")

var (
	ErrCorruptState       = errors.New("corrupt writer state")
	ErrUnsupportedVersion = errors.New("unsupported writer state version")
)

// State is the writer bookkeeping carried by a checkpoint.
//
// Layout (v1, little-endian):
//
//	magic "CKST" | version u32 | prefix bytes | index u32 | parallelism u32 |
//	next seq u64 | batch count u32 | {seq u64 | label bytes | count u32 | records bytes...}... |
//	open count u32 | records bytes... | crc32 u32
//
// bytes fields are u32 length prefixed. The CRC covers everything before it.
type State struct {
	LabelPrefix string
	Subtask     sink.SubtaskIdentity
	NextSeq     uint64
	Batches     []*connectors.Batch // Unacknowledged batches in sequence order
	OpenRecords [][]byte            // Records not yet sealed into a batch
}

// PendingRecords counts records that were not acknowledged by the store.
func (s *State) PendingRecords() int {
	n := len(s.OpenRecords)
	for _, b := range s.Batches {
		n += len(b.Records)
	}
	return n
}

func EncodeState(s *State) (sink.CheckpointState, error) {
	var buf bytes.Buffer
	buf.Write(stateMagic)
	err := errors.Join(
		fields.WriteUint32(&buf, StateVersion),
		fields.WriteVarBytes(&buf, []byte(s.LabelPrefix)),
		fields.WriteUint32(&buf, uint32(s.Subtask.Index)),
		fields.WriteUint32(&buf, uint32(s.Subtask.Parallelism)),
		fields.WriteUint64(&buf, s.NextSeq),
		fields.WriteUint32(&buf, uint32(len(s.Batches))),
	)
	if err != nil {
		return nil, err
	}

	for _, b := range s.Batches {
		err := errors.Join(
			fields.WriteUint64(&buf, b.Seq),
			fields.WriteVarBytes(&buf, []byte(b.Label)),
			writeRecords(&buf, b.Records),
		)
		if err != nil {
			return nil, err
		}
	}
	if err := writeRecords(&buf, s.OpenRecords); err != nil {
		return nil, err
	}

	if err := fields.WriteUint32(&buf, crc32.ChecksumIEEE(buf.Bytes())); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeState(data sink.CheckpointState) (*State, error) {
	header := len(stateMagic) + 4
	if len(data) < header+4 || !bytes.Equal(data[:len(stateMagic)], stateMagic) {
		return nil, fmt.Errorf("%w: missing header", ErrCorruptState)
	}

	version, _ := fields.ReadUint32(bytes.NewReader(data[len(stateMagic):header]))
	if version != StateVersion {
		return nil, fmt.Errorf("%w: %d (supported: %d)", ErrUnsupportedVersion, version, StateVersion)
	}

	body, trailer := data[:len(data)-4], data[len(data)-4:]
	sum, _ := fields.ReadUint32(bytes.NewReader(trailer))
	if crc32.ChecksumIEEE(body) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptState)
	}

	s, err := decodeBody(bytes.NewReader(body[header:]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return s, nil
}

func decodeBody(r *bytes.Reader) (*State, error) {
	s := &State{}

	prefix, err := fields.ReadVarBytes(r)
	if err != nil {
		return nil, fmt.Errorf("label prefix: %w", err)
	}
	s.LabelPrefix = string(prefix)

	index, err := fields.ReadUint32(r)
	if err != nil {
		return nil, fmt.Errorf("subtask index: %w", err)
	}
	parallelism, err := fields.ReadUint32(r)
	if err != nil {
		return nil, fmt.Errorf("subtask parallelism: %w", err)
	}
	s.Subtask = sink.SubtaskIdentity{Index: int(index), Parallelism: int(parallelism)}

	if s.NextSeq, err = fields.ReadUint64(r); err != nil {
		return nil, fmt.Errorf("next seq: %w", err)
	}

	batchCount, err := readCount(r)
	if err != nil {
		return nil, fmt.Errorf("batch count: %w", err)
	}
	for i := range batchCount {
		seq, err := fields.ReadUint64(r)
		if err != nil {
			return nil, fmt.Errorf("batch %d seq: %w", i, err)
		}
		label, err := fields.ReadVarBytes(r)
		if err != nil {
			return nil, fmt.Errorf("batch %d label: %w", i, err)
		}
		records, err := readRecords(r)
		if err != nil {
			return nil, fmt.Errorf("batch %d records: %w", i, err)
		}
		s.Batches = append(s.Batches, &connectors.Batch{Label: string(label), Seq: seq, Records: records})
	}

	if s.OpenRecords, err = readRecords(r); err != nil {
		return nil, fmt.Errorf("open records: %w", err)
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes", r.Len())
	}
	return s, nil
}

func writeRecords(buf *bytes.Buffer, records [][]byte) error {
	if err := fields.WriteUint32(buf, uint32(len(records))); err != nil {
		return err
	}
	for _, r := range records {
		if err := fields.WriteVarBytes(buf, r); err != nil {
			return err
		}
	}
	return nil
}

func readRecords(r *bytes.Reader) ([][]byte, error) {
	n, err := readCount(r)
	if err != nil {
		return nil, err
	}
	records := make([][]byte, 0, n)
	for range n {
		rec, err := fields.ReadVarBytes(r)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// readCount reads an element count, rejecting counts that cannot fit in the
// remaining input since every element takes at least 4 bytes.
func readCount(r *bytes.Reader) (int, error) {
	n, err := fields.ReadUint32(r)
	if err != nil {
		return 0, err
	}
	if int(n) > r.Len()/4 {
		return 0, fmt.Errorf("count %d exceeds remaining input", n)
	}
	return int(n), nil
}
