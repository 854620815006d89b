package writer_test

import (
	"bytes"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"reduction.dev/ckptsink/connectors"
	"reduction.dev/ckptsink/sink"
	"reduction.dev/ckptsink/util/fields"
	"reduction.dev/ckptsink/writer"
)

func sampleState() *writer.State {
	return &writer.State{
		LabelPrefix: "2mXvYq",
		Subtask:     sink.SubtaskIdentity{Index: 1, Parallelism: 3},
		NextSeq:     7,
		Batches: []*connectors.Batch{
			{Label: "2mXvYq_1_4", Seq: 4, Records: [][]byte{[]byte("a"), []byte("b")}},
			{Label: "2mXvYq_1_6", Seq: 6, Records: [][]byte{[]byte("c")}},
		},
		OpenRecords: [][]byte{[]byte("d"), {}},
	}
}

func TestState_RoundTrip(t *testing.T) {
	data, err := writer.EncodeState(sampleState())
	require.NoError(t, err)

	got, err := writer.DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got)
	assert.Equal(t, 5, got.PendingRecords())
}

func TestState_EmptyRoundTrip(t *testing.T) {
	data, err := writer.EncodeState(&writer.State{
		LabelPrefix: "p",
		Subtask:     sink.SubtaskIdentity{Index: 0, Parallelism: 1},
	})
	require.NoError(t, err)

	got, err := writer.DecodeState(data)
	require.NoError(t, err)
	assert.Empty(t, got.Batches)
	assert.Empty(t, got.OpenRecords)
	assert.Equal(t, 0, got.PendingRecords())
}

func TestDecodeState_RejectsCorruption(t *testing.T) {
	data, err := writer.EncodeState(sampleState())
	require.NoError(t, err)

	flipped := append(sink.CheckpointState(nil), data...)
	flipped[len(flipped)/2] ^= 0xff
	_, err = writer.DecodeState(flipped)
	assert.ErrorIs(t, err, writer.ErrCorruptState, "flipped byte")

	_, err = writer.DecodeState(data[:len(data)-3])
	assert.ErrorIs(t, err, writer.ErrCorruptState, "truncated")

	_, err = writer.DecodeState(sink.CheckpointState(`["r1","r2"]`))
	assert.ErrorIs(t, err, writer.ErrCorruptState, "foreign format")

	_, err = writer.DecodeState(sink.CheckpointState{})
	assert.ErrorIs(t, err, writer.ErrCorruptState, "empty")
}

func TestDecodeState_RejectsUnknownVersion(t *testing.T) {
	data, err := writer.EncodeState(sampleState())
	require.NoError(t, err)

	// Version follows the 4 byte magic
	future := append(sink.CheckpointState(nil), data...)
	future[4] = 2

	_, err = writer.DecodeState(future)
	assert.ErrorIs(t, err, writer.ErrUnsupportedVersion)
}

func TestDecodeState_RejectsImpossibleCounts(t *testing.T) {
	data, err := writer.EncodeState(&writer.State{LabelPrefix: "p", Subtask: sink.SubtaskIdentity{Parallelism: 1}})
	require.NoError(t, err)

	// Replace the batch count with a huge value and re-seal the checksum so
	// only the count check can catch it.
	body := append([]byte(nil), data[:len(data)-4]...)
	countAt := len(body) - 8
	body[countAt], body[countAt+1], body[countAt+2], body[countAt+3] = 0xff, 0xff, 0xff, 0x7f
	sealed := sealState(t, body)

	_, err = writer.DecodeState(sealed)
	assert.ErrorIs(t, err, writer.ErrCorruptState)
}

func sealState(t *testing.T, body []byte) sink.CheckpointState {
	t.Helper()
	buf := bytes.NewBuffer(append([]byte(nil), body...))
	require.NoError(t, fields.WriteUint32(buf, crc32.ChecksumIEEE(body)))
	return buf.Bytes()
}
