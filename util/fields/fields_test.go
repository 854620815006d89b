package fields_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"reduction.dev/ckptsink/util/fields"
)

func TestReadVarBytes_Truncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, fields.WriteVarBytes(&buf, []byte("hello")))

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])
	_, err := fields.ReadVarBytes(truncated)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadVarBytes_RejectsHugeLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, fields.WriteUint32(&buf, fields.MaxVarBytes+1))

	_, err := fields.ReadVarBytes(&buf)
	assert.ErrorContains(t, err, "exceeds limit")
}

func TestFieldsSequence(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, fields.WriteUint64(&buf, 42))
	require.NoError(t, fields.WriteVarBytes(&buf, nil))
	require.NoError(t, fields.WriteUint32(&buf, 7))

	n64, err := fields.ReadUint64(&buf)
	require.NoError(t, err)
	empty, err := fields.ReadVarBytes(&buf)
	require.NoError(t, err)
	n32, err := fields.ReadUint32(&buf)
	require.NoError(t, err)

	assert.Equal(t, uint64(42), n64)
	assert.Empty(t, empty)
	assert.Equal(t, uint32(7), n32)
	assert.Zero(t, buf.Len())
}
