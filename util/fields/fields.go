// Package fields reads and writes the fixed-width and length-prefixed fields
// used by binary state encodings. All integers are little-endian.
package fields

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxVarBytes bounds a single length-prefixed field when reading so that a
// corrupt length cannot trigger a huge allocation.
const MaxVarBytes = 256 << 20

// VarBytes

func WriteVarBytes(w io.Writer, data []byte) error {
	if err := WriteUint32(w, uint32(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func ReadVarBytes(r io.Reader) ([]byte, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if n > MaxVarBytes {
		return nil, fmt.Errorf("field length %d exceeds limit %d", n, MaxVarBytes)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Uint64

func WriteUint64(w io.Writer, v uint64) error {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	_, err := w.Write(b)
	return err
}

func ReadUint64(r io.Reader) (uint64, error) {
	b := make([]byte, 8)
	if _, err := io.ReadFull(r, b); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Uint32

func WriteUint32(w io.Writer, v uint32) error {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	_, err := w.Write(b)
	return err
}

func ReadUint32(r io.Reader) (uint32, error) {
	b := make([]byte, 4)
	if _, err := io.ReadFull(r, b); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}
