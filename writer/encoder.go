package writer

import (
	"encoding/json"
)

// Encoder turns an application record into the bytes delivered to the store.
type Encoder[T any] interface {
	Encode(record T) ([]byte, error)
}

type EncoderFunc[T any] func(record T) ([]byte, error)

func (f EncoderFunc[T]) Encode(record T) ([]byte, error) {
	return f(record)
}

// BytesEncoder passes raw records through. The record is copied because
// callers commonly reuse read buffers.
type BytesEncoder struct{}

func (BytesEncoder) Encode(record []byte) ([]byte, error) {
	return append([]byte(nil), record...), nil
}

type StringEncoder struct{}

func (StringEncoder) Encode(record string) ([]byte, error) {
	return []byte(record), nil
}

// JSONEncoder encodes each record as one JSON document.
type JSONEncoder[T any] struct{}

func (JSONEncoder[T]) Encode(record T) ([]byte, error) {
	return json.Marshal(record)
}

var (
	_ Encoder[[]byte] = BytesEncoder{}
	_ Encoder[string] = StringEncoder{}
	_ Encoder[any]    = JSONEncoder[any]{}
)
