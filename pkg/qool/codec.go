package qool

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec converts typed values to and from queue payloads.
type Codec[T any] interface {
	Marshal(value T) ([]byte, error)
	Unmarshal(data []byte) (T, error)
}

// BytesCodec passes raw bytes through.
type BytesCodec struct{}

func (BytesCodec) Marshal(value []byte) ([]byte, error) { return value, nil }

func (BytesCodec) Unmarshal(data []byte) ([]byte, error) { return data, nil }

// StringCodec stores strings as raw bytes.
type StringCodec struct{}

func (StringCodec) Marshal(value string) ([]byte, error) { return []byte(value), nil }

func (StringCodec) Unmarshal(data []byte) (string, error) { return string(data), nil }

// JSONCodec uses encoding/json. Pair it with Options.PayloadSchema to have
// the queue validate payloads on enqueue.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Marshal(value T) ([]byte, error) {
	return json.Marshal(value)
}

func (JSONCodec[T]) Unmarshal(data []byte) (T, error) {
	var value T
	err := json.Unmarshal(data, &value)
	return value, err
}

// MsgpackCodec uses MessagePack, which is smaller and faster than JSON for
// struct payloads.
type MsgpackCodec[T any] struct{}

func (MsgpackCodec[T]) Marshal(value T) ([]byte, error) {
	return msgpack.Marshal(value)
}

func (MsgpackCodec[T]) Unmarshal(data []byte) (T, error) {
	var value T
	err := msgpack.Unmarshal(data, &value)
	return value, err
}
