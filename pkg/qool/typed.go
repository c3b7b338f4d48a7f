package qool

import (
	"context"
	"fmt"
	"time"
)

// TypedItem is a queue entry decoded through a Codec.
type TypedItem[T any] struct {
	Key   Key
	Value T
}

// Typed wraps a Queue with a Codec so callers work with T instead of bytes.
type Typed[T any] struct {
	q     *Queue
	codec Codec[T]
}

// NewTyped returns a typed view of q.
func NewTyped[T any](q *Queue, codec Codec[T]) *Typed[T] {
	return &Typed[T]{q: q, codec: codec}
}

func (t *Typed[T]) decode(item Item) (TypedItem[T], error) {
	v, err := t.codec.Unmarshal(item.Value)
	if err != nil {
		return TypedItem[T]{Key: item.Key}, fmt.Errorf("decode item %s: %w", item.Key, err)
	}
	return TypedItem[T]{Key: item.Key, Value: v}, nil
}

func (t *Typed[T]) Enqueue(ctx context.Context, value T) (Key, error) {
	data, err := t.codec.Marshal(value)
	if err != nil {
		return Key{}, fmt.Errorf("encode item: %w", err)
	}
	return t.q.Enqueue(ctx, data)
}

// Dequeue removes the oldest entry. A decode failure still removes it; the
// returned item carries its key.
func (t *Typed[T]) Dequeue(ctx context.Context) (TypedItem[T], bool, error) {
	item, ok, err := t.q.Dequeue(ctx)
	if err != nil || !ok {
		return TypedItem[T]{}, ok, err
	}
	out, err := t.decode(item)
	return out, true, err
}

func (t *Typed[T]) Peek(ctx context.Context, count int, bookmark Key) ([]TypedItem[T], error) {
	items, err := t.q.Peek(ctx, count, bookmark)
	if err != nil {
		return nil, err
	}
	out := make([]TypedItem[T], 0, len(items))
	for _, item := range items {
		v, err := t.decode(item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (t *Typed[T]) Lease(ctx context.Context, timeout time.Duration) (TypedItem[T], bool, error) {
	item, ok, err := t.q.Lease(ctx, timeout)
	if err != nil || !ok {
		return TypedItem[T]{}, ok, err
	}
	out, err := t.decode(item)
	return out, true, err
}

func (t *Typed[T]) Delete(ctx context.Context, key Key) error {
	return t.q.Delete(ctx, key)
}
