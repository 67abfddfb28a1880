package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// Keys under which the collections are persisted.
const (
	TasksKey      = "tasks"
	CategoriesKey = "categories"
)

var (
	// ErrRead is returned when a key cannot be read or decoded.
	ErrRead = errors.New("storage read failed")
	// ErrWrite is returned when a key cannot be written.
	ErrWrite = errors.New("storage write failed")
	// ErrMalformed marks persisted bytes that do not decode. Errors carrying
	// it also match ErrRead.
	ErrMalformed = errors.New("malformed persisted data")
)

// KV is a synchronous durable key-value medium. Get reports absent keys with
// ok == false and a nil error.
type KV interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, data []byte) error
}

// Pinger is implemented by backends that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Closer is implemented by backends holding resources.
type Closer interface {
	Close() error
}

// Snapshot is the raw state of a key as it was read.
type Snapshot struct {
	Data    []byte
	Present bool
}

// Collection reads and writes a JSON array of T under a single key.
type Collection[T any] struct {
	kv  KV
	key string
}

// NewCollection binds a collection to key on kv.
func NewCollection[T any](kv KV, key string) *Collection[T] {
	if kv == nil {
		panic("storage.NewCollection: kv is nil")
	}
	return &Collection[T]{kv: kv, key: key}
}

// Key returns the storage key.
func (c *Collection[T]) Key() string { return c.key }

// Load returns the decoded items and the raw snapshot they came from. An
// absent key decodes to an empty, non-nil slice.
func (c *Collection[T]) Load(ctx context.Context) ([]T, Snapshot, error) {
	data, ok, err := c.kv.Get(ctx, c.key)
	if err != nil {
		return nil, Snapshot{}, fmt.Errorf("%w: key %q: %v", ErrRead, c.key, err)
	}
	snap := Snapshot{Data: data, Present: ok}
	if !ok || len(data) == 0 {
		return []T{}, snap, nil
	}
	var items []T
	if err := sonic.Unmarshal(data, &items); err != nil {
		return nil, snap, fmt.Errorf("%w: %w: key %q: %v", ErrRead, ErrMalformed, c.key, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, snap, nil
}

// Save replaces the whole collection.
func (c *Collection[T]) Save(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := sonic.Marshal(items)
	if err != nil {
		return fmt.Errorf("%w: key %q: encode: %v", ErrWrite, c.key, err)
	}
	return c.write(ctx, data)
}

// Restore writes back a snapshot taken by Load. An absent snapshot is
// restored as an empty collection.
func (c *Collection[T]) Restore(ctx context.Context, snap Snapshot) error {
	if !snap.Present {
		return c.write(ctx, []byte("[]"))
	}
	return c.write(ctx, snap.Data)
}

func (c *Collection[T]) write(ctx context.Context, data []byte) error {
	if err := c.kv.Set(ctx, c.key, data); err != nil {
		return fmt.Errorf("%w: key %q: %v", ErrWrite, c.key, err)
	}
	return nil
}

// Ping checks kv when it supports it.
func Ping(ctx context.Context, kv KV) error {
	if p, ok := kv.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close releases kv when it holds resources.
func Close(kv KV) error {
	if c, ok := kv.(Closer); ok {
		return c.Close()
	}
	return nil
}
