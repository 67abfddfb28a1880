package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

type item struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type stubKV struct {
	getFn func(ctx context.Context, key string) ([]byte, bool, error)
	setFn func(ctx context.Context, key string, data []byte) error
}

func (s *stubKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.getFn == nil {
		return nil, false, errors.New("unexpected Get call")
	}
	return s.getFn(ctx, key)
}

func (s *stubKV) Set(ctx context.Context, key string, data []byte) error {
	if s.setFn == nil {
		return errors.New("unexpected Set call")
	}
	return s.setFn(ctx, key, data)
}

func TestCollectionAbsentKeyIsEmpty(t *testing.T) {
	c := NewCollection[item](NewMemory(), "things")
	items, snap, err := c.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", items)
	}
	if snap.Present {
		t.Fatalf("expected absent snapshot")
	}
}

func TestCollectionSaveLoad(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	c := NewCollection[item](kv, "things")

	if err := c.Save(ctx, []item{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	items, snap, err := c.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(items) != 2 || items[1].Name != "b" {
		t.Fatalf("unexpected items: %#v", items)
	}
	raw, _, _ := kv.Get(ctx, "things")
	if !snap.Present || !bytes.Equal(snap.Data, raw) {
		t.Fatalf("snapshot does not match stored bytes")
	}
}

func TestCollectionSaveNilWritesEmptyArray(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	if err := NewCollection[item](kv, "things").Save(ctx, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, ok, _ := kv.Get(ctx, "things")
	if !ok || string(raw) != "[]" {
		t.Fatalf("expected [], got %q", raw)
	}
}

func TestCollectionNullIsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	_ = kv.Set(ctx, "things", []byte("null"))
	items, _, err := NewCollection[item](kv, "things").Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty slice, got %#v", items)
	}
}

func TestCollectionMalformed(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	_ = kv.Set(ctx, "things", []byte("{not json"))
	_, snap, err := NewCollection[item](kv, "things").Load(ctx)
	if !errors.Is(err, ErrMalformed) || !errors.Is(err, ErrRead) {
		t.Fatalf("expected malformed read error, got %v", err)
	}
	if !snap.Present || string(snap.Data) != "{not json" {
		t.Fatalf("snapshot should keep raw bytes, got %#v", snap)
	}
}

func TestCollectionBackendErrors(t *testing.T) {
	ctx := context.Background()
	kv := &stubKV{
		getFn: func(context.Context, string) ([]byte, bool, error) { return nil, false, errors.New("boom") },
		setFn: func(context.Context, string, []byte) error { return errors.New("boom") },
	}
	c := NewCollection[item](kv, "things")
	if _, _, err := c.Load(ctx); !errors.Is(err, ErrRead) || errors.Is(err, ErrMalformed) {
		t.Fatalf("expected plain read error, got %v", err)
	}
	if err := c.Save(ctx, []item{{ID: 1}}); !errors.Is(err, ErrWrite) {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestCollectionRestore(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	c := NewCollection[item](kv, "things")
	_ = kv.Set(ctx, "things", []byte(`[{"id":1,"name":"a"}]`))

	_, snap, err := c.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Save(ctx, []item{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := c.Restore(ctx, snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	raw, _, _ := kv.Get(ctx, "things")
	if string(raw) != `[{"id":1,"name":"a"}]` {
		t.Fatalf("unexpected restored bytes %q", raw)
	}

	if err := c.Restore(ctx, Snapshot{}); err != nil {
		t.Fatalf("restore absent: %v", err)
	}
	raw, _, _ = kv.Get(ctx, "things")
	if string(raw) != "[]" {
		t.Fatalf("expected [] after restoring absent snapshot, got %q", raw)
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	in := []byte("abc")
	_ = m.Set(ctx, "k", in)
	in[0] = 'x'
	out, ok, _ := m.Get(ctx, "k")
	if !ok || string(out) != "abc" {
		t.Fatalf("stored value changed: %q", out)
	}
	out[0] = 'y'
	again, _, _ := m.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("returned value aliases storage: %q", again)
	}
}

func TestPingAndCloseWithoutSupport(t *testing.T) {
	if err := Ping(context.Background(), NewMemory()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := Close(NewMemory()); err != nil {
		t.Fatalf("close: %v", err)
	}
}
