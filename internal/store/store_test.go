package store

import (
	"context"
	"os"
	"testing"
)

func TestMemStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	if err := s.Save(ctx, "A1", []byte(`{"x":1}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	b, err := s.Load(ctx, "A1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(b) != `{"x":1}` {
		t.Errorf("load = %s", b)
	}
	if _, err := s.Load(ctx, "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "A1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Load(ctx, "A1"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemStoreSaveCopiesData(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	buf := []byte(`{"x":1}`)
	s.Save(ctx, "A1", buf)
	buf[2] = 'Y'
	got, _ := s.Load(ctx, "A1")
	if string(got) != `{"x":1}` {
		t.Errorf("mutating caller buffer affected stored copy: %s", got)
	}
}

func TestFileStoreRoundTripAndBatch(t *testing.T) {
	dir, err := os.MkdirTemp("", "turnserver-filestore")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	defer os.RemoveAll(dir)

	ctx := context.Background()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new filestore: %v", err)
	}

	if err := fs.Save(ctx, "A1", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	b, err := fs.Load(ctx, "A1")
	if err != nil || string(b) != `{"a":1}` {
		t.Fatalf("load = %s, err = %v", b, err)
	}

	batch := map[string][]byte{
		"B1": []byte(`{"b":1}`),
		"B2": []byte(`{"b":2}`),
	}
	if err := fs.BatchSave(ctx, batch); err != nil {
		t.Fatalf("batch save: %v", err)
	}
	all, err := fs.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("loadAll returned %d entries, want 3", len(all))
	}

	if err := fs.Delete(ctx, "A1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := fs.Load(ctx, "A1"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
