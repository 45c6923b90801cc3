package store

import (
	"bytes"
	"context"
	"testing"
)

func TestMemoryStoreSaveThenLoad(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if err := m.SaveSnapshot(ctx, "doc-1", []byte("hello")); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := m.LoadSnapshot(ctx, "doc-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("unexpected snapshot: %q", got)
	}
}

func TestMemoryStoreLoadMissingReturnsNil(t *testing.T) {
	m := NewMemoryStore()
	got, err := m.LoadSnapshot(context.Background(), "missing")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing snapshot, got %v", got)
	}
}

func TestMemoryStoreSaveOverwritesPriorSnapshot(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	_ = m.SaveSnapshot(ctx, "doc-1", []byte("first"))
	_ = m.SaveSnapshot(ctx, "doc-1", []byte("second"))

	got, _ := m.LoadSnapshot(ctx, "doc-1")
	if !bytes.Equal(got, []byte("second")) {
		t.Fatalf("expected overwrite, got %q", got)
	}
}
