package blobstore

import (
	"context"
	"errors"
	"testing"

	"github.com/oriys/actorforge/internal/domain"
)

func TestInMemoryStorePutGet(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	if err := s.Put(ctx, "activities/echo@1.wasm", []byte("binary")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, err := s.Get(ctx, "activities/echo@1.wasm")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "binary" {
		t.Fatalf("Get data = %q, want %q", data, "binary")
	}
}

func TestInMemoryStoreGetMissing(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrBlobNotFound) {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestInMemoryStoreExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	_ = s.Put(ctx, "p", []byte("x"))

	ok, err := s.Exists(ctx, "p")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true, nil", ok, err)
	}

	if err := s.Delete(ctx, "p"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	ok, _ = s.Exists(ctx, "p")
	if ok {
		t.Fatal("expected Exists to be false after delete")
	}
}

func TestInMemoryStorePutIsDefensiveCopy(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	data := []byte("original")
	_ = s.Put(ctx, "p", data)
	data[0] = 'X'

	got, _ := s.Get(ctx, "p")
	if string(got) != "original" {
		t.Fatalf("Put retained a reference to caller's slice: got %q", got)
	}
}
