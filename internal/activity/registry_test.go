package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/oriys/actorforge/internal/domain"
)

func TestInMemoryRegistrySaveAndResolveExactVersion(t *testing.T) {
	r := NewInMemoryRegistry()
	ctx := context.Background()

	def := domain.ActivityDefinition{Name: "send-email", Version: "1.0.0", BlobPath: "activities/send-email-1.0.0.wasm"}
	if err := r.Save(ctx, def); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := r.Resolve(ctx, "send-email", "1.0.0")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.BlobPath != def.BlobPath {
		t.Fatalf("BlobPath = %q, want %q", got.BlobPath, def.BlobPath)
	}
}

func TestInMemoryRegistryResolveLatestByVersion(t *testing.T) {
	r := NewInMemoryRegistry()
	ctx := context.Background()

	for _, v := range []string{"1.0.0", "1.2.0", "1.10.0", "2.0.0", "1.9.9"} {
		if err := r.Save(ctx, domain.ActivityDefinition{Name: "send-email", Version: v, BlobPath: "blob-" + v}); err != nil {
			t.Fatalf("Save(%s): %v", v, err)
		}
	}

	got, err := r.Resolve(ctx, "send-email", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Version != "2.0.0" {
		t.Fatalf("Version = %q, want 2.0.0", got.Version)
	}
}

func TestInMemoryRegistryResolveLatestPrefersNumericSegmentOverLexical(t *testing.T) {
	r := NewInMemoryRegistry()
	ctx := context.Background()

	// 1.10.0 must outrank 1.9.9 numerically even though "10" < "9" lexically.
	for _, v := range []string{"1.9.9", "1.10.0"} {
		_ = r.Save(ctx, domain.ActivityDefinition{Name: "a", Version: v})
	}
	got, err := r.Resolve(ctx, "a", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Version != "1.10.0" {
		t.Fatalf("Version = %q, want 1.10.0", got.Version)
	}
}

func TestInMemoryRegistryResolveMissingReturnsNotFound(t *testing.T) {
	r := NewInMemoryRegistry()
	_, err := r.Resolve(context.Background(), "nope", "")
	if !errors.Is(err, domain.ErrActivityNotFound) {
		t.Fatalf("err = %v, want ErrActivityNotFound", err)
	}
}

func TestInMemoryRegistrySaveOverwritesSameVersion(t *testing.T) {
	r := NewInMemoryRegistry()
	ctx := context.Background()

	_ = r.Save(ctx, domain.ActivityDefinition{Name: "a", Version: "1.0.0", BlobPath: "old"})
	_ = r.Save(ctx, domain.ActivityDefinition{Name: "a", Version: "1.0.0", BlobPath: "new"})

	versions, err := r.List(ctx, "a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(versions) != 1 || versions[0].BlobPath != "new" {
		t.Fatalf("versions = %+v, want single entry with BlobPath=new", versions)
	}
}

func TestInMemoryRegistryDeleteAndExists(t *testing.T) {
	r := NewInMemoryRegistry()
	ctx := context.Background()

	_ = r.Save(ctx, domain.ActivityDefinition{Name: "a", Version: "1.0.0"})

	exists, err := r.Exists(ctx, "a", "1.0.0")
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v, want true, nil", exists, err)
	}

	if err := r.Delete(ctx, "a", "1.0.0"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	exists, _ = r.Exists(ctx, "a", "1.0.0")
	if exists {
		t.Fatal("expected activity to be gone after Delete")
	}
}
