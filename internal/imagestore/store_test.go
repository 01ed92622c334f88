package imagestore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"tikzflow/internal/services"
)

func TestSaveAndResolve(t *testing.T) {
	store := New(t.TempDir(), 1024)
	store.newID = func() string { return "img-1" }
	ctx := context.Background()

	img, err := store.Save(ctx, "Sketch.PNG", "image/png", strings.NewReader("pngdata"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if img.ID != "img-1" || img.Filename != "img-1.png" || img.Size != 7 {
		t.Fatalf("unexpected image %+v", img)
	}
	path, err := store.Resolve(ctx, "img-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if filepath.Base(path) != "img-1.png" {
		t.Fatalf("unexpected path %s", path)
	}
}

func TestSaveUsesContentTypeExtension(t *testing.T) {
	store := New(t.TempDir(), 0)
	img, err := store.Save(context.Background(), "scan", "image/jpeg", strings.NewReader("jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(img.Filename) != ".jpg" {
		t.Fatalf("expected .jpg extension, got %s", img.Filename)
	}
}

func TestSaveRejectsContentType(t *testing.T) {
	store := New(t.TempDir(), 0)
	_, err := store.Save(context.Background(), "notes.pdf", "application/pdf", strings.NewReader("x"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSaveRejectsOversize(t *testing.T) {
	store := New(t.TempDir(), 4)
	_, err := store.Save(context.Background(), "big.png", "image/png", strings.NewReader("0123456789"))
	if !errors.Is(err, services.ErrValidation) || !strings.Contains(err.Error(), "File too large") {
		t.Fatalf("expected size validation error, got %v", err)
	}
}

func TestResolveMissing(t *testing.T) {
	store := New(t.TempDir(), 0)
	for _, id := range []string{"unknown", "", "../etc/passwd"} {
		if _, err := store.Resolve(context.Background(), id); !errors.Is(err, services.ErrNotFound) {
			t.Fatalf("Resolve(%q) = %v, want not found", id, err)
		}
	}
}

func TestResolveRequiresExactIDPrefix(t *testing.T) {
	store := New(t.TempDir(), 0)
	store.newID = func() string { return "abc123" }
	if _, err := store.Save(context.Background(), "a.png", "image/png", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Resolve(context.Background(), "abc"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("prefix of another id must not resolve, got %v", err)
	}
}
