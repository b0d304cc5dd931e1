package media

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	"github.com/riskibarqy/learnhub-onboarding/internal/usecase"
)

func TestFileStore_SaveWritesUnderUserDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := NewFileStore(root, 1024)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	store.newID = func() string { return "fixed" }

	ref, err := store.Save(t.Context(), "user-1", usecase.ImageUpload{
		Filename:    "../../Me.PNG",
		ContentType: "image/png",
		Body:        strings.NewReader("png-bytes"),
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if ref.URI != filepath.Join(root, "user-1", "fixed.png") || ref.Name != "Me.PNG" || ref.Type != "image/png" {
		t.Fatalf("unexpected ref: %+v", ref)
	}
	body, err := os.ReadFile(ref.URI)
	if err != nil || string(body) != "png-bytes" {
		t.Fatalf("unexpected stored file: %q err=%v", body, err)
	}
}

func TestFileStore_SaveRejectsOversizedAndCleansUp(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := NewFileStore(root, 4)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	_, err = store.Save(t.Context(), "user-1", usecase.ImageUpload{Filename: "a.jpg", Body: strings.NewReader("too-large")})
	if !errors.Is(err, usecase.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(root, "user-1"))
	if len(entries) != 0 {
		t.Fatalf("expected partial file removal, found %d entries", len(entries))
	}
}

func TestFileStore_SaveRejectsTraversalUserID(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Save(t.Context(), "../etc", usecase.ImageUpload{Body: strings.NewReader("x")}); !errors.Is(err, usecase.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFileStore_RemoveDeletesOnlyInsideRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := NewFileStore(filepath.Join(root, "media"), 1024)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ref, err := store.Save(t.Context(), "user-1", usecase.ImageUpload{Filename: "me.png", Body: strings.NewReader("png")})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	outside := filepath.Join(root, "keep.png")
	if err := os.WriteFile(outside, []byte("x"), 0o600); err != nil {
		t.Fatalf("write outside file: %v", err)
	}
	if err := store.Remove(t.Context(), onboarding.ImageRef{URI: outside}); err != nil {
		t.Fatalf("remove outside: %v", err)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Fatalf("file outside the root must stay: %v", err)
	}

	if err := store.Remove(t.Context(), ref); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(ref.URI); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected stored file to be gone, stat err=%v", err)
	}
	if err := store.Remove(t.Context(), ref); err != nil {
		t.Fatalf("second remove must be a no-op: %v", err)
	}
}
