package identity

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"outbreak/internal/domain"
)

func TestStatic(t *testing.T) {
	if _, err := Static("").PlayerID(); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	id, err := New().PlayerID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("expected uuid, got %q", id)
	}
}

func TestFileIsStable(t *testing.T) {
	f := File{Path: filepath.Join(t.TempDir(), "nested", "player-id")}

	first, err := f.PlayerID()
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.PlayerID()
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first != second {
		t.Fatalf("expected stable id, got %q then %q", first, second)
	}
}

func TestFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "player-id")
	if err := os.WriteFile(path, []byte("not-an-id"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := (File{Path: path}).PlayerID(); err == nil {
		t.Fatalf("expected error for malformed id")
	}
	if _, err := (File{}).PlayerID(); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}
