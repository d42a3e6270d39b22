// Package identity provides the anonymous per-device player id every store
// write is attributed to.
package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"outbreak/internal/domain"
)

// Provider hands out the player id for this device.
type Provider interface {
	PlayerID() (string, error)
}

// Static is a fixed id. The empty id is unauthenticated.
type Static string

// PlayerID returns the id, or ErrNotAuthenticated when it is empty.
func (s Static) PlayerID() (string, error) {
	if s == "" {
		return "", domain.ErrNotAuthenticated
	}
	return string(s), nil
}

// New returns a fresh anonymous id.
func New() Static {
	return Static(uuid.NewString())
}

// File keeps the id in a file so a device rejoins under the same identity
// after a restart.
type File struct {
	Path string
}

// PlayerID reads the stored id, creating one on first use.
func (f File) PlayerID() (string, error) {
	if f.Path == "" {
		return "", domain.ErrNotAuthenticated
	}

	data, err := os.ReadFile(f.Path)
	switch {
	case err == nil:
		id := strings.TrimSpace(string(data))
		if _, perr := uuid.Parse(id); perr != nil {
			return "", fmt.Errorf("identity file %s: %w", f.Path, perr)
		}
		return id, nil
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("read identity: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return "", fmt.Errorf("create identity dir: %w", err)
	}
	if err := os.WriteFile(f.Path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write identity: %w", err)
	}
	return id, nil
}
