package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"outbreak/internal/doc"
	"outbreak/internal/domain"
	"outbreak/internal/store"
)

const (
	// DefaultCodeLength is the default length for join codes
	DefaultCodeLength = 6

	// codeAttempts bounds how often a colliding code is regenerated.
	codeAttempts = 10
)

// CodeChars are characters used for join codes (no ambiguous chars)
const CodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Top level document collections.
const (
	SessionsPath  = "sessions"
	JoinCodesPath = "joinCodes"
)

// SessionPath returns the document path of a session.
func SessionPath(id string) string {
	return doc.Join(SessionsPath, id)
}

// JoinCodePath returns the document path of a join code mapping.
func JoinCodePath(code string) string {
	return doc.Join(JoinCodesPath, code)
}

// Directory maps join codes to sessions
type Directory struct {
	store      store.Store
	codeLength int
	logger     *slog.Logger
}

// NewDirectory creates a directory over the shared document
func NewDirectory(st store.Store, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		store:      st,
		codeLength: DefaultCodeLength,
		logger:     logger,
	}
}

// GenerateCode generates a random join code
func (d *Directory) GenerateCode() string {
	b := make([]byte, d.codeLength)
	rand.Read(b)

	code := make([]byte, d.codeLength)
	for i := range code {
		code[i] = CodeChars[int(b[i])%len(CodeChars)]
	}

	return string(code)
}

// Reserve finds a code that no session uses yet.
func (d *Directory) Reserve(ctx context.Context) (string, error) {
	for attempts := 0; attempts < codeAttempts; attempts++ {
		code := d.GenerateCode()
		existing, err := d.store.Get(ctx, JoinCodePath(code))
		if err != nil {
			return "", fmt.Errorf("check join code: %w", err)
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", errors.New("failed to generate unique join code")
}

// Register writes the mapping from code to sessionID.
func (d *Directory) Register(code, sessionID string) doc.Patch {
	return doc.Patch{JoinCodePath(code): map[string]any{"sessionId": sessionID}}
}

// NormalizeCode uppercases a human-entered code and strips whitespace.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.Join(strings.Fields(code), ""))
}

// Resolve returns the session a join code points at.
func (d *Directory) Resolve(ctx context.Context, code string) (string, error) {
	code = NormalizeCode(code)
	if len(code) != d.codeLength {
		return "", domain.ErrSessionNotFound
	}
	node, err := d.store.Get(ctx, JoinCodePath(code))
	if err != nil {
		return "", fmt.Errorf("resolve join code: %w", err)
	}
	var entry struct {
		SessionID string `json:"sessionId"`
	}
	if node == nil {
		return "", domain.ErrSessionNotFound
	}
	if err := doc.Decode(node, &entry); err != nil || entry.SessionID == "" {
		d.logger.Warn("malformed join code entry", "code", code, "error", err)
		return "", domain.ErrSessionNotFound
	}
	return entry.SessionID, nil
}

// Stats summarizes what the directory currently holds.
type Stats struct {
	Sessions int `json:"sessions"`
	Players  int `json:"players"`
}

// Stats returns the number of sessions and players in the document.
func (d *Directory) Stats(ctx context.Context) (Stats, error) {
	node, err := d.store.Get(ctx, SessionsPath)
	if err != nil {
		return Stats{}, fmt.Errorf("read sessions: %w", err)
	}
	sessions, _ := node.(map[string]any)

	var stats Stats
	for id, raw := range sessions {
		s, err := domain.DecodeSession(id, raw)
		if err != nil {
			continue
		}
		stats.Sessions++
		stats.Players += len(s.Players)
	}
	return stats, nil
}
