package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"outbreak/internal/doc"
	"outbreak/internal/domain"
	"outbreak/internal/store"
)

const (
	// DefaultSweepInterval is how often the janitor runs
	DefaultSweepInterval = time.Minute

	// DefaultStaleAfter is how long a player may miss heartbeats before
	// being marked offline
	DefaultStaleAfter = 30 * time.Second

	// DefaultSessionTTL is how long before an abandoned session is cleaned up
	DefaultSessionTTL = 2 * time.Hour
)

// Janitor runs next to the store and tidies up after clients that went away
// without a word: it marks silent players offline and deletes sessions that
// nobody has touched for too long.
type Janitor struct {
	store      store.Store
	logger     *slog.Logger
	interval   time.Duration
	staleAfter time.Duration
	sessionTTL time.Duration
	now        func() time.Time
}

// JanitorConfig sets the janitor's timings. Zero values use the defaults.
type JanitorConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	SessionTTL time.Duration
	Now        func() time.Time
}

// NewJanitor creates a janitor over st
func NewJanitor(st store.Store, cfg JanitorConfig, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	j := &Janitor{
		store:      st,
		logger:     logger,
		interval:   cfg.Interval,
		staleAfter: cfg.StaleAfter,
		sessionTTL: cfg.SessionTTL,
		now:        cfg.Now,
	}
	if j.interval <= 0 {
		j.interval = DefaultSweepInterval
	}
	if j.staleAfter <= 0 {
		j.staleAfter = DefaultStaleAfter
	}
	if j.sessionTTL <= 0 {
		j.sessionTTL = DefaultSessionTTL
	}
	if j.now == nil {
		j.now = time.Now
	}
	return j
}

// Run sweeps periodically until ctx ends
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
				j.logger.Warn("sweep failed", "error", err)
			}
		}
	}
}

// SweepReport counts what a sweep changed.
type SweepReport struct {
	MarkedOffline   int
	SessionsRemoved int
}

// Sweep runs one cleanup pass.
func (j *Janitor) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	node, err := j.store.Get(ctx, SessionsPath)
	if err != nil {
		return report, fmt.Errorf("read sessions: %w", err)
	}
	sessions, _ := node.(map[string]any)

	now := j.now().UnixMilli()
	patch := doc.Patch{}
	for id, raw := range sessions {
		s, err := domain.DecodeSession(id, raw)
		if err != nil {
			// Leftovers of a deleted session.
			patch[SessionPath(id)] = nil
			report.SessionsRemoved++
			continue
		}

		if j.abandoned(s, now) {
			patch[SessionPath(id)] = nil
			patch[JoinCodePath(s.Code)] = nil
			report.SessionsRemoved++
			j.logger.Info("stale session cleaned up", "sessionID", id, "code", s.Code)
			continue
		}

		for _, p := range s.Players {
			if p.Status == domain.StatusOffline || now-p.LastHeartbeat < j.staleAfter.Milliseconds() {
				continue
			}
			mark, err := s.MarkStatus(p.ID, domain.StatusOffline)
			if err != nil {
				continue
			}
			patch.Merge(mark.Prefix(SessionPath(id)))
			report.MarkedOffline++
		}
	}

	if len(patch) == 0 {
		return report, nil
	}
	if err := j.store.Update(ctx, patch); err != nil {
		return SweepReport{}, fmt.Errorf("apply sweep: %w", err)
	}
	return report, nil
}

// abandoned reports whether nobody has been heard from in the session for
// longer than the session TTL.
func (j *Janitor) abandoned(s *domain.Session, now int64) bool {
	last := s.CreatedAt
	for _, p := range s.Players {
		if p.LastHeartbeat > last {
			last = p.LastHeartbeat
		}
	}
	return now-last > j.sessionTTL.Milliseconds()
}
