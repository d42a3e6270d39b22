package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"outbreak/internal/domain"
	"outbreak/internal/store"
)

// retryDelay is how long the host waits before retrying a failed write.
const retryDelay = 500 * time.Millisecond

// hostState remembers when the session entered its current step, for the
// resolutions that wait.
type hostState struct {
	stage string
	since time.Time
}

// RunHost follows the session and, while this player hosts, performs every
// resolution write once its condition holds in the latest snapshot. A
// player next in line claims hosting when the host drops. It returns when
// ctx ends or the session is deleted.
func (m *Match) RunHost(ctx context.Context) error {
	snaps, err := m.Watch(ctx)
	if err != nil {
		return err
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var (
		latest *domain.Session
		state  hostState
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-snaps:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return domain.ErrSessionNotFound
			}
			latest = s
		case <-timer.C:
		}
		if latest == nil {
			continue
		}
		if wait := m.hostStep(ctx, latest, &state); wait > 0 {
			timer.Reset(wait)
		}
	}
}

func stageKey(s *domain.Session) string {
	return fmt.Sprintf("%s|%d|%s|%v|%v|%v|%d|%d", s.Phase, s.Round, s.RoundSubPhase,
		s.DiceState.EventResolved, s.RoundState.Resolved, s.TiedCandidates,
		len(s.Votes), len(s.RoundState.Votes))
}

// hostStep performs at most one resolution for s. It returns how long to
// wait before looking at s again, zero when only a new snapshot can change
// anything.
func (m *Match) hostStep(ctx context.Context, s *domain.Session, state *hostState) time.Duration {
	me := m.playerID
	if !s.IsHost(me) {
		if s.HostCandidate() == me {
			return m.act(ctx, s, "claimHost", func(s *domain.Session) (domain.Patch, error) {
				return s.ClaimHost(me)
			})
		}
		return 0
	}

	if stage := stageKey(s); stage != state.stage {
		state.stage = stage
		state.since = m.now()
	}
	elapsed := m.now().Sub(state.since)

	switch s.Phase {
	case domain.PhaseStarting:
		return m.act(ctx, s, "assignRoles", m.randomized(func(s *domain.Session, rng *rand.Rand) (domain.Patch, error) {
			return s.AssignRoles(me, rng)
		}))

	case domain.PhaseRoleReveal:
		if s.AllConfirmed() {
			return m.act(ctx, s, "startElection", func(s *domain.Session) (domain.Patch, error) {
				return s.StartElection(me)
			})
		}

	case domain.PhaseElectionDoctor, domain.PhaseElectionGuard:
		if s.ElectionComplete() {
			return m.act(ctx, s, "resolveElection", func(s *domain.Session) (domain.Patch, error) {
				return s.ResolveElection(me)
			})
		}
		return m.afterVoteTimeout(ctx, s, elapsed, "forceResolveElection", m.randomized(func(s *domain.Session, rng *rand.Rand) (domain.Patch, error) {
			return s.ForceResolveElection(me, rng)
		}))

	case domain.PhaseRound:
		return m.hostRoundStep(ctx, s, elapsed)
	}
	return 0
}

func (m *Match) hostRoundStep(ctx context.Context, s *domain.Session, elapsed time.Duration) time.Duration {
	me := m.playerID
	switch s.RoundSubPhase {
	case domain.SubPhaseDiceEvent:
		if s.DiceState.EventResolved {
			return m.after(ctx, s, elapsed, m.opts.RevealDelay, "advanceFromEvent", func(s *domain.Session) (domain.Patch, error) {
				return s.AdvanceFromEvent(me)
			})
		}

	case domain.SubPhaseProtection:
		if !s.IsAlive(s.PublicRoles.Guard) {
			return m.act(ctx, s, "skipProtection", func(s *domain.Session) (domain.Patch, error) {
				return s.SkipProtection(me)
			})
		}

	case domain.SubPhaseCure:
		if s.DiceState.SkipCurePhase {
			return m.after(ctx, s, elapsed, m.opts.BlackoutGrace, "skipBlackoutCure", func(s *domain.Session) (domain.Patch, error) {
				return s.SkipBlackoutCure(me)
			})
		}
		if !s.IsAlive(s.PublicRoles.Doctor) {
			return m.act(ctx, s, "skipCure", func(s *domain.Session) (domain.Patch, error) {
				return s.SkipCure(me)
			})
		}

	case domain.SubPhaseVoting:
		if s.VotingComplete() {
			return m.act(ctx, s, "beginResolution", func(s *domain.Session) (domain.Patch, error) {
				return s.BeginResolution(me)
			})
		}
		return m.afterVoteTimeout(ctx, s, elapsed, "forceResolution", func(s *domain.Session) (domain.Patch, error) {
			return s.ForceResolution(me)
		})

	case domain.SubPhaseResolution:
		if !s.RoundState.Resolved {
			return m.act(ctx, s, "resolveRound", func(s *domain.Session) (domain.Patch, error) {
				return s.ResolveRound(me)
			})
		}
		return m.after(ctx, s, elapsed, m.opts.RevealDelay, "startNextRound", func(s *domain.Session) (domain.Patch, error) {
			return s.StartNextRound(me)
		})
	}
	return 0
}

// after runs op once d has passed in the current stage.
func (m *Match) after(ctx context.Context, s *domain.Session, elapsed, d time.Duration, action string, op operation) time.Duration {
	if elapsed < d {
		return d - elapsed
	}
	return m.act(ctx, s, action, op)
}

// afterVoteTimeout closes a stalled vote. Every vote cast starts a new stage,
// so the timeout counts from the last vote.
func (m *Match) afterVoteTimeout(ctx context.Context, s *domain.Session, elapsed time.Duration, action string, op operation) time.Duration {
	if m.opts.VoteTimeout <= 0 {
		return 0
	}
	return m.after(ctx, s, elapsed, m.opts.VoteTimeout, action, op)
}

// act runs a host resolution against s and writes it. Failures are logged
// rather than returned so the host loop keeps folding; a retryable failure
// asks for another look after retryDelay.
func (m *Match) act(ctx context.Context, s *domain.Session, action string, op operation) time.Duration {
	p, err := op(s)
	if errors.Is(err, domain.ErrNotReady) {
		return 0
	}
	if err != nil {
		m.logger.Warn("host resolution rejected", "action", action, "phase", s.Phase, "error", err)
		return 0
	}
	if len(p) == 0 {
		return 0
	}

	ctx, span := m.tracer.Start(ctx, "host."+action, trace.WithAttributes(
		attribute.String("session.id", m.sessionID),
		attribute.String("session.phase", string(s.Phase)),
		attribute.Int("session.round", s.Round),
	))
	defer span.End()

	if err := m.commit(ctx, action, p); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if store.IsRetryable(err) {
			m.logger.Warn("host write failed, retrying", "action", action, "error", err)
			return retryDelay
		}
		if ctx.Err() == nil {
			m.logger.Error("host write failed", "action", action, "error", err)
		}
		return 0
	}
	m.logger.Info("resolved", "action", action, "phase", s.Phase, "round", s.Round)
	return 0
}
