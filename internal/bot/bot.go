// Package bot plays a match with random legal moves. Bots fill tables for
// load tests and drive the simulate command.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"outbreak/internal/app"
	"outbreak/internal/domain"
)

// Bot drives one player's Match.
type Bot struct {
	match   *app.Match
	rng     *rand.Rand
	logger  *slog.Logger
	startAt int
	done    map[string]bool
}

// Option configures a Bot.
type Option func(*Bot)

// WithStartAt makes a hosting bot start the game once n players are in the
// lobby.
func WithStartAt(n int) Option {
	return func(b *Bot) { b.startAt = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bot) { b.logger = logger }
}

// New creates a bot for m. Its choices are drawn from seed.
func New(m *app.Match, seed int64, opts ...Option) *Bot {
	b := &Bot{
		match:   m,
		rng:     rand.New(rand.NewSource(seed)),
		logger:  slog.Default(),
		startAt: domain.MinPlayers,
		done:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("playerID", m.PlayerID())
	return b
}

// Play acts on every snapshot until the match finishes. It returns the
// final session.
func (b *Bot) Play(ctx context.Context) (*domain.Session, error) {
	snaps, err := b.match.Watch(ctx)
	if err != nil {
		return nil, err
	}
	for s := range snaps {
		if s.Phase == domain.PhaseFinished {
			return s, nil
		}
		if !s.HasPlayer(b.match.PlayerID()) {
			return nil, domain.ErrNotInSession
		}
		if err := b.step(ctx, s); err != nil {
			return nil, err
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, domain.ErrSessionNotFound
}

// step performs at most one move for s. Moves that lose a race with
// another client are dropped; the next snapshot shows what happened.
func (b *Bot) step(ctx context.Context, s *domain.Session) error {
	action, move := b.choose(s)
	if move == nil {
		return nil
	}
	key := fmt.Sprintf("%s|%d|%s|%s", s.Phase, s.Round, s.RoundSubPhase, action)
	if revotable[action] {
		// The view already hides votes that were cast; a tie clears them.
		key = ""
	}
	if key != "" && b.done[key] {
		return nil
	}

	err := move(ctx)
	switch {
	case err == nil:
		b.markDone(key)
		b.logger.Debug("bot moved", "action", action, "phase", s.Phase, "round", s.Round)
		return nil
	case errors.Is(err, domain.ErrNotReady),
		errors.Is(err, domain.ErrInvalidPhase),
		errors.Is(err, domain.ErrAlreadyVoted),
		errors.Is(err, domain.ErrNotAuthorized),
		errors.Is(err, domain.ErrInvalidCandidate):
		b.logger.Debug("bot move rejected", "action", action, "error", err)
		b.markDone(key)
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("%s: %w", action, err)
	}
}

func (b *Bot) markDone(key string) {
	if key != "" {
		b.done[key] = true
	}
}

type move func(context.Context) error

var revotable = map[string]bool{"elect": true, "vote": true}

// choose picks this player's move for the current view, if any.
func (b *Bot) choose(s *domain.Session) (string, move) {
	me := b.match.PlayerID()
	self, _ := s.Player(me)

	switch v := s.View().(type) {
	case domain.WaitingView:
		if v.HostID == me && v.CanStart && len(v.Players) >= b.startAt {
			return "start", b.match.StartGame
		}

	case domain.RoleRevealView:
		if !self.RoleConfirmed {
			return "confirm", b.match.ConfirmRole
		}

	case domain.ElectionView:
		if _, voted := v.Votes[me]; voted || len(v.Candidates) == 0 {
			return "", nil
		}
		candidate := b.pick(v.Candidates)
		return "elect", func(ctx context.Context) error {
			return b.match.VoteElection(ctx, candidate)
		}

	case domain.RoundView:
		return b.chooseRound(s, v)
	}
	return "", nil
}

func (b *Bot) chooseRound(s *domain.Session, v domain.RoundView) (string, move) {
	me := b.match.PlayerID()
	others := without(v.Living, me)

	switch v.Step {
	case domain.SubPhaseDiceRoll:
		if v.Dice.CurrentRollerID == me {
			return "roll", func(ctx context.Context) error {
				_, err := b.match.RollDice(ctx)
				return err
			}
		}

	case domain.SubPhaseDiceEvent:
		if v.Dice.CurrentRollerID != me || v.Dice.EventResolved {
			return "", nil
		}
		return b.chooseEvent(v, others)

	case domain.SubPhaseProtection:
		if v.Guard == me && len(others) > 0 {
			target := b.pick(others)
			return "protect", func(ctx context.Context) error {
				return b.match.Protect(ctx, target)
			}
		}

	case domain.SubPhaseCure:
		if v.Doctor != me || v.Dice.SkipCurePhase {
			return "", nil
		}
		if len(others) == 0 || b.rng.Intn(4) == 0 {
			return "skipCure", b.match.SkipCure
		}
		target := b.pick(others)
		return "cure", func(ctx context.Context) error {
			return b.match.Cure(ctx, target)
		}

	case domain.SubPhaseVoting:
		if _, voted := v.Votes[me]; voted || !s.CanVote(me) {
			return "", nil
		}
		var targets []string
		for _, id := range others {
			if s.CanBeVoted(id) {
				targets = append(targets, id)
			}
		}
		if len(targets) == 0 {
			return "", nil
		}
		target := b.pick(targets)
		return "vote", func(ctx context.Context) error {
			return b.match.VoteRound(ctx, target)
		}
	}
	return "", nil
}

func (b *Bot) chooseEvent(v domain.RoundView, others []string) (string, move) {
	switch v.Dice.EventType {
	case domain.EventAntidote:
		target := b.pick(v.Living)
		return "antidote", func(ctx context.Context) error {
			return b.match.Antidote(ctx, target)
		}
	case domain.EventProphecy:
		if b.rng.Intn(2) == 0 {
			return "prophecyCount", b.match.ProphecyCount
		}
		target := b.pick(v.Living)
		return "prophecyInvestigate", func(ctx context.Context) error {
			return b.match.ProphecyInvestigate(ctx, target)
		}
	case domain.EventQuarantine:
		if len(others) < domain.QuarantineSize {
			return "", nil
		}
		perm := b.rng.Perm(len(others))
		first, second := others[perm[0]], others[perm[1]]
		return "quarantine", func(ctx context.Context) error {
			return b.match.Quarantine(ctx, first, second)
		}
	}
	return "", nil
}

func (b *Bot) pick(ids []string) string {
	return ids[b.rng.Intn(len(ids))]
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
