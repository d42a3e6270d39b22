package app

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"outbreak/internal/doc"
	"outbreak/internal/domain"
	"outbreak/internal/store"
)

// Options tunes the timing of a match.
type Options struct {
	// HeartbeatInterval is how often a player refreshes their liveness.
	HeartbeatInterval time.Duration
	// BlackoutGrace is how long the host waits before skipping a blacked
	// out cure step.
	BlackoutGrace time.Duration
	// RevealDelay keeps event and round results on screen before the host
	// moves on.
	RevealDelay time.Duration
	// VoteTimeout lets the host close a stalled vote. Zero disables it.
	VoteTimeout time.Duration
}

// DefaultOptions returns the timings used by a normal match.
func DefaultOptions() Options {
	return Options{
		HeartbeatInterval: 5 * time.Second,
		BlackoutGrace:     2 * time.Second,
		RevealDelay:       3 * time.Second,
	}
}

// Service is one player's entry point to matches on a store.
type Service struct {
	store    store.Store
	dir      *Directory
	playerID string
	logger   *slog.Logger
	opts     Options
	seed     *int64
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithOptions sets match timings.
func WithOptions(opts Options) Option {
	return func(s *Service) { s.opts = opts }
}

// WithSeed makes the match's random choices reproducible.
func WithSeed(seed int64) Option {
	return func(s *Service) { s.seed = &seed }
}

// WithTracer sets the tracer used for host resolutions.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// WithClock replaces the clock used for host deadlines.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService binds a player identity to a store.
func NewService(st store.Store, playerID string, opts ...Option) (*Service, error) {
	if playerID == "" {
		return nil, domain.ErrNotAuthenticated
	}
	s := &Service{
		store:    st,
		playerID: playerID,
		logger:   slog.Default(),
		opts:     DefaultOptions(),
		tracer:   otel.Tracer("outbreak/internal/app"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("playerID", playerID)
	s.dir = NewDirectory(st, s.logger)
	return s, nil
}

// Directory returns the join code directory.
func (s *Service) Directory() *Directory {
	return s.dir
}

// CreateLobby opens a new lobby hosted by this player.
func (s *Service) CreateLobby(ctx context.Context, profile domain.Profile) (*Match, error) {
	code, err := s.dir.Reserve(ctx)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()

	p := doc.Patch{SessionPath(id): domain.NewLobby(code, s.playerID, profile)}
	p.Merge(s.dir.Register(code, id))
	if err := s.store.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("create lobby: %w", err)
	}
	s.logger.Info("lobby created", "sessionID", id, "code", code)

	return s.attach(ctx, id)
}

// Join enters the lobby behind a join code.
func (s *Service) Join(ctx context.Context, code string, profile domain.Profile) (*Match, error) {
	id, err := s.dir.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	m, err := s.newMatch(id)
	if err != nil {
		return nil, err
	}
	if err := m.propose(ctx, "join", func(sess *domain.Session) (domain.Patch, error) {
		return sess.Join(s.playerID, profile)
	}); err != nil {
		return nil, err
	}
	s.logger.Info("joined lobby", "sessionID", id, "code", NormalizeCode(code))

	return m, s.watchDisconnect(ctx, m)
}

// Rejoin returns to a session this player is already part of.
func (s *Service) Rejoin(ctx context.Context, sessionID string) (*Match, error) {
	m, err := s.attach(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := m.Heartbeat(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) attach(ctx context.Context, sessionID string) (*Match, error) {
	m, err := s.newMatch(sessionID)
	if err != nil {
		return nil, err
	}
	return m, s.watchDisconnect(ctx, m)
}

// watchDisconnect registers the hook that flags this player once their
// connection drops.
func (s *Service) watchDisconnect(ctx context.Context, m *Match) error {
	hook := domain.DisconnectPatch(s.playerID).Prefix(SessionPath(m.sessionID))
	if err := s.store.OnDisconnect(ctx, hook); err != nil {
		return fmt.Errorf("register disconnect hook: %w", err)
	}
	return nil
}

func (s *Service) newMatch(sessionID string) (*Match, error) {
	seed := int64(0)
	if s.seed != nil {
		seed = *s.seed
	} else {
		var err error
		if seed, err = newSeed(); err != nil {
			return nil, err
		}
	}
	return &Match{
		store:     s.store,
		sessionID: sessionID,
		playerID:  s.playerID,
		logger:    s.logger.With("sessionID", sessionID),
		opts:      s.opts,
		rng:       rand.New(rand.NewSource(seed)),
		tracer:    s.tracer,
		now:       s.now,
	}, nil
}

// newSeed generates a random seed using crypto/rand.
func newSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Match is one player's handle on one session. Every action reads the
// current snapshot, validates against it and writes the resulting patch.
type Match struct {
	store     store.Store
	sessionID string
	playerID  string
	logger    *slog.Logger
	opts      Options
	tracer    trace.Tracer
	now       func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// SessionID returns the session this match is bound to.
func (m *Match) SessionID() string {
	return m.sessionID
}

// PlayerID returns the acting player.
func (m *Match) PlayerID() string {
	return m.playerID
}

// Snapshot reads the current session.
func (m *Match) Snapshot(ctx context.Context) (*domain.Session, error) {
	node, err := m.store.Get(ctx, SessionPath(m.sessionID))
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	return domain.DecodeSession(m.sessionID, node)
}

// Watch streams session snapshots, the current one first. The channel is
// closed when ctx ends or the session is deleted.
func (m *Match) Watch(ctx context.Context) (<-chan *domain.Session, error) {
	sub, err := m.store.Observe(ctx, SessionPath(m.sessionID))
	if err != nil {
		return nil, fmt.Errorf("observe session: %w", err)
	}

	out := make(chan *domain.Session)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				s, err := domain.DecodeSession(m.sessionID, ev.Value)
				if errors.Is(err, domain.ErrSessionNotFound) {
					return
				}
				if err != nil {
					m.logger.Warn("skipping undecodable session", "error", err)
					continue
				}
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

type operation func(*domain.Session) (domain.Patch, error)

// propose validates an action against the current snapshot and writes it.
func (m *Match) propose(ctx context.Context, action string, op operation) error {
	sess, err := m.Snapshot(ctx)
	if err != nil {
		return err
	}
	p, err := op(sess)
	if err != nil {
		m.logger.Debug("action rejected", "action", action, "phase", sess.Phase, "error", err)
		return err
	}
	return m.commit(ctx, action, p)
}

func (m *Match) commit(ctx context.Context, action string, p domain.Patch) error {
	if len(p) == 0 {
		return nil
	}
	if err := m.store.Update(ctx, p.Prefix(SessionPath(m.sessionID))); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	return nil
}

// randomized runs op with the match's random source.
func (m *Match) randomized(op func(*domain.Session, *rand.Rand) (domain.Patch, error)) operation {
	return func(s *domain.Session) (domain.Patch, error) {
		m.rngMu.Lock()
		defer m.rngMu.Unlock()
		return op(s, m.rng)
	}
}

// StartGame starts the match (host only)
func (m *Match) StartGame(ctx context.Context) error {
	return m.propose(ctx, "startGame", func(s *domain.Session) (domain.Patch, error) {
		return s.StartGame(m.playerID)
	})
}

// ConfirmRole acknowledges the player's secret role.
func (m *Match) ConfirmRole(ctx context.Context) error {
	return m.propose(ctx, "confirmRole", func(s *domain.Session) (domain.Patch, error) {
		return s.ConfirmRole(m.playerID)
	})
}

// StartElection opens the Doctor election (host only)
func (m *Match) StartElection(ctx context.Context) error {
	return m.propose(ctx, "startElection", func(s *domain.Session) (domain.Patch, error) {
		return s.StartElection(m.playerID)
	})
}

// VoteElection votes for a public role candidate.
func (m *Match) VoteElection(ctx context.Context, candidate string) error {
	return m.propose(ctx, "voteElection", func(s *domain.Session) (domain.Patch, error) {
		return s.CastElectionVote(m.playerID, candidate)
	})
}

// RollDice rolls two dice for the current roller and submits the total.
func (m *Match) RollDice(ctx context.Context) (int, error) {
	var value int
	err := m.propose(ctx, "rollDice", m.randomized(func(s *domain.Session, rng *rand.Rand) (domain.Patch, error) {
		value = domain.RollDice(rng)
		return s.SubmitRoll(m.playerID, value, rng)
	}))
	return value, err
}

// SubmitRoll submits a roll made outside the game, e.g. with physical dice.
func (m *Match) SubmitRoll(ctx context.Context, value int) error {
	return m.propose(ctx, "submitRoll", m.randomized(func(s *domain.Session, rng *rand.Rand) (domain.Patch, error) {
		return s.SubmitRoll(m.playerID, value, rng)
	}))
}

// Antidote cures target after an Antidote roll.
func (m *Match) Antidote(ctx context.Context, target string) error {
	return m.propose(ctx, "antidote", func(s *domain.Session) (domain.Patch, error) {
		return s.ResolveAntidote(m.playerID, target)
	})
}

// ProphecyCount asks how many living players are a threat.
func (m *Match) ProphecyCount(ctx context.Context) error {
	return m.propose(ctx, "prophecyCount", func(s *domain.Session) (domain.Patch, error) {
		return s.ResolveProphecyCount(m.playerID)
	})
}

// ProphecyInvestigate asks whether target is a threat.
func (m *Match) ProphecyInvestigate(ctx context.Context, target string) error {
	return m.propose(ctx, "prophecyInvestigate", func(s *domain.Session) (domain.Patch, error) {
		return s.ResolveProphecyInvestigate(m.playerID, target)
	})
}

// Quarantine removes two players from this round's vote.
func (m *Match) Quarantine(ctx context.Context, first, second string) error {
	return m.propose(ctx, "quarantine", func(s *domain.Session) (domain.Patch, error) {
		return s.ResolveQuarantine(m.playerID, []string{first, second})
	})
}

// AdvanceFromEvent moves past a resolved dice event.
func (m *Match) AdvanceFromEvent(ctx context.Context) error {
	return m.propose(ctx, "advanceFromEvent", func(s *domain.Session) (domain.Patch, error) {
		return s.AdvanceFromEvent(m.playerID)
	})
}

// Protect shields target this round (Guard only)
func (m *Match) Protect(ctx context.Context, target string) error {
	return m.propose(ctx, "protect", func(s *domain.Session) (domain.Patch, error) {
		return s.Protect(m.playerID, target)
	})
}

// Cure treats target this round (Doctor only)
func (m *Match) Cure(ctx context.Context, target string) error {
	return m.propose(ctx, "cure", func(s *domain.Session) (domain.Patch, error) {
		return s.Cure(m.playerID, target)
	})
}

// SkipCure passes on this round's cure.
func (m *Match) SkipCure(ctx context.Context) error {
	return m.propose(ctx, "skipCure", func(s *domain.Session) (domain.Patch, error) {
		return s.SkipCure(m.playerID)
	})
}

// VoteRound votes to exile target.
func (m *Match) VoteRound(ctx context.Context, target string) error {
	return m.propose(ctx, "voteRound", func(s *domain.Session) (domain.Patch, error) {
		return s.CastRoundVote(m.playerID, target)
	})
}

// ResolveRound computes the round outcome (host only)
func (m *Match) ResolveRound(ctx context.Context) error {
	return m.propose(ctx, "resolveRound", func(s *domain.Session) (domain.Patch, error) {
		return s.ResolveRound(m.playerID)
	})
}

// StartNextRound opens the next round (host only)
func (m *Match) StartNextRound(ctx context.Context) error {
	return m.propose(ctx, "startNextRound", func(s *domain.Session) (domain.Patch, error) {
		return s.StartNextRound(m.playerID)
	})
}

// ForceResolve closes whatever vote is open with the votes cast so far
// (host only)
func (m *Match) ForceResolve(ctx context.Context) error {
	sess, err := m.Snapshot(ctx)
	if err != nil {
		return err
	}
	if sess.Phase.IsElection() {
		return m.propose(ctx, "forceResolveElection", m.randomized(func(s *domain.Session, rng *rand.Rand) (domain.Patch, error) {
			return s.ForceResolveElection(m.playerID, rng)
		}))
	}
	return m.propose(ctx, "forceResolution", func(s *domain.Session) (domain.Patch, error) {
		return s.ForceResolution(m.playerID)
	})
}

// Heartbeat refreshes the player's liveness.
func (m *Match) Heartbeat(ctx context.Context) error {
	return m.propose(ctx, "heartbeat", func(s *domain.Session) (domain.Patch, error) {
		return s.Heartbeat(m.playerID)
	})
}

// KeepAlive sends heartbeats until ctx ends or the player is no longer in
// the session.
func (m *Match) KeepAlive(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := m.Heartbeat(ctx)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrNotInSession), errors.Is(err, domain.ErrSessionNotFound):
				return err
			case ctx.Err() != nil:
				return nil
			default:
				m.logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

// Leave removes the player from the session. The last player out deletes
// the session and its join code.
func (m *Match) Leave(ctx context.Context) error {
	if err := m.store.CancelDisconnect(ctx); err != nil {
		return fmt.Errorf("cancel disconnect hook: %w", err)
	}
	sess, err := m.Snapshot(ctx)
	if err != nil {
		return err
	}
	p, empty, err := sess.Leave(m.playerID)
	if err != nil {
		return err
	}
	if empty {
		if err := m.store.Update(ctx, doc.Patch{
			SessionPath(m.sessionID): nil,
			JoinCodePath(sess.Code):  nil,
		}); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		m.logger.Info("session closed")
		return nil
	}
	if err := m.commit(ctx, "leave", p); err != nil {
		return err
	}
	m.logger.Info("left session")
	return nil
}
