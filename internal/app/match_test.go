package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"outbreak/internal/doc"
	"outbreak/internal/domain"
	"outbreak/internal/store/memstore"
)

var testOptions = Options{
	HeartbeatInterval: time.Hour,
	BlackoutGrace:     20 * time.Millisecond,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type player struct {
	conn  *memstore.Conn
	svc   *Service
	match *Match
}

func newPlayer(t *testing.T, st *memstore.Store, id string, opts ...Option) *player {
	t.Helper()
	conn := st.Connect(id)
	t.Cleanup(func() { conn.Close() })
	opts = append([]Option{WithLogger(discardLogger()), WithOptions(testOptions), WithSeed(1)}, opts...)
	svc, err := NewService(conn, id, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &player{conn: conn, svc: svc}
}

// newTable creates a lobby hosted by the first id with the others joined.
func newTable(t *testing.T, st *memstore.Store, ids ...string) []*player {
	t.Helper()
	ctx := context.Background()
	players := make([]*player, len(ids))
	for i, id := range ids {
		players[i] = newPlayer(t, st, id)
	}

	m, err := players[0].svc.CreateLobby(ctx, domain.Profile{Name: ids[0]})
	if err != nil {
		t.Fatalf("create lobby: %v", err)
	}
	players[0].match = m
	sess, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	for _, p := range players[1:] {
		m, err := p.svc.Join(ctx, sess.Code, domain.Profile{Name: p.conn.ID()})
		if err != nil {
			t.Fatalf("join %s: %v", p.conn.ID(), err)
		}
		p.match = m
	}
	return players
}

func waitFor(t *testing.T, m *Match, what string, cond func(*domain.Session) bool) *domain.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snaps, err := m.Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	for s := range snaps {
		if cond(s) {
			return s
		}
	}
	t.Fatalf("timed out waiting for %s", what)
	return nil
}

func runHost(t *testing.T, m *Match) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.RunHost(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// force writes raw session fields, bypassing validation.
func force(t *testing.T, p *player, patch doc.Patch) {
	t.Helper()
	if err := p.conn.Update(context.Background(), patch.Prefix(SessionPath(p.match.SessionID()))); err != nil {
		t.Fatalf("force state: %v", err)
	}
}

func TestNewServiceRequiresIdentity(t *testing.T) {
	if _, err := NewService(memstore.New().Connect("x"), ""); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestCreateAndJoinLobby(t *testing.T) {
	st := memstore.New()
	players := newTable(t, st, "host", "guest")
	ctx := context.Background()

	sess, err := players[1].match.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(sess.Code) != DefaultCodeLength {
		t.Fatalf("expected %d-char code, got %q", DefaultCodeLength, sess.Code)
	}
	if sess.HostID != "host" || len(sess.Players) != 2 || sess.Phase != domain.PhaseWaiting {
		t.Fatalf("unexpected lobby: host=%q players=%d phase=%s", sess.HostID, len(sess.Players), sess.Phase)
	}
	if sess.Players["guest"].JoinedAt == 0 {
		t.Fatalf("expected server timestamp on join")
	}

	id, err := players[0].svc.Directory().Resolve(ctx, " "+strings.ToLower(sess.Code)+" ")
	if err != nil || id != sess.ID {
		t.Fatalf("expected code to resolve to %s, got %q (%v)", sess.ID, id, err)
	}
}

func TestJoinRejections(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	late := newPlayer(t, st, "late")
	if _, err := late.svc.Join(ctx, "ZZZZZZ", domain.Profile{Name: "late"}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	players := newTable(t, st, "host", "guest")
	if err := players[0].match.StartGame(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	sess, _ := players[0].match.Snapshot(ctx)
	if _, err := late.svc.Join(ctx, sess.Code, domain.Profile{Name: "late"}); !errors.Is(err, domain.ErrGameAlreadyStarted) {
		t.Fatalf("expected ErrGameAlreadyStarted, got %v", err)
	}
}

func TestProposalErrorsAreReturned(t *testing.T) {
	st := memstore.New()
	players := newTable(t, st, "host", "guest")
	if err := players[1].match.StartGame(context.Background()); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestDisconnectMarksPlayerReconnecting(t *testing.T) {
	st := memstore.New()
	players := newTable(t, st, "host", "guest")
	players[1].conn.Close()

	sess := waitFor(t, players[0].match, "guest reconnecting", func(s *domain.Session) bool {
		return s.Players["guest"].Status == domain.StatusReconnecting
	})
	if sess.Players["host"].Status != domain.StatusOnline {
		t.Fatalf("expected host untouched")
	}

	m, err := newPlayer(t, st, "guest").svc.Rejoin(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	sess, _ = m.Snapshot(context.Background())
	if !sess.Players["guest"].IsOnline() {
		t.Fatalf("expected guest online after rejoin")
	}
}

func TestLeave(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	players := newTable(t, st, "host", "guest")
	sess, _ := players[0].match.Snapshot(ctx)

	if err := players[0].match.Leave(ctx); err != nil {
		t.Fatalf("host leave: %v", err)
	}
	// Leaving cancels the hook, so closing the connection writes nothing.
	players[0].conn.Close()

	after, err := players[1].match.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if after.HostID != "guest" || after.HasPlayer("host") {
		t.Fatalf("expected guest to take over, got host=%q", after.HostID)
	}

	if err := players[1].match.Leave(ctx); err != nil {
		t.Fatalf("guest leave: %v", err)
	}
	if _, err := players[1].match.Snapshot(ctx); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session deleted, got %v", err)
	}
	if _, err := players[1].svc.Directory().Resolve(ctx, sess.Code); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected join code deleted, got %v", err)
	}
}

func TestRunHostDrivesElections(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	players := newTable(t, st, "p1", "p2", "p3")
	host := players[0].match
	runHost(t, host)

	if err := host.StartGame(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, host, "role reveal", func(s *domain.Session) bool { return s.Phase == domain.PhaseRoleReveal })
	for _, p := range players {
		if err := p.match.ConfirmRole(ctx); err != nil {
			t.Fatalf("confirm: %v", err)
		}
	}

	waitFor(t, host, "doctor election", func(s *domain.Session) bool { return s.Phase == domain.PhaseElectionDoctor })
	for _, p := range players {
		if err := p.match.VoteElection(ctx, "p2"); err != nil {
			t.Fatalf("vote doctor: %v", err)
		}
	}

	waitFor(t, host, "guard election", func(s *domain.Session) bool { return s.Phase == domain.PhaseElectionGuard })
	for _, p := range players {
		if err := p.match.VoteElection(ctx, "p3"); err != nil {
			t.Fatalf("vote guard: %v", err)
		}
	}

	sess := waitFor(t, host, "first round", func(s *domain.Session) bool { return s.Phase == domain.PhaseRound })
	if sess.PublicRoles.Doctor != "p2" || sess.PublicRoles.Guard != "p3" {
		t.Fatalf("unexpected roles: %+v", sess.PublicRoles)
	}
	if sess.Round != 1 || sess.DiceState.CurrentRollerID != "p1" {
		t.Fatalf("expected round 1 rolled by host, got %d %q", sess.Round, sess.DiceState.CurrentRollerID)
	}
}

func TestRunHostSkipsBlackoutCure(t *testing.T) {
	st := memstore.New()
	players := newTable(t, st, "p1", "p2", "p3")
	force(t, players[0], doc.Patch{
		"phase":                   domain.PhaseRound,
		"round":                   1,
		"roundSubPhase":           domain.SubPhaseCure,
		"publicRoles/doctor":      "p2",
		"publicRoles/guard":       "p3",
		"diceState/skipCurePhase": true,
		"players/p1/role":         domain.RoleCarrier,
		"players/p2/role":         domain.RoleHealthy,
		"players/p3/role":         domain.RoleHealthy,
	})
	runHost(t, players[0].match)

	sess := waitFor(t, players[1].match, "voting", func(s *domain.Session) bool {
		return s.RoundSubPhase == domain.SubPhaseVoting
	})
	if sess.RoundState.CureResult != domain.CureSkipped {
		t.Fatalf("expected skipped cure, got %q", sess.RoundState.CureResult)
	}
}

func TestRunHostVoteTimeout(t *testing.T) {
	st := memstore.New()
	players := newTable(t, st, "p1", "p2", "p3")
	force(t, players[0], doc.Patch{
		"phase":              domain.PhaseRound,
		"round":              1,
		"roundSubPhase":      domain.SubPhaseVoting,
		"publicRoles/doctor": "p2",
		"publicRoles/guard":  "p3",
		"players/p1/role":    domain.RoleHealthy,
		"players/p2/role":    domain.RoleHealthy,
		"players/p3/role":    domain.RoleCarrier,
	})

	host, err := NewService(players[0].conn, "p1", WithLogger(discardLogger()), WithOptions(Options{
		HeartbeatInterval: time.Hour,
		VoteTimeout:       30 * time.Millisecond,
	}))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	m, err := host.Rejoin(context.Background(), players[0].match.SessionID())
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if err := m.VoteRound(context.Background(), "p3"); err != nil {
		t.Fatalf("vote: %v", err)
	}
	runHost(t, m)

	sess := waitFor(t, m, "resolved round", func(s *domain.Session) bool {
		return s.RoundState.Resolved || s.Phase == domain.PhaseFinished
	})
	if sess.RoundState.ExiledPlayerID != "p3" || sess.GameResult != domain.ResultHealthyWin {
		t.Fatalf("expected lone vote to exile the carrier, got %q %q", sess.RoundState.ExiledPlayerID, sess.GameResult)
	}
}

func TestHostClaimedWhenHostDrops(t *testing.T) {
	st := memstore.New()
	players := newTable(t, st, "p1", "p2", "p3")
	runHost(t, players[1].match)
	runHost(t, players[2].match)

	players[0].conn.Close()

	sess := waitFor(t, players[2].match, "new host", func(s *domain.Session) bool { return s.HostID != "p1" })
	if sess.HostID != "p2" || !sess.Players["p2"].IsHost || sess.Players["p1"].IsHost {
		t.Fatalf("expected p2 next in join order to host, got %q", sess.HostID)
	}
}
