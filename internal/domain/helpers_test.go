package domain

import (
	"fmt"
	"testing"
)

// newLobby builds a waiting session hosted by ids[0] with the rest joined in
// order.
func newLobby(t *testing.T, ids ...string) *Session {
	t.Helper()
	norm, err := Patch{"s": NewLobby("ABCDEF", ids[0], Profile{Name: ids[0]})}.
		Normalized(func(any) any { return float64(1) })
	if err != nil {
		t.Fatalf("normalize lobby: %v", err)
	}
	s, err := DecodeSession("session-1", norm["s"])
	if err != nil {
		t.Fatalf("decode lobby: %v", err)
	}
	for i, id := range ids[1:] {
		p, err := s.Join(id, Profile{Name: id})
		s = mustApply(t, s, p, err)
		s = mustApply(t, s, Patch{playerField(id, "joinedAt"): i + 2}, nil)
	}
	return s
}

// newRound builds a session at round 1, dice roll step, with fixed roles.
// ids[0] hosts and rolls.
func newRound(t *testing.T, carrier, doctor, guard string, ids ...string) *Session {
	t.Helper()
	s := newLobby(t, ids...)
	p := Patch{
		pathPhase:                    PhaseRound,
		pathRound:                    1,
		pathSubPhase:                 SubPhaseDiceRoll,
		pathElection:                 ElectionNone,
		pathDoctor:                   doctor,
		pathGuard:                    guard,
		diceField("currentRollerId"): ids[0],
	}
	for _, id := range ids {
		role := RoleHealthy
		if id == carrier {
			role = RoleCarrier
		}
		p[playerField(id, "role")] = role
		p[playerField(id, "isAlive")] = true
		p[playerField(id, "roleConfirmed")] = true
	}
	return mustApply(t, s, p, nil)
}

// at moves a round session directly to a step.
func at(t *testing.T, s *Session, step SubPhase) *Session {
	t.Helper()
	return mustApply(t, s, Patch{pathSubPhase: step}, nil)
}

func mustApply(t *testing.T, s *Session, p Patch, err error) *Session {
	t.Helper()
	if err != nil {
		t.Fatalf("operation failed: %v", err)
	}
	next, err := s.Apply(p)
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}
	return next
}

func playerIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i+1)
	}
	return ids
}

func castRoundVotes(t *testing.T, s *Session, votes map[string]string) *Session {
	t.Helper()
	for voter, target := range votes {
		p, err := s.CastRoundVote(voter, target)
		if err != nil {
			t.Fatalf("vote %s -> %s: %v", voter, target, err)
		}
		s = mustApply(t, s, p, nil)
	}
	return s
}
