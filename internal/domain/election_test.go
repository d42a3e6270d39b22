package domain

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
)

func electionSession(t *testing.T, phase Phase, ids ...string) *Session {
	t.Helper()
	s := newLobby(t, ids...)
	kind := ElectionDoctor
	if phase == PhaseElectionGuard {
		kind = ElectionGuard
	}
	return mustApply(t, s, Patch{pathPhase: phase, pathElection: kind}, nil)
}

func castElectionVotes(t *testing.T, s *Session, votes map[string]string) *Session {
	t.Helper()
	for voter, candidate := range votes {
		p, err := s.CastElectionVote(voter, candidate)
		if err != nil {
			t.Fatalf("vote %s -> %s: %v", voter, candidate, err)
		}
		s = mustApply(t, s, p, nil)
	}
	return s
}

func TestTallyVotes(t *testing.T) {
	tcs := []struct {
		name    string
		votes   map[string]string
		winner  string
		leaders []string
	}{
		{name: "empty"},
		{name: "unique", votes: map[string]string{"a": "x", "b": "x", "c": "y"}, winner: "x", leaders: []string{"x"}},
		{name: "tie", votes: map[string]string{"a": "x", "b": "y", "c": "z", "d": "z", "e": "y"}, leaders: []string{"y", "z"}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			tally := TallyVotes(tc.votes, nil)
			winner, _ := tally.Winner()
			if winner != tc.winner {
				t.Fatalf("expected winner %q, got %q", tc.winner, winner)
			}
			if len(tc.leaders) > 0 && !reflect.DeepEqual(tally.Leaders, tc.leaders) {
				t.Fatalf("expected leaders %v, got %v", tc.leaders, tally.Leaders)
			}
		})
	}
}

func TestScenarioAPhaseSequence(t *testing.T) {
	s := newLobby(t, playerIDs(4)...)
	p, err := s.StartGame("p1")
	s = mustApply(t, s, p, err)
	p, err = s.AssignRoles("p1", rand.New(rand.NewSource(42)))
	s = mustApply(t, s, p, err)
	for _, id := range playerIDs(4) {
		p, err := s.ConfirmRole(id)
		s = mustApply(t, s, p, err)
	}
	p, err = s.StartElection("p1")
	s = mustApply(t, s, p, err)

	var phases []Phase
	phases = append(phases, s.Phase)

	s = castElectionVotes(t, s, map[string]string{"p1": "p2", "p2": "p2", "p3": "p2", "p4": "p1"})
	p, err = s.ResolveElection("p1")
	s = mustApply(t, s, p, err)
	phases = append(phases, s.Phase)
	if s.PublicRoles.Doctor != "p2" {
		t.Fatalf("expected p2 doctor, got %q", s.PublicRoles.Doctor)
	}

	s = castElectionVotes(t, s, map[string]string{"p1": "p3", "p2": "p3", "p3": "p4", "p4": "p3"})
	p, err = s.ResolveElection("p1")
	s = mustApply(t, s, p, err)
	phases = append(phases, s.Phase)

	want := []Phase{PhaseElectionDoctor, PhaseElectionGuard, PhaseRound}
	if !reflect.DeepEqual(phases, want) {
		t.Fatalf("expected %v, got %v", want, phases)
	}
	if s.RoundSubPhase != SubPhaseDiceRoll || s.Round != 1 {
		t.Fatalf("expected round 1 dice roll, got round %d %s", s.Round, s.RoundSubPhase)
	}
	if s.DiceState.CurrentRollerID != "p1" {
		t.Fatalf("expected host to roll first, got %q", s.DiceState.CurrentRollerID)
	}
	if s.PublicRoles.Guard != "p3" || s.CurrentElectionKind != ElectionNone {
		t.Fatalf("unexpected guard state: %q %s", s.PublicRoles.Guard, s.CurrentElectionKind)
	}
	if len(s.Votes) != 0 || len(s.TiedCandidates) != 0 {
		t.Fatalf("expected election state cleared")
	}
}

func TestResolveElectionTieStartsRestrictedRevote(t *testing.T) {
	s := electionSession(t, PhaseElectionDoctor, playerIDs(4)...)
	s = castElectionVotes(t, s, map[string]string{"p1": "p2", "p2": "p3", "p3": "p2", "p4": "p3"})

	p, err := s.ResolveElection("p1")
	s = mustApply(t, s, p, err)
	if s.Phase != PhaseElectionDoctor {
		t.Fatalf("expected to stay in doctor election, got %s", s.Phase)
	}
	if !reflect.DeepEqual(s.TiedCandidates, []string{"p2", "p3"}) {
		t.Fatalf("expected tied p2/p3, got %v", s.TiedCandidates)
	}
	if len(s.Votes) != 0 || s.PublicRoles.Doctor != "" {
		t.Fatalf("expected votes cleared and no doctor")
	}

	if _, err := s.CastElectionVote("p1", "p4"); !errors.Is(err, ErrInvalidCandidate) {
		t.Fatalf("expected ErrInvalidCandidate outside tied set, got %v", err)
	}
	s = castElectionVotes(t, s, map[string]string{"p1": "p3", "p2": "p3", "p3": "p2", "p4": "p3"})
	p, err = s.ResolveElection("p1")
	s = mustApply(t, s, p, err)
	if s.PublicRoles.Doctor != "p3" || s.Phase != PhaseElectionGuard {
		t.Fatalf("expected p3 doctor and guard election, got %q %s", s.PublicRoles.Doctor, s.Phase)
	}
	if len(s.TiedCandidates) != 0 {
		t.Fatalf("expected tied candidates cleared, got %v", s.TiedCandidates)
	}
}

func TestResolveElectionIsIdempotent(t *testing.T) {
	s := electionSession(t, PhaseElectionDoctor, "p1", "p2", "p3")
	s = castElectionVotes(t, s, map[string]string{"p1": "p2", "p2": "p2", "p3": "p1"})

	p, err := s.ResolveElection("p1")
	once := mustApply(t, s, p, err)
	twice := mustApply(t, once, p, nil)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("expected replaying the resolution to change nothing")
	}
	if _, err := once.ResolveElection("p1"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady on second resolve, got %v", err)
	}
}

func TestResolveElectionGuards(t *testing.T) {
	s := electionSession(t, PhaseElectionDoctor, "p1", "p2", "p3")
	s = castElectionVotes(t, s, map[string]string{"p1": "p2", "p2": "p2"})
	if _, err := s.ResolveElection("p1"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady with a missing vote, got %v", err)
	}
	s = castElectionVotes(t, s, map[string]string{"p3": "p2"})
	if _, err := s.ResolveElection("p2"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestCastElectionVoteRules(t *testing.T) {
	s := electionSession(t, PhaseElectionGuard, "p1", "p2", "p3")
	s = mustApply(t, s, Patch{pathDoctor: "p2"}, nil)

	if _, err := s.CastElectionVote("p1", "p2"); !errors.Is(err, ErrInvalidCandidate) {
		t.Fatalf("expected doctor excluded from guard pool, got %v", err)
	}
	if _, err := s.CastElectionVote("p1", "ghost"); !errors.Is(err, ErrInvalidCandidate) {
		t.Fatalf("expected unknown candidate rejected, got %v", err)
	}
	if _, err := s.CastElectionVote("ghost", "p3"); !errors.Is(err, ErrNotInSession) {
		t.Fatalf("expected ErrNotInSession, got %v", err)
	}

	p, err := s.CastElectionVote("p1", "p1")
	s = mustApply(t, s, p, err)
	p, err = s.CastElectionVote("p1", "p1")
	if err != nil || len(p) != 0 {
		t.Fatalf("expected identical vote to be a no-op, got %v %v", p, err)
	}
	if _, err := s.CastElectionVote("p1", "p3"); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}

	lobby := newLobby(t, "p1", "p2")
	if _, err := lobby.CastElectionVote("p1", "p2"); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase outside elections, got %v", err)
	}
}

func TestForceResolveElection(t *testing.T) {
	s := electionSession(t, PhaseElectionDoctor, "p1", "p2", "p3", "p4")
	rng := rand.New(rand.NewSource(3))
	if _, err := s.ForceResolveElection("p1", rng); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady without votes, got %v", err)
	}

	s = castElectionVotes(t, s, map[string]string{"p1": "p2", "p2": "p3"})
	p, err := s.ForceResolveElection("p1", rng)
	s = mustApply(t, s, p, err)
	if d := s.PublicRoles.Doctor; d != "p2" && d != "p3" {
		t.Fatalf("expected a tied leader as doctor, got %q", d)
	}
	if s.Phase != PhaseElectionGuard {
		t.Fatalf("expected guard election, got %s", s.Phase)
	}
}
