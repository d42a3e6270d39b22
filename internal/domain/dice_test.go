package domain

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
)

func TestEventForRoll(t *testing.T) {
	tcs := []struct {
		roll int
		want EventType
	}{
		{2, EventAntidote},
		{3, EventAntidote},
		{4, EventProphecy},
		{5, EventProphecy},
		{6, EventQuarantine},
		{7, EventQuarantine},
		{8, EventQuarantine},
		{9, EventBlackout},
		{10, EventBlackout},
		{11, EventEpidemic},
		{12, EventEpidemic},
		{0, EventQuarantine},
		{1, EventQuarantine},
		{13, EventQuarantine},
		{-4, EventQuarantine},
	}
	for _, tc := range tcs {
		if got := EventForRoll(tc.roll); got != tc.want {
			t.Fatalf("EventForRoll(%d) = %s, want %s", tc.roll, got, tc.want)
		}
	}
}

func TestRollDiceStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	seen := map[int]bool{}
	for i := 0; i < 2000; i++ {
		r := RollDice(rng)
		if r < MinRoll || r > MaxRoll {
			t.Fatalf("roll %d out of range", r)
		}
		seen[r] = true
	}
	if len(seen) != MaxRoll-MinRoll+1 {
		t.Fatalf("expected every total to appear, got %v", seen)
	}
}

func TestSubmitRollGuards(t *testing.T) {
	s := newRound(t, "p4", "p2", "p3", playerIDs(4)...)
	rng := rand.New(rand.NewSource(1))

	if _, err := s.SubmitRoll("p2", 7, rng); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for non-roller, got %v", err)
	}
	for _, v := range []int{1, 13} {
		if _, err := s.SubmitRoll("p1", v, rng); !errors.Is(err, ErrInvalidRoll) {
			t.Fatalf("roll %d: expected ErrInvalidRoll, got %v", v, err)
		}
	}
	p, err := s.SubmitRoll("p1", 7, rng)
	s = mustApply(t, s, p, err)
	if s.RoundSubPhase != SubPhaseDiceEvent || s.DiceState.EventType != EventQuarantine || s.DiceState.RollValue != 7 {
		t.Fatalf("unexpected dice state: %+v", s.DiceState)
	}
	if _, err := s.SubmitRoll("p1", 7, rng); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase on second roll, got %v", err)
	}
	if _, err := s.AdvanceFromEvent("p1"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady before event resolves, got %v", err)
	}
}

func TestScenarioBQuarantine(t *testing.T) {
	s := newRound(t, "p5", "p2", "p3", playerIDs(5)...)
	p, err := s.SubmitRoll("p1", 7, rand.New(rand.NewSource(1)))
	s = mustApply(t, s, p, err)

	bad := [][]string{
		{"p2"},
		{"p2", "p2"},
		{"p1", "p2"},
		{"p2", "ghost"},
	}
	for _, targets := range bad {
		if _, err := s.ResolveQuarantine("p1", targets); !errors.Is(err, ErrInvalidCandidate) {
			t.Fatalf("targets %v: expected ErrInvalidCandidate, got %v", targets, err)
		}
	}
	if _, err := s.ResolveQuarantine("p2", []string{"p3", "p4"}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for non-roller, got %v", err)
	}

	p, err = s.ResolveQuarantine("p1", []string{"p4", "p2"})
	s = mustApply(t, s, p, err)
	if !reflect.DeepEqual(s.DiceState.QuarantinedPlayerIDs, []string{"p2", "p4"}) || !s.DiceState.EventResolved {
		t.Fatalf("unexpected quarantine state: %+v", s.DiceState)
	}

	s = at(t, s, SubPhaseVoting)
	if got, want := s.VotingThreshold(), len(s.LivingIDs())-2; got != want {
		t.Fatalf("expected threshold %d, got %d", want, got)
	}
	if _, err := s.CastRoundVote("p2", "p3"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected quarantined voter rejected, got %v", err)
	}

	s = castRoundVotes(t, s, map[string]string{"p1": "p3", "p3": "p1", "p5": "p3"})
	if !s.VotingComplete() {
		t.Fatalf("expected vote complete with quarantined players excluded")
	}
}

func TestQuarantineResolvesItselfWithTooFewPlayers(t *testing.T) {
	s := newRound(t, "p2", "p1", "p2", "p1", "p2")
	p, err := s.SubmitRoll("p1", 6, rand.New(rand.NewSource(1)))
	s = mustApply(t, s, p, err)
	if !s.DiceState.EventResolved {
		t.Fatalf("expected quarantine with one other player to resolve at once")
	}
}

func TestAntidote(t *testing.T) {
	s := newRound(t, "p4", "p2", "p3", playerIDs(4)...)
	s = mustApply(t, s, Patch{playerField("p3", "role"): RoleInfected}, nil)
	p, err := s.SubmitRoll("p1", 2, rand.New(rand.NewSource(1)))
	s = mustApply(t, s, p, err)

	if _, err := s.ResolveAntidote("p1", "ghost"); !errors.Is(err, ErrInvalidCandidate) {
		t.Fatalf("expected ErrInvalidCandidate, got %v", err)
	}
	p, err = s.ResolveAntidote("p1", "p3")
	s = mustApply(t, s, p, err)
	if s.Players["p3"].Role != RoleHealthy || s.DiceState.AntidoteResult != CureSuccess {
		t.Fatalf("expected p3 cured, got %s %s", s.Players["p3"].Role, s.DiceState.AntidoteResult)
	}
	if _, err := s.ResolveAntidote("p1", "p2"); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("expected event to resolve once, got %v", err)
	}

	p, err = s.AdvanceFromEvent("p1")
	s = mustApply(t, s, p, err)
	if s.RoundSubPhase != SubPhaseProtection {
		t.Fatalf("expected protection, got %s", s.RoundSubPhase)
	}
}

func TestAntidoteOnCarrierHasNoEffect(t *testing.T) {
	s := newRound(t, "p4", "p2", "p3", playerIDs(4)...)
	p, err := s.SubmitRoll("p1", 3, rand.New(rand.NewSource(1)))
	s = mustApply(t, s, p, err)
	p, err = s.ResolveAntidote("p1", "p4")
	s = mustApply(t, s, p, err)
	if s.Players["p4"].Role != RoleCarrier || s.DiceState.AntidoteResult != CureNoEffect {
		t.Fatalf("expected no effect on carrier")
	}
}

func TestProphecy(t *testing.T) {
	s := newRound(t, "p4", "p2", "p3", playerIDs(5)...)
	s = mustApply(t, s, Patch{
		playerField("p3", "role"):    RoleInfected,
		playerField("p5", "role"):    RoleInfected,
		playerField("p5", "isAlive"): false,
	}, nil)
	p, err := s.SubmitRoll("p1", 4, rand.New(rand.NewSource(1)))
	rolled := mustApply(t, s, p, err)

	p, err = rolled.ResolveProphecyCount("p1")
	s = mustApply(t, rolled, p, err)
	if r := s.DiceState.ProphecyResult; r == nil || r.Count == nil || *r.Count != 2 {
		t.Fatalf("expected count of 2 living threats, got %+v", r)
	}
	if s.DiceState.ProphecyType != ProphecyCount {
		t.Fatalf("expected count prophecy, got %s", s.DiceState.ProphecyType)
	}

	tcs := []struct {
		target string
		want   bool
	}{
		{"p2", false},
		{"p3", true},
		{"p4", true},
	}
	for _, tc := range tcs {
		p, err := rolled.ResolveProphecyInvestigate("p1", tc.target)
		s := mustApply(t, rolled, p, err)
		r := s.DiceState.ProphecyResult
		if r == nil || r.Infected == nil || *r.Infected != tc.want {
			t.Fatalf("investigate %s: expected %v, got %+v", tc.target, tc.want, r)
		}
		if s.DiceState.ProphecyTarget != tc.target {
			t.Fatalf("expected prophecy target %s, got %s", tc.target, s.DiceState.ProphecyTarget)
		}
	}
	if _, err := rolled.ResolveProphecyInvestigate("p1", "p5"); !errors.Is(err, ErrInvalidCandidate) {
		t.Fatalf("expected dead target rejected, got %v", err)
	}
}

func TestBlackoutSkipsCure(t *testing.T) {
	s := newRound(t, "p4", "p2", "p3", playerIDs(4)...)
	p, err := s.SubmitRoll("p1", 9, rand.New(rand.NewSource(1)))
	s = mustApply(t, s, p, err)
	if !s.DiceState.SkipCurePhase || !s.DiceState.EventResolved {
		t.Fatalf("expected blackout to resolve and skip cure: %+v", s.DiceState)
	}

	p, err = s.AdvanceFromEvent("p1")
	s = mustApply(t, s, p, err)
	p, err = s.Protect("p3", "p1")
	s = mustApply(t, s, p, err)
	if s.RoundSubPhase != SubPhaseCure {
		t.Fatalf("expected cure step, got %s", s.RoundSubPhase)
	}
	if _, err := s.Cure("p2", "p1"); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("expected cure blocked by blackout, got %v", err)
	}
	if _, err := s.SkipBlackoutCure("p2"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected host-only skip, got %v", err)
	}
	p, err = s.SkipBlackoutCure("p1")
	s = mustApply(t, s, p, err)
	if s.RoundSubPhase != SubPhaseVoting || s.RoundState.CureResult != CureSkipped {
		t.Fatalf("expected voting with skipped cure, got %s %s", s.RoundSubPhase, s.RoundState.CureResult)
	}
}

func TestScenarioEEpidemic(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		s := newRound(t, "p4", "p2", "p3", playerIDs(5)...)
		s = mustApply(t, s, Patch{playerField("p5", "role"): RoleInfected}, nil)

		p, err := s.SubmitRoll("p1", 11, rand.New(rand.NewSource(seed)))
		next := mustApply(t, s, p, err)
		if next.DiceState.EventType != EventEpidemic || !next.DiceState.EventResolved {
			t.Fatalf("unexpected dice state: %+v", next.DiceState)
		}

		changed := 0
		for id, pl := range next.Players {
			before := s.Players[id].Role
			if pl.Role == before {
				continue
			}
			changed++
			if before != RoleHealthy || pl.Role != RoleInfected {
				t.Fatalf("%s went %s -> %s", id, before, pl.Role)
			}
			if next.DiceState.EpidemicVictimID != id {
				t.Fatalf("expected victim %s recorded, got %s", id, next.DiceState.EpidemicVictimID)
			}
		}
		if changed != 1 {
			t.Fatalf("seed %d: expected exactly one infection, got %d", seed, changed)
		}
	}
}

func TestEpidemicWithoutHealthyPlayers(t *testing.T) {
	s := newRound(t, "p3", "p1", "p2", "p1", "p2", "p3")
	s = mustApply(t, s, Patch{
		playerField("p1", "role"): RoleInfected,
		playerField("p2", "role"): RoleInfected,
	}, nil)

	p, err := s.SubmitRoll("p1", 12, rand.New(rand.NewSource(1)))
	next := mustApply(t, s, p, err)
	for id, pl := range next.Players {
		if pl.Role != s.Players[id].Role {
			t.Fatalf("expected %s unchanged", id)
		}
	}
	if next.DiceState.EpidemicVictimID != "" || !next.DiceState.EventResolved {
		t.Fatalf("unexpected dice state: %+v", next.DiceState)
	}
}
