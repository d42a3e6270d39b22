package domain

import (
	"math/rand"

	"outbreak/internal/doc"
)

// beginRound resets every round-scoped field and hands the dice to roller.
func beginRound(p Patch, number int, roller string) {
	p[pathRound] = number
	p[pathSubPhase] = SubPhaseDiceRoll
	p[pathRoundState] = nil
	p[pathDiceState] = map[string]any{"currentRollerId": roller}
}

// SubmitRoll records the roller's dice value and triggers its event. Events
// that need no choice are resolved in the same write.
func (s *Session) SubmitRoll(by string, value int, rng *rand.Rand) (Patch, error) {
	if err := s.requireStep(SubPhaseDiceRoll); err != nil {
		return nil, err
	}
	if by == "" || by != s.DiceState.CurrentRollerID {
		return nil, ErrNotAuthorized
	}
	if value < MinRoll || value > MaxRoll {
		return nil, ErrInvalidRoll
	}

	event := EventForRoll(value)
	p := Patch{
		diceField("rollValue"): value,
		diceField("eventType"): event,
	}
	s.resolveAutomaticEvent(p, event, rng)
	if err := s.advance(p, SubPhaseDiceRoll); err != nil {
		return nil, err
	}
	return p, nil
}

// AdvanceFromEvent moves on to protection once the event is resolved.
func (s *Session) AdvanceFromEvent(by string) (Patch, error) {
	if err := s.requireStep(SubPhaseDiceEvent); err != nil {
		return nil, err
	}
	if by != s.DiceState.CurrentRollerID && !s.IsHost(by) {
		return nil, ErrNotAuthorized
	}
	if !s.DiceState.EventResolved {
		return nil, ErrNotReady
	}
	p := Patch{}
	if err := s.advance(p, SubPhaseDiceEvent); err != nil {
		return nil, err
	}
	return p, nil
}

// Protect lets the Guard shield another living player from exile and
// infection this round.
func (s *Session) Protect(by, target string) (Patch, error) {
	if err := s.requireStep(SubPhaseProtection); err != nil {
		return nil, err
	}
	if by == "" || by != s.PublicRoles.Guard || !s.IsAlive(by) {
		return nil, ErrNotAuthorized
	}
	if target == by || !s.IsAlive(target) {
		return nil, ErrInvalidCandidate
	}
	p := Patch{roundField("protectedPlayerId"): target}
	if err := s.advance(p, SubPhaseProtection); err != nil {
		return nil, err
	}
	return p, nil
}

// SkipProtection lets the host move past protection when there is no living
// Guard to act.
func (s *Session) SkipProtection(by string) (Patch, error) {
	if err := s.requireHost(by); err != nil {
		return nil, err
	}
	if err := s.requireStep(SubPhaseProtection); err != nil {
		return nil, ErrNotReady
	}
	if s.IsAlive(s.PublicRoles.Guard) {
		return nil, ErrNotReady
	}
	p := Patch{}
	if err := s.advance(p, SubPhaseProtection); err != nil {
		return nil, err
	}
	return p, nil
}

// Cure lets the Doctor treat another living player.
func (s *Session) Cure(by, target string) (Patch, error) {
	if err := s.requireStep(SubPhaseCure); err != nil {
		return nil, err
	}
	if s.DiceState.SkipCurePhase {
		return nil, ErrInvalidPhase
	}
	if by == "" || by != s.PublicRoles.Doctor || !s.IsAlive(by) {
		return nil, ErrNotAuthorized
	}
	if target == by || !s.IsAlive(target) {
		return nil, ErrInvalidCandidate
	}
	p := Patch{}
	result := s.cure(p, target)
	p[roundField("cureTargetId")] = target
	p[roundField("cureResult")] = result
	if err := s.advance(p, SubPhaseCure); err != nil {
		return nil, err
	}
	return p, nil
}

// SkipCure passes on the cure. The Doctor may always skip; the host may skip
// for a Doctor who is no longer alive.
func (s *Session) SkipCure(by string) (Patch, error) {
	if err := s.requireStep(SubPhaseCure); err != nil {
		return nil, err
	}
	if s.DiceState.SkipCurePhase {
		return nil, ErrInvalidPhase
	}
	doctor := s.PublicRoles.Doctor
	switch {
	case by != "" && by == doctor && s.IsAlive(by):
	case s.IsHost(by) && !s.IsAlive(doctor):
	default:
		return nil, ErrNotAuthorized
	}
	return s.skipCure()
}

// SkipBlackoutCure moves past a cure step blacked out by the dice.
func (s *Session) SkipBlackoutCure(by string) (Patch, error) {
	if err := s.requireHost(by); err != nil {
		return nil, err
	}
	if s.requireStep(SubPhaseCure) != nil || !s.DiceState.SkipCurePhase {
		return nil, ErrNotReady
	}
	return s.skipCure()
}

func (s *Session) skipCure() (Patch, error) {
	p := Patch{roundField("cureResult"): CureSkipped}
	if err := s.advance(p, SubPhaseCure); err != nil {
		return nil, err
	}
	return p, nil
}

// CanVote reports whether id takes part in this round's vote.
func (s *Session) CanVote(id string) bool {
	return s.IsAlive(id) && !s.IsQuarantined(id)
}

// CanBeVoted reports whether target may receive a round vote.
func (s *Session) CanBeVoted(target string) bool {
	return s.IsAlive(target) && target != s.RoundState.ProtectedPlayerID
}

// CastRoundVote records a vote to exile target. The Carrier's vote also
// marks their hidden infection target and does not count toward exile.
func (s *Session) CastRoundVote(voter, target string) (Patch, error) {
	if err := s.requireStep(SubPhaseVoting); err != nil {
		return nil, err
	}
	if !s.HasPlayer(voter) {
		return nil, ErrNotInSession
	}
	if !s.CanVote(voter) {
		return nil, ErrNotAuthorized
	}
	if target == voter || !s.CanBeVoted(target) {
		return nil, ErrInvalidCandidate
	}
	if prev, ok := s.RoundState.Votes[voter]; ok {
		if prev == target {
			return Patch{}, nil
		}
		return nil, ErrAlreadyVoted
	}

	p := Patch{doc.Join(pathRoundState, "votes", voter): target}
	if s.Players[voter].Role.IsCarrier() {
		p[roundField("carrierInfectionTarget")] = target
	}
	return p, nil
}

// roundVotes returns the votes of players still eligible to vote.
func (s *Session) roundVotes() map[string]string {
	votes := make(map[string]string, len(s.RoundState.Votes))
	for voter, target := range s.RoundState.Votes {
		if s.CanVote(voter) {
			votes[voter] = target
		}
	}
	return votes
}

// VotingThreshold is the number of votes needed to close the round vote:
// every living player not in quarantine who has someone to vote for.
func (s *Session) VotingThreshold() int {
	return s.CountLiving(func(pl *Player) bool {
		return !s.IsQuarantined(pl.ID) && s.hasVoteTarget(pl.ID)
	})
}

func (s *Session) hasVoteTarget(voter string) bool {
	for _, id := range s.LivingIDs() {
		if id != voter && s.CanBeVoted(id) {
			return true
		}
	}
	return false
}

// VotingComplete reports whether every eligible player has voted.
func (s *Session) VotingComplete() bool {
	return s.requireStep(SubPhaseVoting) == nil &&
		len(s.roundVotes()) >= s.VotingThreshold()
}

// BeginResolution closes a complete vote. The outcome is computed later by
// ResolveRound.
func (s *Session) BeginResolution(by string) (Patch, error) {
	if err := s.requireHost(by); err != nil {
		return nil, err
	}
	if !s.VotingComplete() {
		return nil, ErrNotReady
	}
	p := Patch{}
	if err := s.advance(p, SubPhaseVoting); err != nil {
		return nil, err
	}
	return p, nil
}

// ForceResolution closes the vote with whatever has been cast.
func (s *Session) ForceResolution(by string) (Patch, error) {
	if err := s.requireHost(by); err != nil {
		return nil, err
	}
	if s.requireStep(SubPhaseVoting) != nil {
		return nil, ErrNotReady
	}
	p := Patch{}
	if err := s.advance(p, SubPhaseVoting); err != nil {
		return nil, err
	}
	return p, nil
}

// ResolveRound exiles the unique most voted player, applies the Carrier's
// infection and checks for a winner. It runs once per round; later calls
// return ErrNotReady.
func (s *Session) ResolveRound(by string) (Patch, error) {
	if err := s.requireHost(by); err != nil {
		return nil, err
	}
	if s.requireStep(SubPhaseResolution) != nil || s.RoundState.Resolved {
		return nil, ErrNotReady
	}

	p := Patch{roundField("resolved"): true}

	tally := TallyVotes(s.roundVotes(), func(voter string) bool {
		return !s.Players[voter].Role.IsCarrier()
	})
	exiled, ok := tally.Winner()
	if ok {
		p[roundField("exiledPlayerId")] = exiled
		p[playerField(exiled, "isAlive")] = false
	}

	if target := s.RoundState.CarrierInfectionTarget; s.infectable(target, exiled) {
		p[playerField(target, "role")] = RoleInfected
	}

	next, err := s.Apply(p)
	if err != nil {
		return nil, err
	}
	if result := EvaluateWin(next.Players); result != ResultNone {
		p[pathResult] = result
		p[pathSubPhase] = nil
		if err := s.transition(p, PhaseFinished); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// infectable reports whether the Carrier's chosen target turns infected.
func (s *Session) infectable(target, exiled string) bool {
	if target == "" || target == exiled || target == s.RoundState.ProtectedPlayerID {
		return false
	}
	pl, ok := s.Players[target]
	return ok && pl.IsAlive && pl.Role == RoleHealthy
}

// StartNextRound opens the next round once the current one is resolved and
// nobody has won.
func (s *Session) StartNextRound(by string) (Patch, error) {
	if err := s.requireHost(by); err != nil {
		return nil, err
	}
	if s.requireStep(SubPhaseResolution) != nil || !s.RoundState.Resolved || s.GameResult != ResultNone {
		return nil, ErrNotReady
	}
	p := Patch{}
	beginRound(p, s.Round+1, s.NextRoller())
	return p, nil
}

// NextRoller returns the living player after the current roller in identity
// order, wrapping around. If the roller is no longer alive the dice go to
// the host.
func (s *Session) NextRoller() string {
	prev := s.DiceState.CurrentRollerID
	living := s.LivingIDs()
	for i, id := range living {
		if id == prev {
			return living[(i+1)%len(living)]
		}
	}
	if s.IsAlive(s.HostID) || len(living) == 0 {
		return s.HostID
	}
	return living[0]
}
