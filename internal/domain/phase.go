package domain

// Phase represents the current phase of a match
type Phase string

const (
	PhaseWaiting        Phase = "waiting"        // Lobby, players joining
	PhaseStarting       Phase = "starting"       // Host started, roles being assigned
	PhaseRoleReveal     Phase = "roleReveal"     // Players reading their secret role
	PhaseElectionDoctor Phase = "electionDoctor" // Everyone votes a Doctor
	PhaseElectionGuard  Phase = "electionGuard"  // Everyone votes a Guard
	PhaseRound          Phase = "round"          // Repeating rounds, see SubPhase
	PhaseFinished       Phase = "finished"       // Game over, GameResult set
)

// String returns the string representation of the phase
func (p Phase) String() string {
	return string(p)
}

// IsElection reports whether the phase is one of the two elections.
func (p Phase) IsElection() bool {
	return p == PhaseElectionDoctor || p == PhaseElectionGuard
}

// CanTransitionTo checks if a transition from current phase to target phase is valid
func (p Phase) CanTransitionTo(target Phase) bool {
	validTransitions := map[Phase][]Phase{
		PhaseWaiting:        {PhaseStarting},
		PhaseStarting:       {PhaseRoleReveal},
		PhaseRoleReveal:     {PhaseElectionDoctor},
		PhaseElectionDoctor: {PhaseElectionGuard},
		PhaseElectionGuard:  {PhaseRound},
		PhaseRound:          {PhaseFinished},
	}

	allowed, ok := validTransitions[p]
	if !ok {
		return false
	}

	for _, phase := range allowed {
		if phase == target {
			return true
		}
	}
	return false
}

// SubPhase is a step of a round. Only meaningful while Phase is PhaseRound.
type SubPhase string

const (
	SubPhaseDiceRoll   SubPhase = "diceRoll"
	SubPhaseDiceEvent  SubPhase = "diceEvent"
	SubPhaseProtection SubPhase = "protection"
	SubPhaseCure       SubPhase = "cure"
	SubPhaseVoting     SubPhase = "voting"
	SubPhaseResolution SubPhase = "resolution"
)

// String returns the string representation of the sub-phase
func (s SubPhase) String() string {
	return string(s)
}

// Next returns the sub-phase that follows s within a round. Resolution wraps
// to the next round's dice roll.
func (s SubPhase) Next() SubPhase {
	switch s {
	case SubPhaseDiceRoll:
		return SubPhaseDiceEvent
	case SubPhaseDiceEvent:
		return SubPhaseProtection
	case SubPhaseProtection:
		return SubPhaseCure
	case SubPhaseCure:
		return SubPhaseVoting
	case SubPhaseVoting:
		return SubPhaseResolution
	default:
		return SubPhaseDiceRoll
	}
}

// transition records a phase change after checking it against the phase graph.
func (s *Session) transition(p Patch, to Phase) error {
	if !s.Phase.CanTransitionTo(to) {
		return ErrInvalidTransition
	}
	p[pathPhase] = to
	return nil
}

// advance records a sub-phase step after checking it follows the current one.
func (s *Session) advance(p Patch, from SubPhase) error {
	if s.Phase != PhaseRound || s.RoundSubPhase != from {
		return ErrInvalidPhase
	}
	p[pathSubPhase] = from.Next()
	return nil
}
