package domain

import (
	"math/rand"
	"sort"
)

// Roll bounds for two six-sided dice.
const (
	MinRoll = 2
	MaxRoll = 12
)

// EventType is the dice event triggered by a roll.
type EventType string

const (
	EventAntidote   EventType = "antidote"
	EventProphecy   EventType = "prophecy"
	EventQuarantine EventType = "quarantine"
	EventBlackout   EventType = "blackout"
	EventEpidemic   EventType = "epidemic"
)

// String returns the string representation of the event
func (e EventType) String() string {
	return string(e)
}

// ProphecyType is the question the roller asks on a Prophecy.
type ProphecyType string

const (
	ProphecyCount       ProphecyType = "count"
	ProphecyInvestigate ProphecyType = "investigate"
)

// ProphecyResult holds the answer to a Prophecy. Exactly one field is set.
type ProphecyResult struct {
	Count    *int  `json:"count,omitempty"`
	Infected *bool `json:"infected,omitempty"`
}

// QuarantineSize is how many players a Quarantine removes from voting.
const QuarantineSize = 2

// EventForRoll maps a roll to its event. Values outside [2,12] map to
// Quarantine.
func EventForRoll(roll int) EventType {
	switch {
	case roll == 2 || roll == 3:
		return EventAntidote
	case roll == 4 || roll == 5:
		return EventProphecy
	case roll >= 6 && roll <= 8:
		return EventQuarantine
	case roll == 9 || roll == 10:
		return EventBlackout
	case roll == 11 || roll == 12:
		return EventEpidemic
	default:
		return EventQuarantine
	}
}

// RollDice rolls two six-sided dice.
func RollDice(rng *rand.Rand) int {
	return rng.Intn(6) + 1 + rng.Intn(6) + 1
}

// resolveAutomaticEvent runs the events that need no choice from the roller.
func (s *Session) resolveAutomaticEvent(p Patch, event EventType, rng *rand.Rand) {
	switch event {
	case EventBlackout:
		p[diceField("skipCurePhase")] = true
		p[diceField("eventResolved")] = true
	case EventEpidemic:
		if victim := s.epidemicVictim(rng); victim != "" {
			p[diceField("epidemicVictimId")] = victim
			p[playerField(victim, "role")] = RoleInfected
		}
		p[diceField("eventResolved")] = true
	case EventQuarantine:
		// Nothing to choose from with fewer than two other living players.
		if len(s.quarantineCandidates()) < QuarantineSize {
			p[diceField("eventResolved")] = true
		}
	}
}

// epidemicVictim picks a uniformly random living healthy player, or "" if
// there is none.
func (s *Session) epidemicVictim(rng *rand.Rand) string {
	var healthy []string
	for _, pl := range s.PlayersByID() {
		if pl.IsAlive && pl.Role == RoleHealthy {
			healthy = append(healthy, pl.ID)
		}
	}
	if len(healthy) == 0 {
		return ""
	}
	return healthy[rng.Intn(len(healthy))]
}

func (s *Session) quarantineCandidates() []string {
	var ids []string
	for _, id := range s.LivingIDs() {
		if id != s.DiceState.CurrentRollerID {
			ids = append(ids, id)
		}
	}
	return ids
}

// requireEvent checks that by is the roller and the pending event is event.
func (s *Session) requireEvent(by string, event EventType) error {
	if err := s.requireStep(SubPhaseDiceEvent); err != nil {
		return err
	}
	if by == "" || by != s.DiceState.CurrentRollerID {
		return ErrNotAuthorized
	}
	if s.DiceState.EventType != event || s.DiceState.EventResolved {
		return ErrInvalidPhase
	}
	return nil
}

// cure applies a cure to target: an infected player becomes healthy again.
func (s *Session) cure(p Patch, target string) CureResult {
	if s.Players[target].Role != RoleInfected {
		return CureNoEffect
	}
	p[playerField(target, "role")] = RoleHealthy
	return CureSuccess
}

// ResolveAntidote lets the roller cure any living player at once.
func (s *Session) ResolveAntidote(by, target string) (Patch, error) {
	if err := s.requireEvent(by, EventAntidote); err != nil {
		return nil, err
	}
	if !s.IsAlive(target) {
		return nil, ErrInvalidCandidate
	}
	p := Patch{}
	result := s.cure(p, target)
	p[diceField("antidoteTargetId")] = target
	p[diceField("antidoteResult")] = result
	p[diceField("eventResolved")] = true
	return p, nil
}

// ResolveProphecyCount reveals to the roller how many living players are
// infected or the Carrier.
func (s *Session) ResolveProphecyCount(by string) (Patch, error) {
	if err := s.requireEvent(by, EventProphecy); err != nil {
		return nil, err
	}
	count := s.CountLiving(func(pl *Player) bool { return pl.Role.IsContagious() })
	return Patch{
		diceField("prophecyType"):   ProphecyCount,
		diceField("prophecyResult"): ProphecyResult{Count: &count},
		diceField("eventResolved"):  true,
	}, nil
}

// ResolveProphecyInvestigate reveals to the roller whether one living player
// is infected or the Carrier.
func (s *Session) ResolveProphecyInvestigate(by, target string) (Patch, error) {
	if err := s.requireEvent(by, EventProphecy); err != nil {
		return nil, err
	}
	if !s.IsAlive(target) {
		return nil, ErrInvalidCandidate
	}
	infected := s.Players[target].Role.IsContagious()
	return Patch{
		diceField("prophecyType"):   ProphecyInvestigate,
		diceField("prophecyTarget"): target,
		diceField("prophecyResult"): ProphecyResult{Infected: &infected},
		diceField("eventResolved"):  true,
	}, nil
}

// ResolveQuarantine removes two other living players from this round's vote.
func (s *Session) ResolveQuarantine(by string, targets []string) (Patch, error) {
	if err := s.requireEvent(by, EventQuarantine); err != nil {
		return nil, err
	}
	if len(targets) != QuarantineSize || targets[0] == targets[1] {
		return nil, ErrInvalidCandidate
	}
	for _, id := range targets {
		if id == by || !s.IsAlive(id) {
			return nil, ErrInvalidCandidate
		}
	}
	ids := append([]string(nil), targets...)
	sort.Strings(ids)
	return Patch{
		diceField("quarantinedPlayerIds"): ids,
		diceField("eventResolved"):        true,
	}, nil
}
