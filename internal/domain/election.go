package domain

import (
	"math/rand"
	"sort"

	"outbreak/internal/doc"
)

// Tally is the outcome of counting votes.
type Tally struct {
	Counts   map[string]int
	MaxVotes int
	// Leaders holds every candidate with MaxVotes, ordered by identity.
	Leaders []string
}

// Winner returns the unique top candidate, if there is one.
func (t Tally) Winner() (string, bool) {
	if len(t.Leaders) != 1 || t.MaxVotes == 0 {
		return "", false
	}
	return t.Leaders[0], true
}

// IsTie reports whether more than one candidate shares the top count.
func (t Tally) IsTie() bool {
	return len(t.Leaders) > 1
}

// TallyVotes counts votes per candidate. Voters for which counts returns
// false are left out of the tally.
func TallyVotes(votes map[string]string, counts func(voter string) bool) Tally {
	t := Tally{Counts: make(map[string]int)}
	for voter, candidate := range votes {
		if counts != nil && !counts(voter) {
			continue
		}
		t.Counts[candidate]++
	}

	for candidate, count := range t.Counts {
		if count > t.MaxVotes {
			t.MaxVotes = count
			t.Leaders = []string{candidate}
		} else if count == t.MaxVotes {
			t.Leaders = append(t.Leaders, candidate)
		}
	}
	sort.Strings(t.Leaders)
	return t
}

// CandidatePool returns who may be voted for in the current election,
// ordered by identity.
func (s *Session) CandidatePool() []string {
	var pool []string
	for _, id := range s.TiedCandidates {
		if s.HasPlayer(id) {
			pool = append(pool, id)
		}
	}
	if len(pool) > 0 {
		sort.Strings(pool)
		return pool
	}

	for _, p := range s.PlayersByID() {
		if s.Phase == PhaseElectionGuard && p.ID == s.PublicRoles.Doctor {
			continue
		}
		pool = append(pool, p.ID)
	}
	return pool
}

func (s *Session) inPool(candidate string) bool {
	for _, id := range s.CandidatePool() {
		if id == candidate {
			return true
		}
	}
	return false
}

// electionVotes returns the votes cast by and for players still in the
// session.
func (s *Session) electionVotes() map[string]string {
	votes := make(map[string]string, len(s.Votes))
	for voter, candidate := range s.Votes {
		if s.HasPlayer(voter) && s.HasPlayer(candidate) {
			votes[voter] = candidate
		}
	}
	return votes
}

// CastElectionVote records a vote for the public role being elected.
// Sending the same vote again changes nothing.
func (s *Session) CastElectionVote(voter, candidate string) (Patch, error) {
	if !s.Phase.IsElection() {
		return nil, ErrInvalidPhase
	}
	if !s.HasPlayer(voter) {
		return nil, ErrNotInSession
	}
	if !s.inPool(candidate) {
		return nil, ErrInvalidCandidate
	}
	if prev, ok := s.electionVotes()[voter]; ok {
		if prev == candidate {
			return Patch{}, nil
		}
		return nil, ErrAlreadyVoted
	}
	return Patch{doc.Join(pathVotes, voter): candidate}, nil
}

// ElectionComplete reports whether every player has voted.
func (s *Session) ElectionComplete() bool {
	return s.Phase.IsElection() && len(s.Players) > 0 &&
		len(s.electionVotes()) == len(s.Players)
}

// ResolveElection settles a complete election. A unique winner fills the
// slot and moves the match on; a tie restarts the vote among the leaders.
// It returns ErrNotReady when there is nothing to resolve, so a repeated or
// late call has no effect.
func (s *Session) ResolveElection(by string) (Patch, error) {
	if err := s.requireHost(by); err != nil {
		return nil, err
	}
	if !s.ElectionComplete() {
		return nil, ErrNotReady
	}

	tally := TallyVotes(s.electionVotes(), nil)
	if winner, ok := tally.Winner(); ok {
		return s.elect(winner)
	}
	return Patch{
		pathVotes: nil,
		pathTied:  tally.Leaders,
	}, nil
}

// ForceResolveElection settles an election from the votes cast so far,
// breaking a tie at random. It lets the host move past players that stopped
// responding.
func (s *Session) ForceResolveElection(by string, rng *rand.Rand) (Patch, error) {
	if err := s.requireHost(by); err != nil {
		return nil, err
	}
	if !s.Phase.IsElection() {
		return nil, ErrNotReady
	}
	votes := s.electionVotes()
	if len(votes) == 0 {
		return nil, ErrNotReady
	}

	tally := TallyVotes(votes, nil)
	winner, ok := tally.Winner()
	if !ok {
		winner = tally.Leaders[rng.Intn(len(tally.Leaders))]
	}
	return s.elect(winner)
}

func (s *Session) elect(winner string) (Patch, error) {
	p := Patch{
		pathVotes: nil,
		pathTied:  nil,
	}
	switch s.Phase {
	case PhaseElectionDoctor:
		p[pathDoctor] = winner
		p[pathElection] = ElectionGuard
		if err := s.transition(p, PhaseElectionGuard); err != nil {
			return nil, err
		}
	case PhaseElectionGuard:
		p[pathGuard] = winner
		p[pathElection] = ElectionNone
		if err := s.transition(p, PhaseRound); err != nil {
			return nil, err
		}
		beginRound(p, 1, s.HostID)
	default:
		return nil, ErrInvalidPhase
	}
	return p, nil
}
