package domain

// PhaseView is a read-only projection of a session holding only what is
// meaningful in its current phase. Switch on the concrete type.
type PhaseView interface {
	Phase() Phase
	isPhaseView()
}

// WaitingView is the lobby.
type WaitingView struct {
	Code     string
	HostID   string
	Players  []*Player
	CanStart bool
}

// StartingView is shown while the host assigns roles.
type StartingView struct {
	HostID string
}

// RoleRevealView tracks role confirmations.
type RoleRevealView struct {
	Players   []*Player
	Confirmed int
}

// ElectionView is one of the two public role elections.
type ElectionView struct {
	Kind       ElectionKind
	Candidates []string
	Votes      map[string]string
	Revote     bool
	Complete   bool
}

// RoundView is one step of a round.
type RoundView struct {
	Round      int
	Step       SubPhase
	Doctor     string
	Guard      string
	Living     []string
	Dice       DiceState
	Protected  string
	CureResult CureResult
	Votes      map[string]string
	Threshold  int
	Exiled     string
	Resolved   bool
}

// FinishedView is the end of the match.
type FinishedView struct {
	Result  GameResult
	Players []*Player
}

func (WaitingView) Phase() Phase    { return PhaseWaiting }
func (StartingView) Phase() Phase   { return PhaseStarting }
func (RoleRevealView) Phase() Phase { return PhaseRoleReveal }
func (v ElectionView) Phase() Phase {
	if v.Kind == ElectionGuard {
		return PhaseElectionGuard
	}
	return PhaseElectionDoctor
}
func (RoundView) Phase() Phase    { return PhaseRound }
func (FinishedView) Phase() Phase { return PhaseFinished }

func (WaitingView) isPhaseView()    {}
func (StartingView) isPhaseView()   {}
func (RoleRevealView) isPhaseView() {}
func (ElectionView) isPhaseView()   {}
func (RoundView) isPhaseView()      {}
func (FinishedView) isPhaseView()   {}

// View projects the session onto its current phase.
func (s *Session) View() PhaseView {
	switch s.Phase {
	case PhaseStarting:
		return StartingView{HostID: s.HostID}
	case PhaseRoleReveal:
		confirmed := 0
		for _, p := range s.Players {
			if p.RoleConfirmed {
				confirmed++
			}
		}
		return RoleRevealView{Players: copyPlayers(s.PlayersByJoin()), Confirmed: confirmed}
	case PhaseElectionDoctor, PhaseElectionGuard:
		kind := ElectionDoctor
		if s.Phase == PhaseElectionGuard {
			kind = ElectionGuard
		}
		return ElectionView{
			Kind:       kind,
			Candidates: s.CandidatePool(),
			Votes:      s.electionVotes(),
			Revote:     len(s.TiedCandidates) > 0,
			Complete:   s.ElectionComplete(),
		}
	case PhaseRound:
		dice := s.DiceState
		dice.QuarantinedPlayerIDs = append([]string(nil), dice.QuarantinedPlayerIDs...)
		return RoundView{
			Round:      s.Round,
			Step:       s.RoundSubPhase,
			Doctor:     s.PublicRoles.Doctor,
			Guard:      s.PublicRoles.Guard,
			Living:     s.LivingIDs(),
			Dice:       dice,
			Protected:  s.RoundState.ProtectedPlayerID,
			CureResult: s.RoundState.CureResult,
			Votes:      s.roundVotes(),
			Threshold:  s.VotingThreshold(),
			Exiled:     s.RoundState.ExiledPlayerID,
			Resolved:   s.RoundState.Resolved,
		}
	case PhaseFinished:
		return FinishedView{Result: s.GameResult, Players: copyPlayers(s.PlayersByJoin())}
	default:
		return WaitingView{
			Code:     s.Code,
			HostID:   s.HostID,
			Players:  copyPlayers(s.PlayersByJoin()),
			CanStart: len(s.Players) >= MinPlayers && len(s.Players) <= MaxPlayers,
		}
	}
}

func copyPlayers(players []*Player) []*Player {
	out := make([]*Player, len(players))
	for i, p := range players {
		cp := *p
		out[i] = &cp
	}
	return out
}
