package domain

import (
	"math/rand"

	"outbreak/internal/doc"
)

// Join adds a player to a waiting lobby. A player already in the session is
// treated as reconnecting and only has their status refreshed.
func (s *Session) Join(playerID string, profile Profile) (Patch, error) {
	if playerID == "" {
		return nil, ErrNotAuthenticated
	}
	if s.HasPlayer(playerID) {
		return s.Heartbeat(playerID)
	}
	if s.Phase != PhaseWaiting {
		return nil, ErrGameAlreadyStarted
	}
	if len(s.Players) >= MaxPlayers {
		return nil, ErrSessionFull
	}
	return Patch{
		doc.Join(pathPlayers, playerID): playerNode(playerID, profile, false, doc.ServerTimestamp),
	}, nil
}

// Leave removes a player. When the host leaves, host passes to the next
// player in join order, preferring players that are online. empty reports
// that nobody is left; the caller deletes the session instead of writing p.
func (s *Session) Leave(playerID string) (p Patch, empty bool, err error) {
	if !s.HasPlayer(playerID) {
		return nil, false, ErrNotInSession
	}

	var remaining []*Player
	for _, pl := range s.PlayersByJoin() {
		if pl.ID != playerID {
			remaining = append(remaining, pl)
		}
	}
	if len(remaining) == 0 {
		return nil, true, nil
	}

	p = Patch{doc.Join(pathPlayers, playerID): nil}
	if s.IsHost(playerID) {
		next := firstOnline(remaining)
		p[pathHost] = next.ID
		p[playerField(next.ID, "isHost")] = true
	}

	// Keep the round moving when the roller walks out mid-roll or with an
	// event choice still open.
	if s.Phase == PhaseRound && s.DiceState.CurrentRollerID == playerID && s.rollerPending() {
		next := s.NextRoller()
		if next == playerID {
			next = s.HostID
			if host, ok := p[pathHost].(string); ok {
				next = host
			}
		}
		p[diceField("currentRollerId")] = next
		if s.RoundSubPhase == SubPhaseDiceEvent && s.DiceState.EventType == EventQuarantine &&
			s.CountLiving(func(pl *Player) bool { return pl.ID != playerID && pl.ID != next }) < QuarantineSize {
			p[diceField("eventResolved")] = true
		}
	}
	return p, false, nil
}

// rollerPending reports whether the round waits on the roller.
func (s *Session) rollerPending() bool {
	switch s.RoundSubPhase {
	case SubPhaseDiceRoll:
		return true
	case SubPhaseDiceEvent:
		return !s.DiceState.EventResolved
	}
	return false
}

func firstOnline(players []*Player) *Player {
	for _, pl := range players {
		if pl.IsOnline() {
			return pl
		}
	}
	return players[0]
}

// MarkStatus records a player's connection status.
func (s *Session) MarkStatus(playerID string, status ConnectionStatus) (Patch, error) {
	if !s.HasPlayer(playerID) {
		return nil, ErrNotInSession
	}
	return Patch{playerField(playerID, "status"): status}, nil
}

// DisconnectPatch is registered with the store to flag a player whose
// connection drops.
func DisconnectPatch(playerID string) Patch {
	return Patch{playerField(playerID, "status"): StatusReconnecting}
}

// Heartbeat marks a player online and refreshes their liveness timestamp.
func (s *Session) Heartbeat(playerID string) (Patch, error) {
	if !s.HasPlayer(playerID) {
		return nil, ErrNotInSession
	}
	return Patch{
		playerField(playerID, "status"):        StatusOnline,
		playerField(playerID, "lastHeartbeat"): doc.ServerTimestamp,
	}, nil
}

// HostCandidate returns the player who should take over hosting when the
// current host is not online: the first online player in join order.
func (s *Session) HostCandidate() string {
	if host, ok := s.Players[s.HostID]; ok && host.IsOnline() {
		return ""
	}
	for _, pl := range s.PlayersByJoin() {
		if pl.ID != s.HostID && pl.IsOnline() {
			return pl.ID
		}
	}
	return ""
}

// ClaimHost moves host status to by when the current host has dropped and by
// is next in line.
func (s *Session) ClaimHost(by string) (Patch, error) {
	if !s.HasPlayer(by) {
		return nil, ErrNotInSession
	}
	if s.IsHost(by) {
		return nil, ErrNotReady
	}
	if s.HostCandidate() != by {
		return nil, ErrNotAuthorized
	}
	p := Patch{
		pathHost:                  by,
		playerField(by, "isHost"): true,
	}
	if s.HasPlayer(s.HostID) {
		p[playerField(s.HostID, "isHost")] = false
	}
	return p, nil
}

// StartGame moves a full enough lobby to role assignment.
func (s *Session) StartGame(by string) (Patch, error) {
	if err := s.requireHost(by); err != nil {
		return nil, err
	}
	if s.Phase != PhaseWaiting {
		return nil, ErrGameAlreadyStarted
	}
	if len(s.Players) < MinPlayers {
		return nil, ErrInsufficientPlayers
	}
	if len(s.Players) > MaxPlayers {
		return nil, ErrSessionFull
	}
	p := Patch{}
	if err := s.transition(p, PhaseStarting); err != nil {
		return nil, err
	}
	return p, nil
}

// AssignRoles picks exactly one Carrier uniformly at random. Everyone else
// starts Healthy and alive.
func (s *Session) AssignRoles(by string, rng *rand.Rand) (Patch, error) {
	if err := s.requireHost(by); err != nil {
		return nil, err
	}
	if s.Phase != PhaseStarting {
		return nil, ErrNotReady
	}
	players := s.PlayersByID()
	if len(players) < MinPlayers {
		return nil, ErrInsufficientPlayers
	}
	carrier := players[rng.Intn(len(players))].ID

	p := Patch{
		pathRound:      0,
		pathVotes:      nil,
		pathTied:       nil,
		pathDoctor:     nil,
		pathGuard:      nil,
		pathRoundState: nil,
		pathDiceState:  nil,
		pathResult:     nil,
	}
	for _, pl := range players {
		role := RoleHealthy
		if pl.ID == carrier {
			role = RoleCarrier
		}
		p[playerField(pl.ID, "role")] = role
		p[playerField(pl.ID, "isAlive")] = true
		p[playerField(pl.ID, "roleConfirmed")] = false
	}
	if err := s.transition(p, PhaseRoleReveal); err != nil {
		return nil, err
	}
	return p, nil
}

// ConfirmRole records that a player has read their role.
func (s *Session) ConfirmRole(playerID string) (Patch, error) {
	if s.Phase != PhaseRoleReveal {
		return nil, ErrInvalidPhase
	}
	pl, err := s.Player(playerID)
	if err != nil {
		return nil, ErrNotInSession
	}
	if pl.RoleConfirmed {
		return Patch{}, nil
	}
	return Patch{playerField(playerID, "roleConfirmed"): true}, nil
}

// AllConfirmed reports whether every player has confirmed their role.
func (s *Session) AllConfirmed() bool {
	if len(s.Players) == 0 {
		return false
	}
	for _, pl := range s.Players {
		if !pl.RoleConfirmed {
			return false
		}
	}
	return true
}

// StartElection opens the Doctor election once every role is confirmed.
func (s *Session) StartElection(by string) (Patch, error) {
	if err := s.requireHost(by); err != nil {
		return nil, err
	}
	if s.Phase != PhaseRoleReveal || !s.AllConfirmed() {
		return nil, ErrNotReady
	}
	p := Patch{
		pathElection: ElectionDoctor,
		pathVotes:    nil,
		pathTied:     nil,
	}
	if err := s.transition(p, PhaseElectionDoctor); err != nil {
		return nil, err
	}
	return p, nil
}
