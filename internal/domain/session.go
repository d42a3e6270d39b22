package domain

import (
	"time"

	"outbreak/internal/doc"
)

// Player count bounds for a match.
const (
	MinPlayers = 2
	MaxPlayers = 8
)

// Patch is a set of writes relative to the session document root.
type Patch = doc.Patch

// Document paths, relative to sessions/{id}.
const (
	pathCode       = "code"
	pathHost       = "hostId"
	pathPhase      = "phase"
	pathRound      = "round"
	pathSubPhase   = "roundSubPhase"
	pathPlayers    = "players"
	pathElection   = "currentElectionKind"
	pathVotes      = "votes"
	pathTied       = "tiedCandidates"
	pathDoctor     = "publicRoles/doctor"
	pathGuard      = "publicRoles/guard"
	pathRoundState = "roundState"
	pathDiceState  = "diceState"
	pathResult     = "gameResult"
	pathCreatedAt  = "createdAt"
)

func playerField(id, field string) string {
	return doc.Join(pathPlayers, id, field)
}

func roundField(field string) string {
	return doc.Join(pathRoundState, field)
}

func diceField(field string) string {
	return doc.Join(pathDiceState, field)
}

// PublicRoles holds the two elected roles.
type PublicRoles struct {
	Doctor string `json:"doctor,omitempty"`
	Guard  string `json:"guard,omitempty"`
}

// RoundState is reset at the start of every round.
type RoundState struct {
	ProtectedPlayerID      string            `json:"protectedPlayerId,omitempty"`
	CureTargetID           string            `json:"cureTargetId,omitempty"`
	CureResult             CureResult        `json:"cureResult,omitempty"`
	Votes                  map[string]string `json:"votes,omitempty"`
	CarrierInfectionTarget string            `json:"carrierInfectionTarget,omitempty"`
	ExiledPlayerID         string            `json:"exiledPlayerId,omitempty"`
	Resolved               bool              `json:"resolved,omitempty"`
}

// DiceState is reset at the start of every round.
type DiceState struct {
	CurrentRollerID      string          `json:"currentRollerId,omitempty"`
	RollValue            int             `json:"rollValue,omitempty"`
	EventType            EventType       `json:"eventType,omitempty"`
	EventResolved        bool            `json:"eventResolved,omitempty"`
	QuarantinedPlayerIDs []string        `json:"quarantinedPlayerIds,omitempty"`
	ProphecyType         ProphecyType    `json:"prophecyType,omitempty"`
	ProphecyTarget       string          `json:"prophecyTarget,omitempty"`
	ProphecyResult       *ProphecyResult `json:"prophecyResult,omitempty"`
	AntidoteTargetID     string          `json:"antidoteTargetId,omitempty"`
	AntidoteResult       CureResult      `json:"antidoteResult,omitempty"`
	EpidemicVictimID     string          `json:"epidemicVictimId,omitempty"`
	SkipCurePhase        bool            `json:"skipCurePhase,omitempty"`
}

// Session is one match. Its JSON form is the shared document at
// sessions/{id}; every client decodes the same snapshot.
type Session struct {
	ID                  string             `json:"-"`
	Code                string             `json:"code"`
	HostID              string             `json:"hostId"`
	Phase               Phase              `json:"phase"`
	Round               int                `json:"round"`
	RoundSubPhase       SubPhase           `json:"roundSubPhase,omitempty"`
	Players             map[string]*Player `json:"players,omitempty"`
	PublicRoles         PublicRoles        `json:"publicRoles"`
	CurrentElectionKind ElectionKind       `json:"currentElectionKind,omitempty"`
	Votes               map[string]string  `json:"votes,omitempty"`
	TiedCandidates      []string           `json:"tiedCandidates,omitempty"`
	RoundState          RoundState         `json:"roundState"`
	DiceState           DiceState          `json:"diceState"`
	GameResult          GameResult         `json:"gameResult,omitempty"`
	CreatedAt           int64              `json:"createdAt,omitempty"`
}

// DecodeSession builds a snapshot from the document node at sessions/{id}.
func DecodeSession(id string, node any) (*Session, error) {
	if node == nil {
		return nil, ErrSessionNotFound
	}
	s := &Session{}
	if err := doc.Decode(node, s); err != nil {
		return nil, err
	}
	if s.Code == "" {
		// Only a late disconnect hook writes into a deleted session.
		return nil, ErrSessionNotFound
	}
	s.ID = id
	for pid, p := range s.Players {
		// A disconnect hook can land after a player left and leave a
		// partial node behind.
		if p == nil || p.Name == "" {
			delete(s.Players, pid)
			continue
		}
		p.ID = pid
	}
	return s, nil
}

// NewLobby returns the document for a fresh lobby hosted by hostID.
func NewLobby(code, hostID string, profile Profile) map[string]any {
	return map[string]any{
		pathCode:     code,
		pathHost:     hostID,
		pathPhase:    PhaseWaiting,
		pathRound:    0,
		pathElection: ElectionNone,
		pathPlayers: map[string]any{
			hostID: playerNode(hostID, profile, true, doc.ServerTimestamp),
		},
		pathCreatedAt: doc.ServerTimestamp,
	}
}

// Apply returns the snapshot that results from committing p. Server
// timestamps resolve to the local clock.
func (s *Session) Apply(p Patch) (*Session, error) {
	node, err := doc.Normalize(s)
	if err != nil {
		return nil, err
	}
	root, ok := node.(map[string]any)
	if !ok {
		root = make(doc.Tree)
	}
	norm, err := p.Normalized(func(any) any { return float64(time.Now().UnixMilli()) })
	if err != nil {
		return nil, err
	}
	if err := doc.Apply(root, norm); err != nil {
		return nil, err
	}
	return DecodeSession(s.ID, root)
}

// Player returns a player by ID
func (s *Session) Player(id string) (*Player, error) {
	p, ok := s.Players[id]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return p, nil
}

// HasPlayer reports whether id is in the session.
func (s *Session) HasPlayer(id string) bool {
	_, ok := s.Players[id]
	return ok
}

// IsHost checks if the given player is the host
func (s *Session) IsHost(id string) bool {
	return id != "" && s.HostID == id
}

// IsAlive reports whether id is a living player of the session.
func (s *Session) IsAlive(id string) bool {
	p, ok := s.Players[id]
	return ok && p.IsAlive
}

// PlayersByID returns all players ordered by identity.
func (s *Session) PlayersByID() []*Player {
	players := make([]*Player, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, p)
	}
	sortPlayersByID(players)
	return players
}

// PlayersByJoin returns all players in join order.
func (s *Session) PlayersByJoin() []*Player {
	players := s.PlayersByID()
	sortPlayersByJoin(players)
	return players
}

// LivingIDs returns the IDs of living players ordered by identity.
func (s *Session) LivingIDs() []string {
	ids := make([]string, 0, len(s.Players))
	for _, p := range s.PlayersByID() {
		if p.IsAlive {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// CountLiving counts living players matching pred.
func (s *Session) CountLiving(pred func(*Player) bool) int {
	n := 0
	for _, p := range s.Players {
		if p.IsAlive && pred(p) {
			n++
		}
	}
	return n
}

// IsQuarantined reports whether id is quarantined this round.
func (s *Session) IsQuarantined(id string) bool {
	for _, q := range s.DiceState.QuarantinedPlayerIDs {
		if q == id {
			return true
		}
	}
	return false
}

// requireHost returns ErrNotAuthorized unless by is the host.
func (s *Session) requireHost(by string) error {
	if !s.IsHost(by) {
		return ErrNotAuthorized
	}
	return nil
}

// requireStep returns ErrInvalidPhase unless the round is at sub.
func (s *Session) requireStep(sub SubPhase) error {
	if s.Phase != PhaseRound || s.RoundSubPhase != sub {
		return ErrInvalidPhase
	}
	return nil
}
