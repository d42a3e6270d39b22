package domain

import "sort"

// ConnectionStatus represents a player's connection state
type ConnectionStatus string

const (
	StatusOnline       ConnectionStatus = "online"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusOffline      ConnectionStatus = "offline"
)

// Player represents a participant in a match
type Player struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	AvatarID      string           `json:"avatarId,omitempty"`
	Status        ConnectionStatus `json:"status"`
	Role          Role             `json:"role,omitempty"`
	IsHost        bool             `json:"isHost"`
	IsAlive       bool             `json:"isAlive"`
	RoleConfirmed bool             `json:"roleConfirmed,omitempty"`
	LastHeartbeat int64            `json:"lastHeartbeat,omitempty"`
	JoinedAt      int64            `json:"joinedAt,omitempty"`
}

// IsOnline returns true if the player is currently connected
func (p *Player) IsOnline() bool {
	return p.Status == StatusOnline
}

// Profile is what a player chooses when joining.
type Profile struct {
	Name     string
	AvatarID string
}

// playerNode is the document written when a player joins. Timestamps are
// resolved by the store.
func playerNode(id string, profile Profile, isHost bool, now any) map[string]any {
	return map[string]any{
		"id":            id,
		"name":          profile.Name,
		"avatarId":      profile.AvatarID,
		"status":        StatusOnline,
		"isHost":        isHost,
		"isAlive":       true,
		"lastHeartbeat": now,
		"joinedAt":      now,
	}
}

// sortPlayersByID orders players by identity.
func sortPlayersByID(players []*Player) {
	sort.Slice(players, func(i, j int) bool {
		return players[i].ID < players[j].ID
	})
}

// sortPlayersByJoin orders players by join time, identity breaking ties.
func sortPlayersByJoin(players []*Player) {
	sort.Slice(players, func(i, j int) bool {
		if players[i].JoinedAt != players[j].JoinedAt {
			return players[i].JoinedAt < players[j].JoinedAt
		}
		return players[i].ID < players[j].ID
	})
}
