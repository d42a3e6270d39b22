package domain

// Role is a player's secret role.
type Role string

const (
	RoleHealthy  Role = "healthy"
	RoleCarrier  Role = "carrier"
	RoleInfected Role = "infected"
)

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// IsCarrier returns true if this role is the carrier
func (r Role) IsCarrier() bool {
	return r == RoleCarrier
}

// IsContagious reports whether a prophecy reveals the role as a threat.
func (r Role) IsContagious() bool {
	return r == RoleCarrier || r == RoleInfected
}

// ElectionKind names the public role being elected.
type ElectionKind string

const (
	ElectionNone   ElectionKind = "none"
	ElectionDoctor ElectionKind = "doctor"
	ElectionGuard  ElectionKind = "guard"
)

// CureResult is the outcome of a cure or antidote.
type CureResult string

const (
	CureSuccess  CureResult = "success"
	CureNoEffect CureResult = "noEffect"
	CureSkipped  CureResult = "skipped"
)

// GameResult names the winning side.
type GameResult string

const (
	ResultNone       GameResult = ""
	ResultHealthyWin GameResult = "healthyWin"
	ResultCarrierWin GameResult = "carrierWin"
)
