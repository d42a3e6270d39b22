package domain

import "errors"

// Domain errors
var (
	ErrNotAuthenticated    = errors.New("no player identity")
	ErrNotInSession        = errors.New("player is not in this session")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionFull         = errors.New("session is full")
	ErrGameAlreadyStarted  = errors.New("game already started")
	ErrNotAuthorized       = errors.New("player is not allowed to perform this action")
	ErrInvalidCandidate    = errors.New("invalid target for this action")
	ErrInsufficientPlayers = errors.New("not enough players to start")
	ErrInvalidPhase        = errors.New("invalid action for current phase")
	ErrInvalidTransition   = errors.New("invalid phase transition")
	ErrNotReady            = errors.New("nothing to resolve yet")
	ErrInvalidRoll         = errors.New("roll must be between 2 and 12")
	ErrAlreadyVoted        = errors.New("already voted")
	ErrPlayerNotFound      = errors.New("player not found")
)
