package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"outbreak/internal/app"
	"outbreak/internal/domain"
)

// Response is a standard API response
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JoinInfoResponse describes the session behind a join code
type JoinInfoResponse struct {
	SessionID   string `json:"sessionId"`
	Code        string `json:"code"`
	PlayerCount int    `json:"playerCount"`
	Phase       string `json:"phase"`
	CanJoin     bool   `json:"canJoin"`
}

// HealthResponse is the response for health check
type HealthResponse struct {
	Status string `json:"status"`
}

// StatsResponse is the response for stats endpoint
type StatsResponse struct {
	ActiveSessions int `json:"activeSessions"`
	TotalPlayers   int `json:"totalPlayers"`
	Subscriptions  int `json:"subscriptions"`
}

// handleJoinInfo handles GET /api/join/{code}
func (s *Server) handleJoinInfo(w http.ResponseWriter, r *http.Request) {
	code := app.NormalizeCode(r.PathValue("code"))
	if code == "" {
		s.sendError(w, http.StatusBadRequest, "MISSING_CODE", "Join code is required")
		return
	}

	sessionID, err := s.directory.Resolve(r.Context(), code)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			s.sendError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found")
		} else {
			s.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		}
		return
	}

	node, err := s.reader.Get(r.Context(), app.SessionPath(sessionID))
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	sess, err := domain.DecodeSession(sessionID, node)
	if err != nil {
		s.sendError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found")
		return
	}

	s.sendSuccess(w, &JoinInfoResponse{
		SessionID:   sessionID,
		Code:        sess.Code,
		PlayerCount: len(sess.Players),
		Phase:       string(sess.Phase),
		CanJoin:     sess.Phase == domain.PhaseWaiting && len(sess.Players) < domain.MaxPlayers,
	})
}

// handleHealth handles GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendSuccess(w, &HealthResponse{
		Status: "ok",
	})
}

// handleStats handles GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.directory.Stats(r.Context())
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	s.sendSuccess(w, &StatsResponse{
		ActiveSessions: stats.Sessions,
		TotalPlayers:   stats.Players,
		Subscriptions:  s.store.SubscriberCount(),
	})
}

// sendSuccess sends a successful JSON response
func (s *Server) sendSuccess(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&Response{
		Success: true,
		Data:    data,
	})
}

// sendError sends an error JSON response
func (s *Server) sendError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	})
}
