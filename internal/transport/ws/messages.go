package ws

import (
	"errors"

	"outbreak/internal/doc"
	"outbreak/internal/store"
)

// FrameType names a relay frame.
type FrameType string

// Client → Server frame types
const (
	FrameUpdate           FrameType = "update"
	FrameGet              FrameType = "get"
	FrameObserve          FrameType = "observe"
	FrameUnobserve        FrameType = "unobserve"
	FrameOnDisconnect     FrameType = "onDisconnect"
	FrameCancelDisconnect FrameType = "cancelDisconnect"
)

// Server → Client frame types
const (
	FrameResult FrameType = "result"
	FrameEvent  FrameType = "event"
)

// Frame is one relay message. Requests carry an ID echoed by their result;
// events carry the SubID chosen by the client when it subscribed.
type Frame struct {
	ID    uint64        `json:"id,omitempty"`
	Type  FrameType     `json:"type"`
	Path  string        `json:"path,omitempty"`
	Patch doc.Patch     `json:"patch,omitempty"`
	Value any           `json:"value,omitempty"`
	SubID uint64        `json:"subId,omitempty"`
	Error *ErrorPayload `json:"error,omitempty"`
}

// ErrorPayload is the error carried by a failed result.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeInvalidPatch   = "INVALID_PATCH"
	ErrCodeClosed         = "CLOSED"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// errorPayload maps a store error to its wire form.
func errorPayload(err error) *ErrorPayload {
	code := ErrCodeInternalError
	switch {
	case errors.Is(err, store.ErrClosed):
		code = ErrCodeClosed
	case errors.Is(err, doc.ErrInvalidPath):
		code = ErrCodeInvalidPatch
	}
	return &ErrorPayload{Code: code, Message: err.Error()}
}

// Err converts the payload back into an error on the client side.
func (e *ErrorPayload) Err() error {
	switch e.Code {
	case ErrCodeClosed:
		return store.ErrClosed
	case ErrCodeInvalidPatch:
		return &RemoteError{Code: e.Code, Message: e.Message, wrapped: doc.ErrInvalidPath}
	}
	return &RemoteError{Code: e.Code, Message: e.Message}
}

// RemoteError is a failure reported by the relay.
type RemoteError struct {
	Code    string
	Message string
	wrapped error
}

func (e *RemoteError) Error() string {
	return "relay: " + e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.wrapped
}
