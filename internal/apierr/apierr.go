// Package apierr defines the surface-visible error taxonomy and maps
// it to HTTP status codes and a structured JSON response body.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Kind is the surface-visible error taxonomy.
type Kind string

const (
	Unauthenticated Kind = "unauthenticated"
	BadRequest      Kind = "bad_request"
	NotFound        Kind = "not_found"
	AlreadyInLobby  Kind = "already_in_lobby"
	NotInLobby      Kind = "not_in_lobby"
	Full            Kind = "full"
	NotJoinable     Kind = "not_joinable"
	InvalidState    Kind = "invalid_state"
	Internal        Kind = "internal"
)

var statusByKind = map[Kind]int{
	Unauthenticated: http.StatusUnauthorized,
	BadRequest:      http.StatusBadRequest,
	NotFound:        http.StatusNotFound,
	AlreadyInLobby:  http.StatusConflict,
	NotInLobby:      http.StatusConflict,
	Full:            http.StatusConflict,
	NotJoinable:     http.StatusConflict,
	InvalidState:    http.StatusConflict,
	Internal:        http.StatusInternalServerError,
}

// Error is the concrete error type returned by core operations.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error carrying a public-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches kind and a public-safe message to an internal cause
// without leaking the cause's text to API clients.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// StatusCode maps a Kind to its HTTP status, defaulting to 500 for
// unrecognized kinds.
func StatusCode(kind Kind) int {
	if code, ok := statusByKind[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// As extracts an *Error from err, if present.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

type body struct {
	Success    bool      `json:"success"`
	Error      errorBody `json:"error"`
	StatusCode int       `json:"status_code"`
}

type errorBody struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// WriteJSON writes the structured error response body for err.
// Internal errors are logged with full context but the client only
// ever sees a generic message.
func WriteJSON(w http.ResponseWriter, logger *logrus.Logger, err error) {
	apiErr, ok := As(err)
	if !ok {
		apiErr = Wrap(Internal, "internal error", err)
	}

	clientMessage := apiErr.Message
	if apiErr.Kind == Internal {
		if logger == nil {
			logger = logrus.StandardLogger()
		}
		logger.WithError(err).Error("internal error")
		clientMessage = "an internal error occurred"
	}

	status := StatusCode(apiErr.Kind)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body{
		Success: false,
		Error: errorBody{
			Kind:    apiErr.Kind,
			Message: clientMessage,
		},
		StatusCode: status,
	})
}
