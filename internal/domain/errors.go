package domain

import "errors"

// Common errors used throughout the application.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidAPIKey     = errors.New("invalid API key")
	ErrBootstrapDisabled = errors.New("bootstrap key disabled - API keys exist")

	// ErrInsufficientHosts is returned when a group rule demands more hosts
	// than remain in the service's pool. The pass is aborted and no partial
	// assignment is persisted.
	ErrInsufficientHosts = errors.New("insufficient hosts in pool")

	// ErrRemoteState wraps read/write failures against the Stackl API.
	ErrRemoteState = errors.New("stackl state error")
)

// APIError represents an error response from the API.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}
