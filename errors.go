package secretauth

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateUsername is returned when registering a username that is already bound.
	ErrDuplicateUsername = errors.New("username already registered")

	// ErrNotFound is returned by stores and the verifier when no account matches.
	ErrNotFound = errors.New("account not found")

	// ErrInvalidCredential is returned when a password does not match the stored hash.
	ErrInvalidCredential = errors.New("invalid credentials")

	// ErrHandshakeFailed covers every failure of a federated login handshake.
	ErrHandshakeFailed = errors.New("provider handshake failed")

	// ErrStoreUnavailable wraps any failure of the underlying account store.
	ErrStoreUnavailable = errors.New("account store unavailable")

	// ErrUnknownSession means a session token no longer resolves to an account.
	ErrUnknownSession = errors.New("unknown session")

	ErrUnknownProvider = errors.New("unknown provider")
	ErrMissingField    = errors.New("missing required field")
)

// HandshakeError records which stage of a provider handshake failed.
// It matches ErrHandshakeFailed with errors.Is.
type HandshakeError struct {
	Provider Provider
	Stage    string // "authorize", "state", "exchange", "profile"
	Err      error
}

func NewHandshakeError(provider Provider, stage string, err error) *HandshakeError {
	return &HandshakeError{Provider: provider, Stage: stage, Err: err}
}

func (e *HandshakeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s handshake failed at %s", e.Provider, e.Stage)
	}
	return fmt.Sprintf("%s handshake failed at %s: %v", e.Provider, e.Stage, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

func (e *HandshakeError) Is(target error) bool { return target == ErrHandshakeFailed }

// StoreError wraps a backend failure so callers can match ErrStoreUnavailable
// without losing the driver error.
func StoreError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
