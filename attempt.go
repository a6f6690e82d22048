package secretauth

import (
	"fmt"
	"log/slog"
	"slices"
)

// AttemptState is a step of one authentication attempt.
type AttemptState int

const (
	StateIdle AttemptState = iota
	StateChallenging
	StateVerifying
	StateHandshakePending
	StateAuthenticated
	StateFailed
)

func (s AttemptState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateChallenging:
		return "Challenging"
	case StateVerifying:
		return "Verifying"
	case StateHandshakePending:
		return "HandshakePending"
	case StateAuthenticated:
		return "Authenticated"
	case StateFailed:
		return "Failed"
	}
	return fmt.Sprintf("AttemptState(%d)", int(s))
}

// Terminal states end the attempt for the request.
func (s AttemptState) Terminal() bool {
	return s == StateAuthenticated || s == StateFailed
}

var allowedTransitions = map[AttemptState][]AttemptState{
	StateIdle:             {StateChallenging, StateVerifying, StateFailed},
	StateChallenging:      {StateHandshakePending, StateFailed},
	StateVerifying:        {StateAuthenticated, StateFailed},
	StateHandshakePending: {StateAuthenticated, StateFailed},
}

// Attempt tracks one pass through the authentication state machine.
type Attempt struct {
	Provider Provider
	State    AttemptState
	History  []AttemptState

	// Set when State is StateAuthenticated
	Account *Account

	// Set when State is StateFailed
	Err error

	logger *slog.Logger
}

func newAttempt(provider Provider, logger *slog.Logger) *Attempt {
	return &Attempt{
		Provider: provider,
		State:    StateIdle,
		History:  []AttemptState{StateIdle},
		logger:   logger,
	}
}

// Succeeded reports whether the attempt ended authenticated.
func (a *Attempt) Succeeded() bool {
	return a.State == StateAuthenticated
}

func (a *Attempt) advance(to AttemptState) {
	if !slices.Contains(allowedTransitions[a.State], to) {
		panic(fmt.Sprintf("secretauth: illegal attempt transition %s -> %s", a.State, to))
	}
	if a.logger != nil {
		a.logger.Debug("auth attempt transition", "provider", a.Provider, "from", a.State, "to", to)
	}
	a.State = to
	a.History = append(a.History, to)
}

func (a *Attempt) succeed(account *Account) *Attempt {
	a.advance(StateAuthenticated)
	a.Account = account
	return a
}

func (a *Attempt) fail(err error) *Attempt {
	a.advance(StateFailed)
	a.Err = err
	if a.logger != nil {
		a.logger.Info("auth attempt failed", "provider", a.Provider, "err", err)
	}
	return a
}
