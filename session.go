package secretauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alexedwards/scs/v2"
)

// SessionManager ties the scs session of a request to an Account.
//
// The session holds nothing but the account id. Every request that needs the
// account resolves it again through the store.
type SessionManager struct {
	Session *scs.SessionManager
	Store   AccountStore
	Logger  *slog.Logger

	// Name of the session variable holding the account id
	AccountKey string
}

func NewSessionManager(session *scs.SessionManager, store AccountStore) *SessionManager {
	if session == nil {
		session = scs.New()
	}
	return (&SessionManager{Session: session, Store: store}).EnsureDefaults()
}

func (m *SessionManager) EnsureDefaults() *SessionManager {
	if m.AccountKey == "" {
		m.AccountKey = "accountId"
	}
	return m
}

func (m *SessionManager) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// LoadAndSave loads the session for every request and commits it afterwards.
// All other methods need a context that went through it (or scs Load).
func (m *SessionManager) LoadAndSave(next http.Handler) http.Handler {
	return m.Session.LoadAndSave(next)
}

// Serialize binds the session to account and returns the token stored in it.
// The session token is renewed first so a pre-login session id cannot be
// carried into the authenticated session.
func (m *SessionManager) Serialize(ctx context.Context, account *Account) (string, error) {
	m.EnsureDefaults()
	if account == nil || account.ID == "" {
		return "", fmt.Errorf("cannot serialize account without id")
	}
	if err := m.Session.RenewToken(ctx); err != nil {
		return "", fmt.Errorf("failed to renew session token: %w", err)
	}
	m.Session.Put(ctx, m.AccountKey, account.ID)
	return account.ID, nil
}

// Token returns the account token held by the session, or "".
func (m *SessionManager) Token(ctx context.Context) string {
	m.EnsureDefaults()
	return m.Session.GetString(ctx, m.AccountKey)
}

// Deserialize resolves the session's token back to its Account.
func (m *SessionManager) Deserialize(ctx context.Context) (*Account, error) {
	token := m.Token(ctx)
	if token == "" {
		return nil, ErrUnknownSession
	}
	account, err := m.DeserializeToken(ctx, token)
	if err != nil && errors.Is(err, ErrNotFound) {
		// the account is gone for good; drop the dangling reference
		m.Session.Remove(ctx, m.AccountKey)
	}
	return account, err
}

// DeserializeToken resolves a token to its Account. Every failure, including
// an unreachable store, is reported as ErrUnknownSession wrapping the cause.
func (m *SessionManager) DeserializeToken(ctx context.Context, token string) (*Account, error) {
	if token == "" {
		return nil, ErrUnknownSession
	}
	account, err := m.Store.FindByID(ctx, token)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			m.logger().Warn("store unavailable while resolving session", "err", err)
		}
		return nil, errors.Join(ErrUnknownSession, err)
	}
	return account, nil
}

// IsAuthenticated reports whether the session carries a token that still
// resolves to an account.
func (m *SessionManager) IsAuthenticated(ctx context.Context) bool {
	_, err := m.Deserialize(ctx)
	return err == nil
}

// Invalidate destroys the session. Calling it on an anonymous or already
// destroyed session is a no-op.
func (m *SessionManager) Invalidate(ctx context.Context) error {
	if err := m.Session.Destroy(ctx); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

// Put and Pop expose the session to the orchestrator for handshake bookkeeping.
func (m *SessionManager) Put(ctx context.Context, key, value string) {
	m.Session.Put(ctx, key, value)
}

func (m *SessionManager) Pop(ctx context.Context, key string) string {
	return m.Session.PopString(ctx, key)
}
