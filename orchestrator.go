package secretauth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/alexedwards/scs/v2"
)

// Orchestrator sequences verifier, provider adapters, reconciler and session
// for each authentication attempt. It holds no per-attempt state; everything
// an attempt needs travels in ctx (which must carry a loaded scs session).
type Orchestrator struct {
	Verifier   *CredentialVerifier
	Reconciler *Reconciler
	Sessions   *SessionManager
	Providers  map[Provider]ProviderAdapter
	Logger     *slog.Logger
}

// NewOrchestrator wires the default components around store and session.
func NewOrchestrator(store AccountStore, session *scs.SessionManager, adapters ...ProviderAdapter) *Orchestrator {
	o := &Orchestrator{
		Verifier:   NewCredentialVerifier(store, nil),
		Reconciler: NewReconciler(store),
		Sessions:   NewSessionManager(session, store),
		Providers:  make(map[Provider]ProviderAdapter),
	}
	for _, adapter := range adapters {
		o.AddProvider(adapter)
	}
	return o
}

// AddProvider registers (or replaces) the adapter for adapter.Name(). A nil
// adapter is ignored.
func (o *Orchestrator) AddProvider(adapter ProviderAdapter) *Orchestrator {
	if adapter == nil {
		return o
	}
	if o.Providers == nil {
		o.Providers = make(map[Provider]ProviderAdapter)
	}
	o.Providers[adapter.Name()] = adapter
	return o
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func challengeKey(provider Provider) string {
	return "oauthChallenge:" + string(provider)
}

// Register creates a local account and logs it in.
func (o *Orchestrator) Register(ctx context.Context, username, password string) *Attempt {
	att := newAttempt(ProviderLocal, o.logger())
	att.advance(StateVerifying)
	account, err := o.Verifier.Register(ctx, username, password)
	if err != nil {
		return att.fail(err)
	}
	return o.establish(ctx, att, account)
}

// VerifyLocal checks a username/password pair and logs the account in.
func (o *Orchestrator) VerifyLocal(ctx context.Context, username, password string) *Attempt {
	att := newAttempt(ProviderLocal, o.logger())
	att.advance(StateVerifying)
	account, err := o.Verifier.Verify(ctx, username, password)
	if err != nil {
		return att.fail(err)
	}
	return o.establish(ctx, att, account)
}

// BeginFederated starts a delegated login and returns the URL the user-agent
// must be redirected to. The attempt is left Challenging; it continues in
// CompleteFederated when (and if) the provider calls back.
func (o *Orchestrator) BeginFederated(ctx context.Context, provider Provider, scopes ...string) (string, *Attempt) {
	att := newAttempt(provider, o.logger())
	adapter, ok := o.Providers[provider]
	if !ok {
		return "", att.fail(fmt.Errorf("%w: %s", ErrUnknownProvider, provider))
	}

	state := adapter.FixedState()
	if state == "" {
		var err error
		if state, err = GenerateSecureToken(); err != nil {
			return "", att.fail(err)
		}
	}
	o.Sessions.Put(ctx, challengeKey(provider), state)
	att.advance(StateChallenging)
	return adapter.Begin(state, scopes), att
}

// CompleteFederated handles the provider callback: it checks the challenge,
// runs the adapter's token exchange and profile fetch, resolves the external
// identity to an account and logs it in. No step is retried.
func (o *Orchestrator) CompleteFederated(ctx context.Context, provider Provider, params url.Values) *Attempt {
	att := newAttempt(provider, o.logger())
	adapter, ok := o.Providers[provider]
	if !ok {
		return att.fail(fmt.Errorf("%w: %s", ErrUnknownProvider, provider))
	}

	expected := o.Sessions.Pop(ctx, challengeKey(provider))
	if expected == "" {
		return att.fail(NewHandshakeError(provider, "state", fmt.Errorf("no pending challenge")))
	}
	att.advance(StateChallenging)
	att.advance(StateHandshakePending)

	if subtle.ConstantTimeCompare([]byte(params.Get("state")), []byte(expected)) != 1 {
		return att.fail(NewHandshakeError(provider, "state", fmt.Errorf("state mismatch")))
	}

	identity, err := adapter.Complete(ctx, params)
	if err != nil {
		return att.fail(err)
	}
	account, err := o.Reconciler.Resolve(ctx, provider, identity.ExternalID)
	if err != nil {
		return att.fail(err)
	}
	return o.establish(ctx, att, account)
}

// IsAuthenticated reports whether ctx's session resolves to an account.
func (o *Orchestrator) IsAuthenticated(ctx context.Context) bool {
	return o.Sessions.IsAuthenticated(ctx)
}

// Logout clears the session. It is safe to call repeatedly.
func (o *Orchestrator) Logout(ctx context.Context) error {
	return o.Sessions.Invalidate(ctx)
}

func (o *Orchestrator) establish(ctx context.Context, att *Attempt, account *Account) *Attempt {
	if _, err := o.Sessions.Serialize(ctx, account); err != nil {
		return att.fail(err)
	}
	o.logger().Info("authenticated", "provider", att.Provider, "accountId", account.ID)
	return att.succeed(account)
}
