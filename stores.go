package secretauth

import (
	"context"
	"net/url"
	"time"
)

// Provider names an authentication method.
type Provider string

const (
	ProviderLocal    Provider = "local"
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
	ProviderReddit   Provider = "reddit"
)

// FederatedProviders lists the providers that resolve through the Reconciler.
func FederatedProviders() []Provider {
	return []Provider{ProviderGoogle, ProviderFacebook, ProviderReddit}
}

// Account is the canonical identity record shared by every strategy.
//
// Each facet (local credentials, one per provider) is populated independently.
// Two facets only live on the same Account if they were created together;
// the auth core never merges accounts.
type Account struct {
	ID string `json:"id"`

	// Local facet
	Username     string `json:"username,omitempty"`
	Salt         string `json:"salt,omitempty"`          // hex
	PasswordHash string `json:"password_hash,omitempty"` // hex

	// Federated facets
	GoogleID   string `json:"google_id,omitempty"`
	FacebookID string `json:"facebook_id,omitempty"`
	RedditID   string `json:"reddit_id,omitempty"`

	// Application payload, owned by SecretsService
	Secret string `json:"secret,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasLocalCredential reports whether the account can log in with a password.
func (a *Account) HasLocalCredential() bool {
	return a.Username != "" && a.PasswordHash != ""
}

// ExternalID returns the external id of the given provider's facet.
func (a *Account) ExternalID(provider Provider) string {
	switch provider {
	case ProviderGoogle:
		return a.GoogleID
	case ProviderFacebook:
		return a.FacebookID
	case ProviderReddit:
		return a.RedditID
	}
	return ""
}

// SetExternalID populates the given provider's facet.
func (a *Account) SetExternalID(provider Provider, externalID string) error {
	switch provider {
	case ProviderGoogle:
		a.GoogleID = externalID
	case ProviderFacebook:
		a.FacebookID = externalID
	case ProviderReddit:
		a.RedditID = externalID
	default:
		return ErrUnknownProvider
	}
	return nil
}

// Clone returns an independent copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	return &out
}

// ExternalIdentity is what a provider handshake yields.
type ExternalIdentity struct {
	Provider   Provider
	ExternalID string
	Profile    map[string]any // minimal display profile, not persisted
}

// AccountStore is the persisted account collection.
//
// Implementations return ErrNotFound for misses, ErrDuplicateUsername when a
// username is already bound, and wrap every other failure with
// ErrStoreUnavailable.
type AccountStore interface {
	// FindByID looks up an account by its internal id
	FindByID(ctx context.Context, id string) (*Account, error)

	// FindByUsername looks up an account by its local username
	FindByUsername(ctx context.Context, username string) (*Account, error)

	// UpsertByExternalID atomically returns the account owning
	// (provider, externalID), creating it from defaults if none exists.
	// An existing account is returned unchanged.
	UpsertByExternalID(ctx context.Context, provider Provider, externalID string, defaults *Account) (account *Account, created bool, err error)

	// Create inserts a new account, assigning its ID if empty.
	Create(ctx context.Context, account *Account) error

	// Save updates an existing account
	Save(ctx context.Context, account *Account) error

	// ListWithSecrets returns all accounts that carry a non-empty secret
	ListWithSecrets(ctx context.Context) ([]*Account, error)
}

// AtomicUpserter is implemented by stores whose UpsertByExternalID is atomic
// across concurrent callers. The Reconciler serializes upserts per key for
// stores that do not implement it or report false.
type AtomicUpserter interface {
	AtomicUpsert() bool
}

// ProviderAdapter wraps one provider's two-phase delegated login.
type ProviderAdapter interface {
	// Name of the provider this adapter talks to
	Name() Provider

	// FixedState returns a configured anti-replay state, or "" when a fresh
	// state should be generated for each attempt.
	FixedState() string

	// Begin returns the authorization URL to redirect the user-agent to.
	// A nil scopes slice selects the adapter's configured profile scope.
	Begin(state string, scopes []string) string

	// Complete exchanges the callback's code for a token and fetches the
	// minimal profile. Every failure matches ErrHandshakeFailed.
	Complete(ctx context.Context, params url.Values) (*ExternalIdentity, error)
}
