package secretauth_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	sa "github.com/panyam/secretauth"
	"github.com/panyam/secretauth/stores/fs"
)

// fastHasher keeps argon2 cheap enough for tests
func fastHasher() *sa.Argon2Hasher {
	return &sa.Argon2Hasher{Time: 1, Memory: 1024, Threads: 1}
}

func newTestOrchestrator(t *testing.T, adapters ...sa.ProviderAdapter) (*sa.Orchestrator, *fs.FSAccountStore) {
	t.Helper()
	store := fs.NewFSAccountStore(t.TempDir())
	o := sa.NewOrchestrator(store, nil, adapters...)
	o.Verifier = sa.NewCredentialVerifier(store, fastHasher())
	return o, store
}

// sessionContext returns a context carrying a fresh, loaded scs session, the
// way LoadAndSave would hand it to a handler.
func sessionContext(t *testing.T, sessions *sa.SessionManager) context.Context {
	t.Helper()
	ctx, err := sessions.Session.Load(context.Background(), "")
	if err != nil {
		t.Fatalf("Failed to load session: %v", err)
	}
	return ctx
}

// fakeAdapter is a ProviderAdapter that maps authorization codes straight to
// external ids without any network traffic.
type fakeAdapter struct {
	name  sa.Provider
	state string

	// code -> external id
	ids map[string]string

	completions atomic.Int32
}

func newFakeAdapter(name sa.Provider, ids map[string]string) *fakeAdapter {
	return &fakeAdapter{name: name, ids: ids}
}

func (f *fakeAdapter) Name() sa.Provider   { return f.name }
func (f *fakeAdapter) FixedState() string { return f.state }

func (f *fakeAdapter) Begin(state string, scopes []string) string {
	q := url.Values{"state": {state}}
	for _, scope := range scopes {
		q.Add("scope", scope)
	}
	return "https://provider.example/authorize?" + q.Encode()
}

func (f *fakeAdapter) Complete(ctx context.Context, params url.Values) (*sa.ExternalIdentity, error) {
	f.completions.Add(1)
	id, ok := f.ids[params.Get("code")]
	if !ok {
		return nil, sa.NewHandshakeError(f.name, "exchange", errors.New("bad code"))
	}
	return &sa.ExternalIdentity{Provider: f.name, ExternalID: id}, nil
}

// stateFrom pulls the anti-forgery state out of a Begin redirect.
func stateFrom(t *testing.T, redirectURL string) string {
	t.Helper()
	u, err := url.Parse(redirectURL)
	if err != nil {
		t.Fatalf("Bad redirect url %q: %v", redirectURL, err)
	}
	return u.Query().Get("state")
}

// racyStore is an in-memory AccountStore whose upsert is a plain
// read-then-write with a pause in between. It does not claim AtomicUpsert.
type racyStore struct {
	// pause between the read and the write of an upsert
	delay time.Duration

	mu       sync.Mutex
	accounts map[string]*sa.Account
	upserts  atomic.Int32
	creates  atomic.Int32
}

func newRacyStore() *racyStore {
	return &racyStore{delay: 20 * time.Millisecond, accounts: map[string]*sa.Account{}}
}

func (s *racyStore) FindByID(ctx context.Context, id string) (*sa.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		return a.Clone(), nil
	}
	return nil, sa.ErrNotFound
}

func (s *racyStore) FindByUsername(ctx context.Context, username string) (*sa.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if username != "" && a.Username == username {
			return a.Clone(), nil
		}
	}
	return nil, sa.ErrNotFound
}

func (s *racyStore) findExternal(provider sa.Provider, externalID string) *sa.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ExternalID(provider) == externalID {
			return a.Clone()
		}
	}
	return nil
}

func (s *racyStore) UpsertByExternalID(ctx context.Context, provider sa.Provider, externalID string, defaults *sa.Account) (*sa.Account, bool, error) {
	s.upserts.Add(1)
	if existing := s.findExternal(provider, externalID); existing != nil {
		return existing, false, nil
	}
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, false, sa.StoreError("upsert", ctx.Err())
	}

	account := defaults.Clone()
	if account == nil {
		account = &sa.Account{}
	}
	if err := account.SetExternalID(provider, externalID); err != nil {
		return nil, false, err
	}
	return account, true, s.Create(ctx, account)
}

func (s *racyStore) Create(ctx context.Context, account *sa.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates.Add(1)
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.CreatedAt = time.Now()
	s.accounts[account.ID] = account.Clone()
	return nil
}

func (s *racyStore) Save(ctx context.Context, account *sa.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.ID]; !ok {
		return sa.ErrNotFound
	}
	s.accounts[account.ID] = account.Clone()
	return nil
}

func (s *racyStore) ListWithSecrets(ctx context.Context) ([]*sa.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*sa.Account{}
	for _, a := range s.accounts {
		if a.Secret != "" {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

var _ sa.AccountStore = (*racyStore)(nil)
