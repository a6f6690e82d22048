// Package fs stores accounts as JSON files on the local file system.
//
// Layout under StoragePath:
//
//	accounts/<id>.json            one file per account
//	index/<kind>/<sha256(key)>    holds the id of the account owning key
//
// Index entries are created with O_EXCL. They are the store's unique
// constraint for usernames and provider ids.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	sa "github.com/panyam/secretauth"
)

const usernameIndex = "username"

// FSAccountStore implements sa.AccountStore on top of a directory
type FSAccountStore struct {
	StoragePath string

	mu sync.Mutex
}

func NewFSAccountStore(storagePath string) *FSAccountStore {
	return &FSAccountStore{StoragePath: storagePath}
}

// AtomicUpsert is true: upserts are serialized in-process and the O_EXCL
// index settles races between processes.
func (s *FSAccountStore) AtomicUpsert() bool { return true }

func (s *FSAccountStore) accountPath(id string) string {
	// filepath.Base prevents path traversal
	return filepath.Join(s.StoragePath, "accounts", filepath.Base(id)+".json")
}

func (s *FSAccountStore) indexPath(kind, key string) string {
	return filepath.Join(s.StoragePath, "index", kind, indexName(key))
}

func (s *FSAccountStore) FindByID(ctx context.Context, id string) (*sa.Account, error) {
	if id == "" {
		return nil, sa.ErrNotFound
	}
	return s.readAccount(id)
}

func (s *FSAccountStore) FindByUsername(ctx context.Context, username string) (*sa.Account, error) {
	if username == "" {
		return nil, sa.ErrNotFound
	}
	return s.findByIndex(usernameIndex, username)
}

func (s *FSAccountStore) UpsertByExternalID(ctx context.Context, provider sa.Provider, externalID string, defaults *sa.Account) (*sa.Account, bool, error) {
	if externalID == "" {
		return nil, false, fmt.Errorf("%w: external id", sa.ErrMissingField)
	}
	account := defaults.Clone()
	if account == nil {
		account = &sa.Account{}
	}
	if err := account.SetExternalID(provider, externalID); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.findByIndex(string(provider), externalID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sa.ErrNotFound) {
		return nil, false, err
	}

	err = s.insert(account)
	if errors.Is(err, errIndexTaken) {
		// another process got there first
		existing, err := s.findByIndex(string(provider), externalID)
		return existing, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return account.Clone(), true, nil
}

func (s *FSAccountStore) Create(ctx context.Context, account *sa.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.insert(account)
	if errors.Is(err, errIndexTaken) {
		if account.Username != "" {
			return sa.ErrDuplicateUsername
		}
		return sa.StoreError("create", err)
	}
	return err
}

func (s *FSAccountStore) Save(ctx context.Context, account *sa.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readAccount(account.ID)
	if err != nil {
		return err
	}

	// claim any new keys before releasing old ones
	old, next := indexKeys(current), indexKeys(account)
	var claimed []string
	for kind, key := range next {
		if old[kind] == key {
			continue
		}
		if err := createExclusive(s.indexPath(kind, key), []byte(account.ID)); err != nil {
			s.release(claimed, next)
			if errors.Is(err, errIndexTaken) && kind == usernameIndex {
				return sa.ErrDuplicateUsername
			}
			return sa.StoreError("save", err)
		}
		claimed = append(claimed, kind)
	}

	account.CreatedAt = current.CreatedAt
	account.UpdatedAt = time.Now()
	if err := s.writeAccount(account); err != nil {
		s.release(claimed, next)
		return err
	}
	for kind, key := range old {
		if next[kind] != key {
			os.Remove(s.indexPath(kind, key))
		}
	}
	return nil
}

func (s *FSAccountStore) ListWithSecrets(ctx context.Context) ([]*sa.Account, error) {
	dir := filepath.Join(s.StoragePath, "accounts")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*sa.Account{}, nil
		}
		return nil, sa.StoreError("list", err)
	}

	accounts := []*sa.Account{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		account, err := s.readAccount(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		if account.Secret != "" {
			accounts = append(accounts, account)
		}
	}
	slices.SortFunc(accounts, func(a, b *sa.Account) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return accounts, nil
}

// insert writes a new account and then claims its index entries. On any
// conflict everything written so far is removed again.
func (s *FSAccountStore) insert(account *sa.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := time.Now()
	account.CreatedAt, account.UpdatedAt = now, now

	if _, err := os.Stat(s.accountPath(account.ID)); err == nil {
		return sa.StoreError("create", fmt.Errorf("account %s already exists", account.ID))
	}
	if err := s.writeAccount(account); err != nil {
		return err
	}

	keys := indexKeys(account)
	var claimed []string
	for kind, key := range keys {
		if err := createExclusive(s.indexPath(kind, key), []byte(account.ID)); err != nil {
			s.release(claimed, keys)
			os.Remove(s.accountPath(account.ID))
			if errors.Is(err, errIndexTaken) {
				return err
			}
			return sa.StoreError("create", err)
		}
		claimed = append(claimed, kind)
	}
	return nil
}

func (s *FSAccountStore) release(kinds []string, keys map[string]string) {
	for _, kind := range kinds {
		os.Remove(s.indexPath(kind, keys[kind]))
	}
}

func (s *FSAccountStore) findByIndex(kind, key string) (*sa.Account, error) {
	data, err := os.ReadFile(s.indexPath(kind, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sa.ErrNotFound
		}
		return nil, sa.StoreError("read index", err)
	}
	if len(data) == 0 {
		return nil, sa.StoreError("read index", fmt.Errorf("%s entry is incomplete", kind))
	}
	return s.readAccount(string(data))
}

func (s *FSAccountStore) readAccount(id string) (*sa.Account, error) {
	data, err := os.ReadFile(s.accountPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sa.ErrNotFound
		}
		return nil, sa.StoreError("read account", err)
	}
	var account sa.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, sa.StoreError("decode account", err)
	}
	return &account, nil
}

func (s *FSAccountStore) writeAccount(account *sa.Account) error {
	data, err := json.MarshalIndent(account, "", "  ")
	if err != nil {
		return sa.StoreError("encode account", err)
	}
	if err := writeAtomicFile(s.accountPath(account.ID), data); err != nil {
		return sa.StoreError("write account", err)
	}
	return nil
}

// indexKeys lists the unique keys an account holds, by index kind.
func indexKeys(account *sa.Account) map[string]string {
	keys := map[string]string{}
	if account.Username != "" {
		keys[usernameIndex] = account.Username
	}
	for _, provider := range sa.FederatedProviders() {
		if id := account.ExternalID(provider); id != "" {
			keys[string(provider)] = id
		}
	}
	return keys
}
