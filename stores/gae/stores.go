//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	sa "github.com/panyam/secretauth"
)

var errExternalIDTaken = errors.New("external id bound to another account")

// AccountStore implements sa.AccountStore using Google Cloud Datastore
type AccountStore struct {
	client    *datastore.Client
	namespace string
}

// NewAccountStore creates a new Datastore-backed AccountStore
func NewAccountStore(client *datastore.Client, namespace string) *AccountStore {
	return &AccountStore{
		client:    client,
		namespace: namespace,
	}
}

// AtomicUpsert is true: the index entity and the account are written in one
// transaction, and a conflicting transaction rereads the index on retry.
func (s *AccountStore) AtomicUpsert() bool { return true }

func (s *AccountStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *AccountStore) externalKey(provider sa.Provider, externalID string) *datastore.Key {
	return s.namespacedKey(KindExternalID, string(provider)+":"+externalID)
}

func (s *AccountStore) FindByID(ctx context.Context, id string) (*sa.Account, error) {
	if id == "" {
		return nil, sa.ErrNotFound
	}
	var entity AccountEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindAccount, id), &entity); err != nil {
		return nil, mapError("get account", err)
	}
	return entity.ToAccount(), nil
}

func (s *AccountStore) FindByUsername(ctx context.Context, username string) (*sa.Account, error) {
	if username == "" {
		return nil, sa.ErrNotFound
	}
	var index IndexEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindUsername, username), &index); err != nil {
		return nil, mapError("get username", err)
	}
	return s.FindByID(ctx, index.AccountID)
}

func (s *AccountStore) UpsertByExternalID(ctx context.Context, provider sa.Provider, externalID string, defaults *sa.Account) (*sa.Account, bool, error) {
	if externalID == "" {
		return nil, false, fmt.Errorf("%w: external id", sa.ErrMissingField)
	}
	if (&sa.Account{}).SetExternalID(provider, externalID) != nil {
		return nil, false, sa.ErrUnknownProvider
	}

	indexKey := s.externalKey(provider, externalID)
	var out *sa.Account
	var created bool
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		out, created = nil, false

		var index IndexEntity
		err := tx.Get(indexKey, &index)
		if err == nil {
			var entity AccountEntity
			if err := tx.Get(s.namespacedKey(KindAccount, index.AccountID), &entity); err != nil {
				return err
			}
			out = entity.ToAccount()
			return nil
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}

		account := defaults.Clone()
		if account == nil {
			account = &sa.Account{}
		}
		account.ID = uuid.NewString()
		account.SetExternalID(provider, externalID)
		now := time.Now()
		account.CreatedAt, account.UpdatedAt = now, now

		accountKey := s.namespacedKey(KindAccount, account.ID)
		if _, err := tx.Put(accountKey, AccountToEntity(account, accountKey)); err != nil {
			return err
		}
		if _, err := tx.Put(indexKey, &IndexEntity{AccountID: account.ID, CreatedAt: now}); err != nil {
			return err
		}
		out, created = account, true
		return nil
	})
	if err != nil {
		return nil, false, mapError("upsert", err)
	}
	return out, created, nil
}

func (s *AccountStore) Create(ctx context.Context, account *sa.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := time.Now()
	account.CreatedAt, account.UpdatedAt = now, now

	accountKey := s.namespacedKey(KindAccount, account.ID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		if err := s.claimIndexes(tx, &sa.Account{}, account, now); err != nil {
			return err
		}
		_, err := tx.Put(accountKey, AccountToEntity(account, accountKey))
		return err
	})
	if err != nil {
		return mapError("create", err)
	}
	return nil
}

func (s *AccountStore) Save(ctx context.Context, account *sa.Account) error {
	accountKey := s.namespacedKey(KindAccount, account.ID)
	now := time.Now()
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var current AccountEntity
		if err := tx.Get(accountKey, &current); err != nil {
			return err
		}
		if err := s.claimIndexes(tx, current.ToAccount(), account, now); err != nil {
			return err
		}
		account.CreatedAt = current.CreatedAt
		account.UpdatedAt = now
		_, err := tx.Put(accountKey, AccountToEntity(account, accountKey))
		return err
	})
	if err != nil {
		return mapError("save", err)
	}
	return nil
}

// claimIndexes moves the username and provider index entries from old's keys
// to next's, failing if any new key belongs to another account.
func (s *AccountStore) claimIndexes(tx *datastore.Transaction, old, next *sa.Account, now time.Time) error {
	type change struct {
		oldKey, newKey *datastore.Key
		taken          error
	}
	var changes []change
	if old.Username != next.Username {
		c := change{taken: sa.ErrDuplicateUsername}
		if old.Username != "" {
			c.oldKey = s.namespacedKey(KindUsername, old.Username)
		}
		if next.Username != "" {
			c.newKey = s.namespacedKey(KindUsername, next.Username)
		}
		changes = append(changes, c)
	}
	for _, provider := range sa.FederatedProviders() {
		oldID, newID := old.ExternalID(provider), next.ExternalID(provider)
		if oldID == newID {
			continue
		}
		c := change{taken: fmt.Errorf("%w: %s", errExternalIDTaken, provider)}
		if oldID != "" {
			c.oldKey = s.externalKey(provider, oldID)
		}
		if newID != "" {
			c.newKey = s.externalKey(provider, newID)
		}
		changes = append(changes, c)
	}

	for _, c := range changes {
		if c.newKey != nil {
			if err := claimIndex(tx, c.newKey, next.ID, now, c.taken); err != nil {
				return err
			}
		}
		if c.oldKey != nil {
			if err := tx.Delete(c.oldKey); err != nil {
				return err
			}
		}
	}
	return nil
}

func claimIndex(tx *datastore.Transaction, key *datastore.Key, accountID string, now time.Time, taken error) error {
	var existing IndexEntity
	err := tx.Get(key, &existing)
	if err == nil {
		if existing.AccountID == accountID {
			return nil
		}
		return taken
	}
	if !errors.Is(err, datastore.ErrNoSuchEntity) {
		return err
	}
	_, err = tx.Put(key, &IndexEntity{AccountID: accountID, CreatedAt: now})
	return err
}

func (s *AccountStore) ListWithSecrets(ctx context.Context) ([]*sa.Account, error) {
	query := datastore.NewQuery(KindAccount).
		Namespace(s.namespace).
		FilterField("has_secret", "=", true)

	accounts := []*sa.Account{}
	it := s.client.Run(ctx, query)
	for {
		var entity AccountEntity
		_, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapError("list", err)
		}
		accounts = append(accounts, entity.ToAccount())
	}
	return accounts, nil
}

func mapError(op string, err error) error {
	switch {
	case errors.Is(err, datastore.ErrNoSuchEntity):
		return sa.ErrNotFound
	case errors.Is(err, sa.ErrDuplicateUsername):
		return err
	}
	return sa.StoreError(op, err)
}
