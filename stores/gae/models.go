//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"
	sa "github.com/panyam/secretauth"
)

// Kind constants for Datastore entities
const (
	KindAccount    = "Account"
	KindUsername   = "Username"
	KindExternalID = "ExternalID"
)

// AccountEntity is the Datastore entity for accounts.
// Key name is the account id.
type AccountEntity struct {
	Key          *datastore.Key `datastore:"__key__"`
	Username     string         `datastore:"username"`
	Salt         string         `datastore:"salt,noindex"`
	PasswordHash string         `datastore:"password_hash,noindex"`
	GoogleID     string         `datastore:"google_id"`
	FacebookID   string         `datastore:"facebook_id"`
	RedditID     string         `datastore:"reddit_id"`
	Secret       string         `datastore:"secret,noindex"` // may exceed the indexed size limit
	HasSecret    bool           `datastore:"has_secret"`
	CreatedAt    time.Time      `datastore:"created_at"`
	UpdatedAt    time.Time      `datastore:"updated_at"`
}

func (e *AccountEntity) ToAccount() *sa.Account {
	return &sa.Account{
		ID:           e.Key.Name,
		Username:     e.Username,
		Salt:         e.Salt,
		PasswordHash: e.PasswordHash,
		GoogleID:     e.GoogleID,
		FacebookID:   e.FacebookID,
		RedditID:     e.RedditID,
		Secret:       e.Secret,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func AccountToEntity(a *sa.Account, key *datastore.Key) *AccountEntity {
	return &AccountEntity{
		Key:          key,
		Username:     a.Username,
		Salt:         a.Salt,
		PasswordHash: a.PasswordHash,
		GoogleID:     a.GoogleID,
		FacebookID:   a.FacebookID,
		RedditID:     a.RedditID,
		Secret:       a.Secret,
		HasSecret:    a.Secret != "",
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

// IndexEntity maps a unique key (a username, or provider + external id) to
// the account holding it.
type IndexEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	AccountID string         `datastore:"account_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}
