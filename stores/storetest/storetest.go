// Package storetest holds the behaviour every sa.AccountStore backend must
// share. Backends call Run from their own tests.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sa "github.com/panyam/secretauth"
)

// Run exercises a store created fresh for every subtest by newStore.
func Run(t *testing.T, newStore func(t *testing.T) sa.AccountStore) {
	t.Run("create assigns id and finds by username", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		account := &sa.Account{Username: "alice", Salt: "00ff", PasswordHash: "abcd"}
		require.NoError(t, store.Create(ctx, account))
		require.NotEmpty(t, account.ID)

		found, err := store.FindByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, account.ID, found.ID)
		assert.Equal(t, "abcd", found.PasswordHash)
		assert.Equal(t, "00ff", found.Salt)

		byID, err := store.FindByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", byID.Username)
	})

	t.Run("duplicate username is rejected", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Create(ctx, &sa.Account{Username: "alice", PasswordHash: "h1"}))
		err := store.Create(ctx, &sa.Account{Username: "alice", PasswordHash: "h2"})
		assert.ErrorIs(t, err, sa.ErrDuplicateUsername)

		found, err := store.FindByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "h1", found.PasswordHash)
	})

	t.Run("misses return not found", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.FindByID(ctx, "nope")
		assert.ErrorIs(t, err, sa.ErrNotFound)
		_, err = store.FindByUsername(ctx, "nobody")
		assert.ErrorIs(t, err, sa.ErrNotFound)
		_, err = store.FindByID(ctx, "")
		assert.ErrorIs(t, err, sa.ErrNotFound)
		assert.ErrorIs(t, store.Save(ctx, &sa.Account{ID: "nope", Secret: "x"}), sa.ErrNotFound)
	})

	t.Run("upsert creates once then returns the same account", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		first, created, err := store.UpsertByExternalID(ctx, sa.ProviderGoogle, "g-42", nil)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "g-42", first.GoogleID)
		assert.Empty(t, first.Username)
		assert.Empty(t, first.FacebookID)
		assert.Empty(t, first.RedditID)

		second, created, err := store.UpsertByExternalID(ctx, sa.ProviderGoogle, "g-42", nil)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)

		// same external id under another provider is a different account
		other, created, err := store.UpsertByExternalID(ctx, sa.ProviderFacebook, "g-42", nil)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, first.ID, other.ID)
	})

	t.Run("upsert does not touch existing accounts", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		first, _, err := store.UpsertByExternalID(ctx, sa.ProviderReddit, "r-1", nil)
		require.NoError(t, err)
		first.Secret = "kept"
		require.NoError(t, store.Save(ctx, first))

		again, created, err := store.UpsertByExternalID(ctx, sa.ProviderReddit, "r-1", &sa.Account{Secret: "overwritten"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "kept", again.Secret)
	})

	t.Run("concurrent upserts produce one account", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		const callers = 16
		ids := make([]string, callers)
		createdCount := 0
		var mu sync.Mutex
		var wg sync.WaitGroup
		for i := range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				account, created, err := store.UpsertByExternalID(ctx, sa.ProviderGoogle, "g-42", nil)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				ids[i] = account.ID
				if created {
					createdCount++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, createdCount)
		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})

	t.Run("save and list secrets", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		alice := &sa.Account{Username: "alice", PasswordHash: "h"}
		require.NoError(t, store.Create(ctx, alice))
		bob, _, err := store.UpsertByExternalID(ctx, sa.ProviderFacebook, "fb-1", nil)
		require.NoError(t, err)

		list, err := store.ListWithSecrets(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)

		bob.Secret = "I like pineapple on pizza"
		require.NoError(t, store.Save(ctx, bob))

		list, err = store.ListWithSecrets(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, bob.ID, list[0].ID)
		assert.Equal(t, "fb-1", list[0].FacebookID)

		bob.Secret = ""
		require.NoError(t, store.Save(ctx, bob))
		list, err = store.ListWithSecrets(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)

		// clearing the secret keeps the account
		_, err = store.FindByID(ctx, bob.ID)
		assert.NoError(t, err)
	})

	t.Run("save enforces username uniqueness", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Create(ctx, &sa.Account{Username: "alice", PasswordHash: "h"}))
		bob := &sa.Account{Username: "bob", PasswordHash: "h"}
		require.NoError(t, store.Create(ctx, bob))

		bob.Username = "alice"
		assert.ErrorIs(t, store.Save(ctx, bob), sa.ErrDuplicateUsername)

		bob.Username = "robert"
		require.NoError(t, store.Save(ctx, bob))
		found, err := store.FindByUsername(ctx, "robert")
		require.NoError(t, err)
		assert.Equal(t, bob.ID, found.ID)
		_, err = store.FindByUsername(ctx, "bob")
		assert.ErrorIs(t, err, sa.ErrNotFound)
	})

	t.Run("provider ids stay unique across create and save", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		owner, _, err := store.UpsertByExternalID(ctx, sa.ProviderGoogle, "g-1", nil)
		require.NoError(t, err)
		bob := &sa.Account{Username: "bob", PasswordHash: "h"}
		require.NoError(t, store.Create(ctx, bob))

		bob.GoogleID = "g-1"
		assert.Error(t, store.Save(ctx, bob))
		assert.Error(t, store.Create(ctx, &sa.Account{GoogleID: "g-1"}))

		found, created, err := store.UpsertByExternalID(ctx, sa.ProviderGoogle, "g-1", nil)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, owner.ID, found.ID)

		bob.GoogleID = "g-2"
		require.NoError(t, store.Save(ctx, bob))
		found, created, err = store.UpsertByExternalID(ctx, sa.ProviderGoogle, "g-2", nil)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, bob.ID, found.ID)
	})
}
