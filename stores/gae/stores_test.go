//go:build !wasm
// +build !wasm

package gae_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"

	sa "github.com/panyam/secretauth"
	"github.com/panyam/secretauth/stores/gae"
	"github.com/panyam/secretauth/stores/storetest"
)

// newEmulatorStore talks to the datastore emulator named by
// DATASTORE_EMULATOR_HOST, each test in its own namespace.
func newEmulatorStore(t *testing.T) *gae.AccountStore {
	if os.Getenv("DATASTORE_EMULATOR_HOST") == "" {
		t.Skip("DATASTORE_EMULATOR_HOST not set")
	}
	client, err := datastore.NewClient(context.Background(), "secretauth-test")
	if err != nil {
		t.Fatalf("Failed to create datastore client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return gae.NewAccountStore(client, "test-"+uuid.NewString())
}

func TestGAEAccountStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) sa.AccountStore {
		return newEmulatorStore(t)
	})
}

func TestGAEUpsertIsAtomic(t *testing.T) {
	store := newEmulatorStore(t)
	ctx := context.Background()

	const callers = 8
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			account, _, err := store.UpsertByExternalID(ctx, sa.ProviderGoogle, "g-42", nil)
			if err != nil {
				t.Errorf("Upsert failed: %v", err)
				return
			}
			ids[i] = account.ID
		}()
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("Expected one account, got ids %v", ids)
		}
	}
}

func TestGAEUsernameUniqueness(t *testing.T) {
	store := newEmulatorStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, &sa.Account{Username: "alice", PasswordHash: "h"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	err := store.Create(ctx, &sa.Account{Username: "alice", PasswordHash: "h2"})
	if !errors.Is(err, sa.ErrDuplicateUsername) {
		t.Fatalf("Expected ErrDuplicateUsername, got %v", err)
	}

	found, err := store.FindByUsername(ctx, "alice")
	if err != nil || found.PasswordHash != "h" {
		t.Fatalf("Expected original alice, got %+v, %v", found, err)
	}

	found.Secret = "pineapple on pizza"
	if err := store.Save(ctx, found); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	secrets, err := store.ListWithSecrets(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(secrets) != 1 || secrets[0].ID != found.ID {
		t.Errorf("Expected alice's secret, got %+v", secrets)
	}
}
