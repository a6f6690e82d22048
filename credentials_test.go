package secretauth_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	sa "github.com/panyam/secretauth"
	"github.com/panyam/secretauth/stores/fs"
)

func TestCredentialsValidate(t *testing.T) {
	tests := []struct {
		name  string
		creds sa.Credentials
		field string
	}{
		{"empty username", sa.Credentials{Password: "pw"}, "username"},
		{"blank username", sa.Credentials{Username: "   ", Password: "pw"}, "username"},
		{"empty password", sa.Credentials{Username: "alice"}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if !errors.Is(err, sa.ErrMissingField) {
				t.Fatalf("Expected ErrMissingField, got %v", err)
			}
			if got := sa.NewAuthError(err).Field; got != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, got)
			}
		})
	}

	if err := (&sa.Credentials{Username: "alice", Password: "pw123"}).Validate(); err != nil {
		t.Errorf("Expected valid credentials, got %v", err)
	}
}

func TestRegisterThenVerify(t *testing.T) {
	hashers := map[string]sa.PasswordHasher{
		"argon2id": fastHasher(),
		"bcrypt":   &sa.BcryptHasher{Cost: 4},
	}
	for name, hasher := range hashers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := fs.NewFSAccountStore(t.TempDir())
			verifier := sa.NewCredentialVerifier(store, hasher)

			pairs := []struct{ username, password string }{
				{"alice", "pw123"},
				{"bob", "correct horse battery staple"},
				{"Carol", "ünïcödé"},
			}
			for _, p := range pairs {
				registered, err := verifier.Register(ctx, p.username, p.password)
				if err != nil {
					t.Fatalf("Register(%q) failed: %v", p.username, err)
				}
				if registered.PasswordHash == "" || registered.PasswordHash == p.password {
					t.Errorf("Expected a hashed password, got %q", registered.PasswordHash)
				}
				if registered.GoogleID != "" || registered.FacebookID != "" || registered.RedditID != "" {
					t.Errorf("Expected only the local facet, got %+v", registered)
				}

				verified, err := verifier.Verify(ctx, p.username, p.password)
				if err != nil {
					t.Fatalf("Verify(%q) failed: %v", p.username, err)
				}
				if verified.ID != registered.ID {
					t.Errorf("Expected account %s, got %s", registered.ID, verified.ID)
				}

				_, err = verifier.Verify(ctx, p.username, p.password+"x")
				if !errors.Is(err, sa.ErrInvalidCredential) {
					t.Errorf("Expected ErrInvalidCredential for wrong password, got %v", err)
				}
			}
		})
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	store := fs.NewFSAccountStore(t.TempDir())
	verifier := sa.NewCredentialVerifier(store, fastHasher())

	first, err := verifier.Register(ctx, "alice", "pw123")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := verifier.Register(ctx, "alice", "other"); !errors.Is(err, sa.ErrDuplicateUsername) {
		t.Fatalf("Expected ErrDuplicateUsername, got %v", err)
	}

	// the original credentials still work and the second password does not
	if account, err := verifier.Verify(ctx, "alice", "pw123"); err != nil || account.ID != first.ID {
		t.Errorf("Expected original alice to verify, got %v, %v", account, err)
	}
	if _, err := verifier.Verify(ctx, "alice", "other"); !errors.Is(err, sa.ErrInvalidCredential) {
		t.Errorf("Expected second password to be rejected, got %v", err)
	}
}

func TestVerifyUnknownUsername(t *testing.T) {
	store := fs.NewFSAccountStore(t.TempDir())
	verifier := sa.NewCredentialVerifier(store, fastHasher())

	_, err := verifier.Verify(context.Background(), "nobody", "pw")
	if !errors.Is(err, sa.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if sa.NewAuthError(err).Code != sa.ErrCodeInvalidCreds {
		t.Errorf("Unknown usernames must look like bad passwords to clients")
	}
}

func TestVerifyFederatedOnlyAccount(t *testing.T) {
	ctx := context.Background()
	store := fs.NewFSAccountStore(t.TempDir())
	if err := store.Create(ctx, &sa.Account{Username: "fb-user", FacebookID: "fb-1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	verifier := sa.NewCredentialVerifier(store, fastHasher())
	if _, err := verifier.Verify(ctx, "fb-user", ""); !errors.Is(err, sa.ErrInvalidCredential) {
		t.Errorf("Expected ErrInvalidCredential for account without local facet, got %v", err)
	}
}

func TestArgon2SaltsAreUnique(t *testing.T) {
	h := fastHasher()
	salt1, hash1, err := h.Hash("pw123")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	salt2, hash2, _ := h.Hash("pw123")
	if string(salt1) == string(salt2) || string(hash1) == string(hash2) {
		t.Error("Expected distinct salts and hashes for the same password")
	}
	if !h.Verify("pw123", salt1, hash1) || h.Verify("pw123", salt1, hash2) {
		t.Error("Expected hashes to verify only under their own salt")
	}
}

func TestArgon2HasherConcurrentUse(t *testing.T) {
	// KeyLen and SaltLen left unset
	h := &sa.Argon2Hasher{Time: 1, Memory: 64, Threads: 1}
	salt, hash, err := h.Hash("pw123")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !h.Verify("pw123", salt, hash) {
				t.Error("Expected password to verify")
			}
			if _, _, err := h.Hash("other"); err != nil {
				t.Errorf("Hash failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if h.KeyLen != 0 || h.SaltLen != 0 {
		t.Errorf("Expected the hasher to be left unmodified, got %+v", h)
	}
	if len(salt) != 32 || len(hash) != 32 {
		t.Errorf("Expected default salt and key lengths, got %d and %d", len(salt), len(hash))
	}
}

func TestVerifierConcurrentLogins(t *testing.T) {
	ctx := context.Background()
	store := fs.NewFSAccountStore(t.TempDir())
	verifier := sa.NewCredentialVerifier(store, fastHasher())
	if _, err := verifier.Register(ctx, "alice", "pw123"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			password := "pw123"
			if i%2 == 1 {
				password = "wrong"
			}
			_, err := verifier.Verify(ctx, "alice", password)
			if (err == nil) != (password == "pw123") {
				t.Errorf("Verify(%q) = %v", password, err)
			}
		}()
	}
	wg.Wait()
}
