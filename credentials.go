package secretauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Credentials represents a submitted username/password pair
type Credentials struct {
	Username string
	Password string
}

// Validate checks that both fields were supplied
func (c *Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("%w: username", ErrMissingField)
	}
	if c.Password == "" {
		return fmt.Errorf("%w: password", ErrMissingField)
	}
	return nil
}

// PasswordHasher derives and checks one-way password hashes.
type PasswordHasher interface {
	// Hash generates a fresh random salt and hashes password under it.
	// Schemes that embed the salt in the hash may return an empty salt.
	Hash(password string) (salt, hash []byte, err error)

	// Verify recomputes the hash under salt and compares in constant time.
	Verify(password string, salt, hash []byte) bool
}

// Argon2Hasher hashes with argon2id and a random per-account salt.
type Argon2Hasher struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

// NewArgon2Hasher returns a hasher with the RFC 9106 second recommended profile.
func NewArgon2Hasher() *Argon2Hasher {
	h := Argon2Hasher{}.withDefaults()
	return &h
}

// withDefaults returns a copy with unset parameters filled in; h itself is
// shared between requests and never written.
func (h Argon2Hasher) withDefaults() Argon2Hasher {
	if h.Time == 0 {
		h.Time = 3
	}
	if h.Memory == 0 {
		h.Memory = 64 * 1024
	}
	if h.Threads == 0 {
		h.Threads = 4
	}
	if h.KeyLen == 0 {
		h.KeyLen = 32
	}
	if h.SaltLen == 0 {
		h.SaltLen = 32
	}
	return h
}

func (h *Argon2Hasher) Hash(password string) ([]byte, []byte, error) {
	p := h.withDefaults()
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen), nil
}

func (h *Argon2Hasher) Verify(password string, salt, hash []byte) bool {
	p := h.withDefaults()
	computed := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(computed, hash) == 1
}

// BcryptHasher hashes with bcrypt. The salt lives inside the hash, so Hash
// returns an empty salt and Verify ignores it.
type BcryptHasher struct {
	Cost int
}

func (h *BcryptHasher) Hash(password string) ([]byte, []byte, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return nil, hash, nil
}

func (h *BcryptHasher) Verify(password string, _, hash []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// CredentialVerifier registers local accounts and checks their passwords.
type CredentialVerifier struct {
	Store  AccountStore
	Hasher PasswordHasher
	Logger *slog.Logger

	dummyOnce sync.Once
	dummySalt []byte
	dummyHash []byte
}

func NewCredentialVerifier(store AccountStore, hasher PasswordHasher) *CredentialVerifier {
	if hasher == nil {
		hasher = NewArgon2Hasher()
	}
	return &CredentialVerifier{Store: store, Hasher: hasher}
}

func (v *CredentialVerifier) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.Default()
}

// Register creates a new account with only the local facet populated.
func (v *CredentialVerifier) Register(ctx context.Context, username, password string) (*Account, error) {
	creds := Credentials{Username: username, Password: password}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	// Cheap early exit; the store's unique constraint is still authoritative.
	if _, err := v.Store.FindByUsername(ctx, username); err == nil {
		return nil, ErrDuplicateUsername
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	salt, hash, err := v.Hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	account := &Account{
		Username:     username,
		Salt:         hex.EncodeToString(salt),
		PasswordHash: hex.EncodeToString(hash),
	}
	if err := v.Store.Create(ctx, account); err != nil {
		return nil, err
	}

	v.logger().Info("registered local account", "accountId", account.ID)
	return account, nil
}

// Verify returns the account for username if password matches.
//
// Both failure paths perform one hash computation so an unknown username and
// a wrong password take the same time.
func (v *CredentialVerifier) Verify(ctx context.Context, username, password string) (*Account, error) {
	account, err := v.Store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			v.burnHash(password)
		}
		return nil, err
	}

	salt, saltErr := hex.DecodeString(account.Salt)
	hash, hashErr := hex.DecodeString(account.PasswordHash)
	if !account.HasLocalCredential() || saltErr != nil || hashErr != nil {
		v.burnHash(password)
		return nil, ErrInvalidCredential
	}
	if !v.Hasher.Verify(password, salt, hash) {
		return nil, ErrInvalidCredential
	}
	return account, nil
}

func (v *CredentialVerifier) burnHash(password string) {
	v.dummyOnce.Do(func() {
		var err error
		v.dummySalt, v.dummyHash, err = v.Hasher.Hash("not-a-real-password")
		if err != nil {
			v.logger().Warn("failed to prepare dummy hash", "err", err)
		}
	})
	v.Hasher.Verify(password, v.dummySalt, v.dummyHash)
}
