package secretauth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default bearer token lifetime
const TokenExpiryBearer = 1 * time.Hour

// GenerateSecureToken generates a cryptographically secure random token
func GenerateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// TokenIssuer signs HS256 bearer tokens for API and gRPC clients.
// The only account data in a token is its id, carried as the subject.
type TokenIssuer struct {
	SecretKey string
	Issuer    string
	Audience  string
	TTL       time.Duration
}

// EnsureDefaults fills unset fields, reading the key from
// SECRETAUTH_JWT_SECRET_KEY when none was given.
func (t *TokenIssuer) EnsureDefaults() *TokenIssuer {
	if t.SecretKey == "" {
		t.SecretKey = strings.TrimSpace(os.Getenv("SECRETAUTH_JWT_SECRET_KEY"))
	}
	if t.Issuer == "" {
		t.Issuer = "secretauth"
	}
	if t.Audience == "" {
		t.Audience = "api"
	}
	if t.TTL <= 0 {
		t.TTL = TokenExpiryBearer
	}
	return t
}

// Issue returns a signed token whose subject is the account id.
func (t *TokenIssuer) Issue(account *Account) (string, error) {
	t.EnsureDefaults()
	if t.SecretKey == "" {
		return "", fmt.Errorf("jwt secret key not configured")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   account.ID,
		Issuer:    t.Issuer,
		Audience:  jwt.ClaimStrings{t.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.TTL)),
	})
	return token.SignedString([]byte(t.SecretKey))
}

// Verify checks signature, issuer, audience and expiry and returns the
// account id the token refers to.
func (t *TokenIssuer) Verify(tokenString string) (string, error) {
	t.EnsureDefaults()
	if t.SecretKey == "" {
		return "", fmt.Errorf("jwt secret key not configured")
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(t.SecretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.Issuer),
		jwt.WithAudience(t.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("subject not found")
	}
	return claims.Subject, nil
}
