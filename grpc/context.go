// Package grpc carries secretauth accounts into gRPC services. Clients send
// the bearer token issued by /api/token in the request metadata; the server
// interceptors resolve it to an account through the session manager.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"

	sa "github.com/panyam/secretauth"
)

// Default metadata keys for authentication context.
const (
	// DefaultMetadataKeyAuthorization carries "Bearer <token>"
	DefaultMetadataKeyAuthorization = "authorization"

	// DefaultMetadataKeyAccountID carries an account id vouched for by a
	// trusted gateway that already authenticated the caller
	DefaultMetadataKeyAccountID = "x-account-id"
)

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKeyAuthorization is the gRPC metadata key for the bearer token.
	// Defaults to "authorization".
	MetadataKeyAuthorization string

	// MetadataKeyAccountID is the gRPC metadata key for a gateway supplied
	// account id. Defaults to "x-account-id".
	MetadataKeyAccountID string

	// TrustAccountID when true accepts MetadataKeyAccountID without a token.
	// Only enable it behind a gateway that strips the key from client requests.
	TrustAccountID bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeyAuthorization: DefaultMetadataKeyAuthorization,
		MetadataKeyAccountID:     DefaultMetadataKeyAccountID,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
	if c.MetadataKeyAccountID == "" {
		c.MetadataKeyAccountID = DefaultMetadataKeyAccountID
	}
}

// BearerTokenFromContext returns the bearer token of the incoming request, or "".
func BearerTokenFromContext(ctx context.Context, config *Config) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, value := range md.Get(config.MetadataKeyAuthorization) {
		if token, ok := strings.CutPrefix(value, "Bearer "); ok && token != "" {
			return token
		}
	}
	return ""
}

// trustedAccountID returns the gateway supplied account id, if trusted.
func trustedAccountID(ctx context.Context, config *Config) string {
	if !config.TrustAccountID {
		return ""
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(config.MetadataKeyAccountID); len(values) > 0 {
		return values[0]
	}
	return ""
}

// BearerTokenToOutgoingContext adds the token to outgoing gRPC context metadata.
func BearerTokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthorization, "Bearer "+token)
}

// AccountIDToOutgoingContext forwards an already authenticated account id,
// for gateways talking to servers with TrustAccountID set.
func AccountIDToOutgoingContext(ctx context.Context, accountID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAccountID, accountID)
}

// AccountFromContext returns the account the interceptors resolved, or nil.
func AccountFromContext(ctx context.Context) *sa.Account {
	return sa.AccountFromContext(ctx)
}

// IsAuthenticated returns true if the interceptors resolved an account.
func IsAuthenticated(ctx context.Context) bool {
	return AccountFromContext(ctx) != nil
}
