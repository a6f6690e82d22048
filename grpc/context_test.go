package grpc

import (
	"context"
	"testing"

	"google.golang.org/grpc/metadata"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.MetadataKeyAuthorization != DefaultMetadataKeyAuthorization {
		t.Errorf("expected MetadataKeyAuthorization %q, got %q", DefaultMetadataKeyAuthorization, config.MetadataKeyAuthorization)
	}
	if config.MetadataKeyAccountID != DefaultMetadataKeyAccountID {
		t.Errorf("expected MetadataKeyAccountID %q, got %q", DefaultMetadataKeyAccountID, config.MetadataKeyAccountID)
	}
	if config.TrustAccountID {
		t.Error("expected TrustAccountID to be false by default")
	}
}

func TestEnsureDefaults(t *testing.T) {
	config := &Config{}
	config.EnsureDefaults()
	if config.MetadataKeyAuthorization != DefaultMetadataKeyAuthorization {
		t.Errorf("expected MetadataKeyAuthorization %q, got %q", DefaultMetadataKeyAuthorization, config.MetadataKeyAuthorization)
	}
	if config.MetadataKeyAccountID != DefaultMetadataKeyAccountID {
		t.Errorf("expected MetadataKeyAccountID %q, got %q", DefaultMetadataKeyAccountID, config.MetadataKeyAccountID)
	}
}

func TestBearerTokenFromContext(t *testing.T) {
	config := DefaultConfig()

	if token := BearerTokenFromContext(context.Background(), config); token != "" {
		t.Errorf("expected empty token without metadata, got %q", token)
	}

	md := metadata.Pairs("authorization", "Basic abc", "authorization", "Bearer tok123")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	if token := BearerTokenFromContext(ctx, config); token != "tok123" {
		t.Errorf("expected tok123, got %q", token)
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "))
	if token := BearerTokenFromContext(ctx, config); token != "" {
		t.Errorf("expected empty bearer to be ignored, got %q", token)
	}
}

func TestOutgoingContextRoundTrip(t *testing.T) {
	ctx := BearerTokenToOutgoingContext(context.Background(), "tok123")
	ctx = AccountIDToOutgoingContext(ctx, "acct-1")

	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata")
	}
	incoming := metadata.NewIncomingContext(context.Background(), md)

	config := DefaultConfig()
	if token := BearerTokenFromContext(incoming, config); token != "tok123" {
		t.Errorf("expected tok123, got %q", token)
	}
	if id := trustedAccountID(incoming, config); id != "" {
		t.Errorf("expected untrusted account id to be ignored, got %q", id)
	}
	config.TrustAccountID = true
	if id := trustedAccountID(incoming, config); id != "acct-1" {
		t.Errorf("expected acct-1, got %q", id)
	}
}

func TestIsAuthenticated_NoAccount(t *testing.T) {
	if IsAuthenticated(context.Background()) {
		t.Error("expected not authenticated")
	}
	if AccountFromContext(context.Background()) != nil {
		t.Error("expected nil account")
	}
}
