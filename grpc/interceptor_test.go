package grpc

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sa "github.com/panyam/secretauth"
	"github.com/panyam/secretauth/stores/fs"
)

type fixture struct {
	config  *InterceptorConfig
	account *sa.Account
	token   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := fs.NewFSAccountStore(t.TempDir())
	account, _, err := store.UpsertByExternalID(context.Background(), sa.ProviderGoogle, "g-42", nil)
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	tokens := &sa.TokenIssuer{SecretKey: "test-secret-key"}
	token, err := tokens.Issue(account)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return &fixture{
		config:  DefaultInterceptorConfig(tokens, sa.NewSessionManager(nil, store)),
		account: account,
		token:   token,
	}
}

func bearerContext(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
}

func expectUnauthenticated(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error for unauthenticated request")
	}
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected grpc status error, got %v", err)
	}
	if st.Code() != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated code, got %v", st.Code())
	}
}

func TestDefaultInterceptorConfig(t *testing.T) {
	config := DefaultInterceptorConfig(nil, nil)
	if !config.RequireAuth {
		t.Error("expected RequireAuth to be true by default")
	}
	if config.PublicMethods == nil {
		t.Error("expected PublicMethods to be initialized")
	}
	if config.Config == nil {
		t.Error("expected Config to be initialized")
	}

	config.WithPublicMethods("/pkg.Svc/Method1", "/pkg.Svc/Method2")
	if !config.PublicMethods["/pkg.Svc/Method1"] || !config.PublicMethods["/pkg.Svc/Method2"] {
		t.Error("expected methods to be public")
	}
	if config.PublicMethods["/pkg.Svc/Method3"] {
		t.Error("expected Method3 to not be public")
	}
}

func TestUnaryAuthInterceptor_NoToken(t *testing.T) {
	interceptor := UnaryAuthInterceptor(nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		t.Error("handler should not be called")
		return nil, nil
	})
	expectUnauthenticated(t, err)
}

func TestUnaryAuthInterceptor_ValidToken(t *testing.T) {
	f := newFixture(t)
	interceptor := UnaryAuthInterceptor(f.config)
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	handlerCalled := false
	_, err := interceptor(bearerContext(f.token), nil, info, func(ctx context.Context, req any) (any, error) {
		handlerCalled = true
		account := AccountFromContext(ctx)
		if account == nil || account.ID != f.account.ID {
			t.Errorf("expected account %s in context, got %+v", f.account.ID, account)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("handler should have been called")
	}
}

func TestUnaryAuthInterceptor_BadToken(t *testing.T) {
	f := newFixture(t)
	interceptor := UnaryAuthInterceptor(f.config)
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	forged, err := (&sa.TokenIssuer{SecretKey: "someone-elses-key"}).Issue(f.account)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	for _, token := range []string{"garbage", forged} {
		_, err := interceptor(bearerContext(token), nil, info, func(ctx context.Context, req any) (any, error) {
			t.Error("handler should not be called")
			return nil, nil
		})
		expectUnauthenticated(t, err)
	}
}

func TestUnaryAuthInterceptor_UnknownAccount(t *testing.T) {
	f := newFixture(t)
	interceptor := UnaryAuthInterceptor(f.config)
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	// validly signed, but for an account the store has never seen
	token, err := f.config.Tokens.Issue(&sa.Account{ID: "no-such-account"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	_, err = interceptor(bearerContext(token), nil, info, func(ctx context.Context, req any) (any, error) {
		t.Error("handler should not be called")
		return nil, nil
	})
	expectUnauthenticated(t, err)
}

func TestUnaryAuthInterceptor_PublicMethod(t *testing.T) {
	f := newFixture(t)
	interceptor := UnaryAuthInterceptor(f.config.WithPublicMethods("/pkg.Svc/Public"))
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Public"}

	handlerCalled := false
	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		handlerCalled = true
		if IsAuthenticated(ctx) {
			t.Error("expected anonymous context")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("handler should have been called for public method")
	}
}

func TestUnaryAuthInterceptor_TrustedAccountID(t *testing.T) {
	f := newFixture(t)
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(DefaultMetadataKeyAccountID, f.account.ID))

	_, err := UnaryAuthInterceptor(f.config)(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
		t.Error("handler should not be called while the id is untrusted")
		return nil, nil
	})
	expectUnauthenticated(t, err)

	f.config.TrustAccountID = true
	handlerCalled := false
	_, err = UnaryAuthInterceptor(f.config)(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
		handlerCalled = AccountFromContext(ctx) != nil
		return nil, nil
	})
	if err != nil || !handlerCalled {
		t.Errorf("expected trusted account id to authenticate, err=%v", err)
	}
}

func TestUnaryAuthInterceptor_OptionalAuth(t *testing.T) {
	f := newFixture(t)
	f.config.RequireAuth = false
	interceptor := UnaryAuthInterceptor(f.config)
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	handlerCalled := false
	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		handlerCalled = true
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("handler should have been called")
	}
}

// mockServerStream implements grpc.ServerStream for testing
type mockServerStream struct {
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context    { return m.ctx }
func (m *mockServerStream) SetHeader(metadata.MD) error  { return nil }
func (m *mockServerStream) SendHeader(metadata.MD) error { return nil }
func (m *mockServerStream) SetTrailer(metadata.MD)       {}
func (m *mockServerStream) SendMsg(any) error            { return nil }
func (m *mockServerStream) RecvMsg(any) error            { return nil }

func TestStreamAuthInterceptor(t *testing.T) {
	f := newFixture(t)
	interceptor := StreamAuthInterceptor(f.config)
	info := &grpc.StreamServerInfo{FullMethod: "/pkg.Svc/StreamMethod"}

	t.Run("rejects anonymous streams", func(t *testing.T) {
		err := interceptor(nil, &mockServerStream{ctx: context.Background()}, info, func(srv any, stream grpc.ServerStream) error {
			t.Error("handler should not be called")
			return nil
		})
		expectUnauthenticated(t, err)
	})

	t.Run("stream context carries the account", func(t *testing.T) {
		handlerCalled := false
		err := interceptor(nil, &mockServerStream{ctx: bearerContext(f.token)}, info, func(srv any, stream grpc.ServerStream) error {
			handlerCalled = true
			account := AccountFromContext(stream.Context())
			if account == nil || account.ID != f.account.ID {
				t.Errorf("expected account %s on stream, got %+v", f.account.ID, account)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !handlerCalled {
			t.Error("handler should have been called")
		}
	})
}
