package grpc

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	sa "github.com/panyam/secretauth"
)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// Verifies bearer tokens. Required unless only trusted ids are used.
	Tokens *sa.TokenIssuer

	// Resolves account ids to accounts.
	Sessions *sa.SessionManager

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but AccountFromContext returns nil.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Only used when RequireAuth is true.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// DefaultInterceptorConfig returns a config that requires auth for all methods.
func DefaultInterceptorConfig(tokens *sa.TokenIssuer, sessions *sa.SessionManager) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		Tokens:        tokens,
		Sessions:      sessions,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// WithPublicMethods marks methods that may be called anonymously.
func (c *InterceptorConfig) WithPublicMethods(publicMethods ...string) *InterceptorConfig {
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
	for _, method := range publicMethods {
		c.PublicMethods[method] = true
	}
	return c
}

func (c *InterceptorConfig) ensureDefaults() *InterceptorConfig {
	if c == nil {
		c = DefaultInterceptorConfig(nil, nil)
	}
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	return c
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that places the
// caller's account in the handler's context.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config = config.ensureDefaults()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns a gRPC stream interceptor that places the
// caller's account in the stream's context.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config = config.ensureDefaults()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: ctx})
	}
}

func (c *InterceptorConfig) authenticate(ctx context.Context, method string) (context.Context, error) {
	account := c.resolveAccount(ctx)
	if account != nil {
		return sa.WithAccount(ctx, account), nil
	}
	if c.RequireAuth && !c.PublicMethods[method] {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	return ctx, nil
}

// resolveAccount tries the bearer token and then a trusted account id. Any
// failure is treated as anonymous.
func (c *InterceptorConfig) resolveAccount(ctx context.Context) *sa.Account {
	accountID := ""
	if token := BearerTokenFromContext(ctx, c.Config); token != "" && c.Tokens != nil {
		id, err := c.Tokens.Verify(token)
		if err != nil {
			slog.Info("rejecting bearer token", "err", err)
		} else {
			accountID = id
		}
	}
	if accountID == "" {
		accountID = trustedAccountID(ctx, c.Config)
	}
	if accountID == "" || c.Sessions == nil {
		return nil
	}
	account, err := c.Sessions.DeserializeToken(ctx, accountID)
	if err != nil {
		return nil
	}
	return account
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context {
	return s.ctx
}
