// Command secrets-server runs the anonymous secrets app: local and federated
// login in front of a store of per-account secrets.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/alexedwards/scs/v2"
	slogGorm "github.com/orandin/slog-gorm"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	sa "github.com/panyam/secretauth"
	authgrpc "github.com/panyam/secretauth/grpc"
	"github.com/panyam/secretauth/oauth2"
	"github.com/panyam/secretauth/stores/fs"
	"github.com/panyam/secretauth/stores/gae"
	gormstore "github.com/panyam/secretauth/stores/gorm"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	session := scs.New()
	session.Lifetime = cfg.SessionLifetime
	session.Cookie.Secure = cfg.SecureCookies
	session.Cookie.SameSite = http.SameSiteLaxMode

	o := sa.NewOrchestrator(store, session)
	o.Logger = logger
	o.Sessions.Logger = logger
	for _, provider := range sa.FederatedProviders() {
		adapter := oauth2.NewAdapter(provider)
		if adapter == nil {
			logger.Info("provider not configured", "provider", provider)
			continue
		}
		o.AddProvider(adapter)
	}

	app := sa.NewSecretsApp(o, store)
	app.Logger = logger
	if cfg.JWTSecretKey != "" {
		app.Tokens = &sa.TokenIssuer{SecretKey: cfg.JWTSecretKey}
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 2)
	go func() {
		logger.Info("http listening", "addr", cfg.Addr, "backend", cfg.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		if grpcServer, err = serveGRPC(cfg.GRPCAddr, app.Tokens, o.Sessions, logger, errs); err != nil {
			return err
		}
	}

	select {
	case err = <-errs:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if serr := server.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}

// serveGRPC exposes the health service behind the auth interceptors. Health
// checks stay public; everything registered later requires a bearer token.
func serveGRPC(addr string, tokens *sa.TokenIssuer, sessions *sa.SessionManager, logger *slog.Logger, errs chan<- error) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen: %w", err)
	}
	authConfig := authgrpc.DefaultInterceptorConfig(tokens, sessions).
		WithPublicMethods(healthpb.Health_Check_FullMethodName, healthpb.Health_Watch_FullMethodName)
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(authgrpc.UnaryAuthInterceptor(authConfig)),
		grpc.ChainStreamInterceptor(authgrpc.StreamAuthInterceptor(authConfig)),
	)
	healthpb.RegisterHealthServer(server, health.NewServer())
	go func() {
		logger.Info("grpc listening", "addr", addr)
		if err := server.Serve(lis); err != nil {
			errs <- err
		}
	}()
	return server, nil
}

func openStore(ctx context.Context, cfg *Config, logger *slog.Logger) (sa.AccountStore, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case BackendFS:
		return fs.NewFSAccountStore(cfg.StoragePath), noop, nil
	case BackendSQLite, BackendPostgres:
		dialector := postgres.Open(cfg.DatabaseURL)
		if cfg.Backend == BackendSQLite {
			dialector = sqlite.Open(cfg.DatabaseURL)
		}
		db, err := gorm.Open(dialector, &gorm.Config{
			Logger: slogGorm.New(
				slogGorm.WithHandler(logger.Handler()),
				slogGorm.WithSlowThreshold(500*time.Millisecond),
			).LogMode(gormlogger.Warn),
			TranslateError: true,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", cfg.Backend, err)
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		if cfg.Backend == BackendSQLite {
			// sqlite allows a single writer
			sqlDB.SetMaxOpenConns(1)
		}
		return gormstore.NewAccountStore(db), func() { sqlDB.Close() }, nil
	case BackendDatastore:
		client, err := datastore.NewClient(ctx, cfg.DatastoreProject)
		if err != nil {
			return nil, nil, fmt.Errorf("datastore client: %w", err)
		}
		return gae.NewAccountStore(client, cfg.DatastoreNamespace), func() { client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
