package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/stacklio/inventory-agent/internal/api"
	"github.com/stacklio/inventory-agent/internal/auth"
	"github.com/stacklio/inventory-agent/internal/config"
	"github.com/stacklio/inventory-agent/internal/reconcile"
	"github.com/stacklio/inventory-agent/internal/secrets"
	"github.com/stacklio/inventory-agent/internal/stackl"
	sqlstore "github.com/stacklio/inventory-agent/internal/storage/sql"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Create data directory if needed (for SQLite)
	if cfg.Database.Driver == "sqlite3" {
		if err := os.MkdirAll("data", 0755); err != nil {
			logger.Fatal("failed to create data directory", zap.Error(err))
		}
	}

	store, err := sqlstore.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stackl client (or file shim for testing)
	var client stackl.Client
	if cfg.UseFileShim() {
		logger.Info("using file shim for stackl API", zap.String("path", cfg.Stackl.FileShim))
		client = stackl.NewFileShim(cfg.Stackl.FileShim)
	} else if cfg.Stackl.UseOAuth() {
		client = stackl.New(cfg.Stackl.Host, stackl.WithOAuth(ctx, clientcredentials.Config{
			TokenURL:     cfg.Stackl.OAuthTokenURL,
			ClientID:     cfg.Stackl.OAuthClientID,
			ClientSecret: cfg.Stackl.OAuthClientSecret,
		}))
	} else {
		client = stackl.New(cfg.Stackl.Host)
	}

	resolver, err := secrets.New(cfg.Secrets.ResolverOptions())
	if err != nil {
		logger.Fatal("failed to initialize secret handler", zap.Error(err))
	}
	logger.Info("secret handler configured", zap.String("backend", resolver.Name()))

	engine := reconcile.NewEngine(client, resolver, store, logger)

	var verifier *auth.OIDCVerifier
	if cfg.Auth.OIDCEnabled {
		verifier, err = auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuerURL, cfg.Auth.OIDCClientID)
		if err != nil {
			logger.Fatal("failed to initialize OIDC verifier", zap.Error(err))
		}
	}

	router := api.NewRouter(store, engine, cfg.Auth.BootstrapAPIKey, verifier, logger)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // reconciliation passes resolve secrets over the network
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting inventory agent", zap.String("addr", cfg.Server.Addr()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
