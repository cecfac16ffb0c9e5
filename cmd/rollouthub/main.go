package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/ericfisherdev/rollouthub/internal/adapter/driven/github"
	sqliteadapter "github.com/ericfisherdev/rollouthub/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/rollouthub/internal/adapter/driving/http"
	"github.com/ericfisherdev/rollouthub/internal/application"
	"github.com/ericfisherdev/rollouthub/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"env", cfg.Environment,
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"dispatch_target", cfg.DispatchOwner+"/"+cfg.DispatchRepo,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the audit database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on the writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Resolve the signing secret. Config validation already rejected a
	// missing secret in production; in development a fresh one is generated
	// per process, which invalidates sessions across restarts.
	signingSecret := cfg.SigningSecret
	if signingSecret == "" {
		signingSecret, err = application.GenerateSigningSecret(config.MinSigningSecretLen)
		if err != nil {
			return err
		}
		slog.Warn("ROLLOUTHUB_SIGNING_SECRET not set, generated a transient development secret; sessions will not survive restarts")
	}

	// 6. Wire adapters.
	ghClient := githubadapter.NewClient(cfg.GitHubToken, cfg.DispatchOwner, cfg.DispatchRepo)
	auditRepo := sqliteadapter.NewAuditRepo(db)

	// 7. Wire application services.
	logger := slog.Default()
	sessionSvc := application.NewSessionService(signingSecret, cfg.SessionTTL, logger)
	identitySvc := application.NewIdentityService(ghClient, cfg.AdminHandles, cfg.ExternalTimeout, logger)
	authzSvc := application.NewAuthzService(cfg.AllowedOrgs, auditRepo, logger)
	readinessSvc := application.NewReadinessService(ghClient, cfg.ReadinessConcurrency, cfg.ExternalTimeout, logger)
	approvalSvc := application.NewApprovalService(readinessSvc, ghClient, auditRepo, cfg.DispatchEventType, cfg.ExternalTimeout, logger)
	adoptionSvc := application.NewAdoptionService(ghClient, cfg.ReadinessConcurrency, cfg.ExternalTimeout, logger)

	identityLimiter := application.NewRateLimiter(cfg.RateWindow, cfg.IdentityRateLimit)
	globalLimiter := application.NewRateLimiter(cfg.RateWindow, cfg.GlobalRateLimit)

	// 8. Create the HTTP handler and middleware chain.
	apiHandler := httphandler.NewHandler(
		identitySvc, sessionSvc, authzSvc, readinessSvc, approvalSvc, adoptionSvc,
		identityLimiter, globalLimiter,
		cfg.IsProduction(),
		logger,
	)
	handler := httphandler.NewServeMux(apiHandler, logger, cfg.AllowedOrigin)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("rollouthub started",
		"listen_addr", cfg.ListenAddr,
		"dispatch_event_type", cfg.DispatchEventType,
		"allowed_orgs", cfg.AllowedOrgs,
	)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with 10s timeout to drain in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
