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

	sqliteadapter "github.com/ericfisherdev/storepanel/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/storepanel/internal/adapter/driven/storefront"
	httphandler "github.com/ericfisherdev/storepanel/internal/adapter/driving/http"
	webhandler "github.com/ericfisherdev/storepanel/internal/adapter/driving/web"
	"github.com/ericfisherdev/storepanel/internal/application"
	"github.com/ericfisherdev/storepanel/internal/config"
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
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"api_base_url", cfg.APIBaseURL,
		"revalidate_interval", cfg.RevalidateInterval,
	)
	if !cfg.HasSecretKey() {
		slog.Warn("STOREPANEL_SECRET_KEY not set, sessions cannot be persisted and login is disabled")
	}

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", db.Path())

	// 4. Run migrations on writer connection.
	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		return err
	}
	slog.Info("migrations complete", "version", version)

	// 5. Wire driven adapters.
	credentialStore := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey())
	client, err := storefront.NewClient(cfg.APIBaseURL, cfg.RequestTimeout, logger)
	if err != nil {
		return err
	}

	// 6. Create the session store and restore any persisted session.
	session := application.NewSessionStore(client, credentialStore, logger)
	unsubscribe := session.Subscribe(func(s application.Session) {
		if s.Authenticated() {
			slog.Info("session state changed", "authenticated", true, "user_id", s.Identity.ID, "role", s.Identity.Role)
			return
		}
		slog.Info("session state changed", "authenticated", false)
	})
	defer unsubscribe()
	session.Initialize(ctx)

	// 7. Start background revalidation.
	revalidator := application.NewSessionRevalidator(session, cfg.RevalidateInterval, logger)
	go revalidator.Start(ctx)

	// 8. Create application services.
	adminConsole := application.NewAdminConsole(session, client, logger)
	dashboard := application.NewCustomerDashboard(session, client, logger)
	catalog := application.NewCatalog(client)
	healthSvc := application.NewHealthService(db, session)

	// 9. Register JSON API and web GUI routes.
	mux := http.NewServeMux()
	apiHandler := httphandler.NewHandler(session, revalidator, adminConsole, dashboard, healthSvc, logger)
	httphandler.RegisterRoutes(mux, apiHandler)

	webHandler := webhandler.NewHandler(session, catalog, adminConsole, dashboard, logger)
	webhandler.RegisterRoutes(mux, webHandler)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.Wrap(mux, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("storepanel started",
		"listen_addr", cfg.ListenAddr,
		"authenticated", session.Current().Authenticated(),
	)

	// 10. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 11. Graceful shutdown with 10s timeout to drain in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// newLogger builds the process logger from the configured level and format.
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
