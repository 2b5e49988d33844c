// dplaned is the storage appliance management daemon. It exposes the HTTP
// API, brokers whitelisted system commands and maintains the audit chain.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dplaneos/dplaned/internal/app"
	"github.com/dplaneos/dplaned/internal/audit"
	"github.com/dplaneos/dplaned/internal/auth"
	"github.com/dplaneos/dplaned/internal/broker"
	"github.com/dplaneos/dplaned/internal/observability"
	"github.com/dplaneos/dplaned/internal/platform/db"
	"github.com/dplaneos/dplaned/internal/rbac"
	"github.com/dplaneos/dplaned/internal/session"
	"github.com/dplaneos/dplaned/internal/storage"
	"github.com/dplaneos/dplaned/internal/whitelist"
	"github.com/dplaneos/dplaned/jobs"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditKey, err := audit.LoadOrCreateKey(cfg.AuditKeyPath)
	if err != nil {
		logger.Error("audit key", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.New()

	auditRepo := audit.NewRepository(pool)
	recorder := audit.NewRecorder(auditRepo, auditKey, logger)
	verifier := audit.NewVerifier(auditRepo, auditKey)

	sessions := session.NewStore(pool)

	rbacService := rbac.NewService(rbac.NewRepository(pool), cfg.RBACCacheTTL)
	rbacMiddleware := rbac.Middleware{
		Sessions: sessions,
		Service:  rbacService,
		Logger:   logger,
	}

	commandBroker := broker.NewService(whitelist.Default(), logger,
		broker.WithSudo(cfg.SudoPath),
		broker.WithObserver(metrics),
	)

	authService := auth.NewService(auth.NewRepository(pool), sessions, recorder, logger, cfg.SessionTTL)

	enqueuer := jobs.NewClient(cfg.RedisAddr)
	defer enqueuer.Close()

	router := app.NewRouter(app.RouterParams{
		Config:         cfg,
		Metrics:        metrics,
		AuthHandler:    auth.NewHandler(authService),
		StorageHandler: storage.NewHandler(commandBroker, recorder, enqueuer, logger),
		RBACHandler:    rbac.NewHandler(rbacService),
		AuditHandler:   audit.NewHandler(auditRepo, verifier),
		RBACMiddleware: rbacMiddleware,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("dplaned listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", slog.Any("error", err))
	}
}
