// worker consumes queued storage operations: pool scrubs and replication
// streams. It shares the broker and audit chain with the daemon but runs as a
// separate process so long operations never compete with API traffic.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dplaneos/dplaned/internal/app"
	"github.com/dplaneos/dplaned/internal/audit"
	"github.com/dplaneos/dplaned/internal/broker"
	"github.com/dplaneos/dplaned/internal/platform/db"
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
	recorder := audit.NewRecorder(audit.NewRepository(pool), auditKey, logger)

	commandBroker := broker.NewService(whitelist.Default(), logger, broker.WithSudo(cfg.SudoPath))
	executor := jobs.NewExecutor(commandBroker, recorder, logger)
	worker := jobs.NewWorker(cfg.RedisAddr, executor, logger)

	healthServer := &http.Server{Addr: cfg.WorkerAddr, Handler: worker.Handler()}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server", slog.Any("error", err))
		}
	}()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down worker")
		worker.Shutdown()
		_ = healthServer.Close()
	}()

	if err := worker.Run(); err != nil {
		logger.Error("worker", slog.Any("error", err))
		os.Exit(1)
	}
}
