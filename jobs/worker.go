package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/dplaneos/dplaned/internal/platform/httpx"
)

// Queue names. Scrubs and replication streams run on separate queues so a
// burst of replication work cannot starve scheduled scrubs.
const (
	QueueMaintenance = "maintenance"
	QueueReplication = "replication"
)

// Worker consumes storage tasks from Redis.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	executor *Executor
	redis    *redis.Client
	logger   *slog.Logger
}

// NewWorker constructs a Worker bound to the given Redis address.
func NewWorker(redisAddr string, executor *Executor, logger *slog.Logger) *Worker {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				QueueMaintenance: 1,
				QueueReplication: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypePoolScrub, executor.HandlePoolScrub)
	mux.HandleFunc(TaskTypeReplicationSend, executor.HandleReplicationSend)

	return &Worker{
		server:   server,
		mux:      mux,
		executor: executor,
		redis:    redis.NewClient(&redis.Options{Addr: redisAddr}),
		logger:   logger,
	}
}

// Run blocks processing tasks until the server is stopped.
func (w *Worker) Run() error {
	w.logger.Info("job worker starting")
	if err := w.server.Run(w.mux); err != nil {
		return fmt.Errorf("run asynq server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight tasks and stops the server.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
	_ = w.redis.Close()
}

// Handler exposes a liveness endpoint for the worker process. Health requires
// the Redis backend to answer, otherwise queued work cannot progress.
func (w *Worker) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(rw http.ResponseWriter, req *http.Request) {
		if err := w.redis.Ping(req.Context()).Err(); err != nil {
			httpx.Problem(rw, http.StatusServiceUnavailable, "Service Unavailable", "redis unreachable")
			return
		}
		httpx.JSON(rw, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

// Client enqueues storage tasks. It satisfies the storage API's Enqueuer.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an enqueue-only client.
func NewClient(redisAddr string) *Client {
	return &Client{client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}
}

// Close releases the underlying Redis connections.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueuePoolScrub schedules a scrub on the maintenance queue.
func (c *Client) EnqueuePoolScrub(ctx context.Context, pool, user, ip string) error {
	task, err := NewPoolScrubTask(PoolScrubPayload{Pool: pool, User: user, IP: ip})
	if err != nil {
		return err
	}
	if _, err := c.client.EnqueueContext(ctx, task, asynq.Queue(QueueMaintenance), asynq.MaxRetry(2)); err != nil {
		return fmt.Errorf("enqueue pool scrub: %w", err)
	}
	return nil
}

// EnqueueReplicationSend schedules a snapshot send on the replication queue.
func (c *Client) EnqueueReplicationSend(ctx context.Context, snapshot, target, user, ip string) error {
	task, err := NewReplicationSendTask(ReplicationSendPayload{Snapshot: snapshot, Target: target, User: user, IP: ip})
	if err != nil {
		return err
	}
	if _, err := c.client.EnqueueContext(ctx, task, asynq.Queue(QueueReplication), asynq.MaxRetry(2)); err != nil {
		return fmt.Errorf("enqueue replication send: %w", err)
	}
	return nil
}
