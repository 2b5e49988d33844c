// Package jobs runs long-lived storage operations on the asynq queue so HTTP
// requests never block on pool scrubs or replication streams.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dplaneos/dplaned/internal/audit"
	"github.com/dplaneos/dplaned/internal/broker"
)

const (
	TaskTypePoolScrub       = "storage:pool_scrub"
	TaskTypeReplicationSend = "storage:replication_send"
)

// PoolScrubPayload identifies a scrub request and who asked for it.
type PoolScrubPayload struct {
	Pool string `json:"pool"`
	User string `json:"user"`
	IP   string `json:"ip"`
}

// ReplicationSendPayload identifies a snapshot replication request.
type ReplicationSendPayload struct {
	Snapshot string `json:"snapshot"`
	Target   string `json:"target"`
	User     string `json:"user"`
	IP       string `json:"ip"`
}

// NewPoolScrubTask builds the scrub task.
func NewPoolScrubTask(p PoolScrubPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal pool scrub payload: %w", err)
	}
	return asynq.NewTask(TaskTypePoolScrub, payload), nil
}

// NewReplicationSendTask builds the replication task.
func NewReplicationSendTask(p ReplicationSendPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal replication payload: %w", err)
	}
	return asynq.NewTask(TaskTypeReplicationSend, payload), nil
}

// Executor handles queued storage tasks through the command broker, writing
// the outcome of each to the audit chain.
type Executor struct {
	broker   *broker.Service
	recorder *audit.Recorder
	logger   *slog.Logger
}

// NewExecutor constructs an Executor.
func NewExecutor(b *broker.Service, recorder *audit.Recorder, logger *slog.Logger) *Executor {
	return &Executor{broker: b, recorder: recorder, logger: logger}
}

// HandlePoolScrub runs a pool scrub. Malformed payloads are not retried.
func (e *Executor) HandlePoolScrub(ctx context.Context, t *asynq.Task) error {
	var p PoolScrubPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal pool scrub payload: %v: %w", err, asynq.SkipRetry)
	}

	result, err := e.broker.Execute(ctx, "zpool_scrub", map[string]string{"name": p.Pool})
	success := err == nil && result.ExitCode == 0
	details := fmt.Sprintf("exit=%d", result.ExitCode)
	if err != nil {
		details = err.Error()
	}
	e.record(ctx, p.User, "storage.pool.scrub", p.Pool, details, p.IP, success)
	if err != nil {
		e.logger.Error("pool scrub failed", slog.String("pool", p.Pool), slog.Any("error", err))
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("zpool scrub %s exited %d: %s", p.Pool, result.ExitCode, result.Output)
	}
	return nil
}

// HandleReplicationSend streams a snapshot to the replication target.
func (e *Executor) HandleReplicationSend(ctx context.Context, t *asynq.Task) error {
	var p ReplicationSendPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal replication payload: %v: %w", err, asynq.SkipRetry)
	}

	result, err := e.broker.Execute(ctx, "zfs_send", map[string]string{"snapshot": p.Snapshot})
	success := err == nil && result.ExitCode == 0
	details := fmt.Sprintf("target=%s exit=%d", p.Target, result.ExitCode)
	if err != nil {
		details = fmt.Sprintf("target=%s: %v", p.Target, err)
	}
	e.record(ctx, p.User, "storage.replication.send", p.Snapshot, details, p.IP, success)
	if err != nil {
		e.logger.Error("replication send failed", slog.String("snapshot", p.Snapshot), slog.Any("error", err))
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("zfs send %s exited %d: %s", p.Snapshot, result.ExitCode, result.Output)
	}
	return nil
}

func (e *Executor) record(ctx context.Context, user, action, resource, details, ip string, success bool) {
	if err := e.recorder.RecordAction(ctx, user, action, resource, details, ip, success); err != nil {
		e.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
