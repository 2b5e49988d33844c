package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dplaneos/dplaned/internal/audit"
	"github.com/dplaneos/dplaned/internal/broker"
	"github.com/dplaneos/dplaned/internal/whitelist"
)

type stubRunner struct {
	args     []string
	output   []byte
	exitCode int
	err      error
}

func (r *stubRunner) Run(_ context.Context, _ time.Duration, _ string, args []string) ([]byte, int, error) {
	r.args = args
	return r.output, r.exitCode, r.err
}

type auditSink struct {
	events []audit.Event
}

func (a *auditSink) AppendChained(_ context.Context, e audit.Event, compute func(string) string) (audit.Event, error) {
	e.Hash = compute("")
	a.events = append(a.events, e)
	return e, nil
}

func (a *auditSink) ListEvents(context.Context, int, int) ([]audit.Event, error) { return nil, nil }
func (a *auditSink) EventsAscending(context.Context, int64, int64) ([]audit.Event, error) {
	return nil, nil
}

func newTestExecutor(runner *stubRunner) (*Executor, *auditSink) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := broker.NewService(whitelist.Default(), logger, broker.WithRunner(runner))
	sink := &auditSink{}
	return NewExecutor(b, audit.NewRecorder(sink, nil, logger), logger), sink
}

func TestHandlePoolScrub(t *testing.T) {
	runner := &stubRunner{}
	executor, sink := newTestExecutor(runner)

	task, err := NewPoolScrubTask(PoolScrubPayload{Pool: "tank", User: "admin", IP: "192.168.1.10"})
	require.NoError(t, err)

	require.NoError(t, executor.HandlePoolScrub(context.Background(), task))
	assert.Equal(t, []string{"scrub", "tank"}, runner.args)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "storage.pool.scrub", sink.events[0].Action)
	assert.Equal(t, "tank", sink.events[0].Resource)
	assert.True(t, sink.events[0].Success)
}

func TestHandlePoolScrubRejectsBadPoolName(t *testing.T) {
	runner := &stubRunner{}
	executor, sink := newTestExecutor(runner)

	task, err := NewPoolScrubTask(PoolScrubPayload{Pool: "tank; reboot", User: "admin"})
	require.NoError(t, err)

	err = executor.HandlePoolScrub(context.Background(), task)
	require.Error(t, err)
	assert.Nil(t, runner.args, "nothing may be spawned for a rejected pool name")

	// The rejection itself is audited as a failed action.
	require.Len(t, sink.events, 1)
	assert.False(t, sink.events[0].Success)
}

func TestHandlePoolScrubMalformedPayloadNotRetried(t *testing.T) {
	executor, _ := newTestExecutor(&stubRunner{})

	task := asynq.NewTask(TaskTypePoolScrub, []byte("{not json"))
	err := executor.HandlePoolScrub(context.Background(), task)
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleReplicationSend(t *testing.T) {
	runner := &stubRunner{}
	executor, sink := newTestExecutor(runner)

	task, err := NewReplicationSendTask(ReplicationSendPayload{
		Snapshot: "tank/data@daily",
		Target:   "nas-backup",
		User:     "admin",
	})
	require.NoError(t, err)

	require.NoError(t, executor.HandleReplicationSend(context.Background(), task))
	assert.Equal(t, []string{"send", "-R", "tank/data@daily"}, runner.args)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "storage.replication.send", sink.events[0].Action)
	assert.Contains(t, sink.events[0].Details, "target=nas-backup")
}

func TestClientEnqueue(t *testing.T) {
	mr := miniredis.RunT(t)

	client := NewClient(mr.Addr())
	defer client.Close()

	require.NoError(t, client.EnqueuePoolScrub(context.Background(), "tank", "admin", "192.168.1.10"))
	require.NoError(t, client.EnqueueReplicationSend(context.Background(), "tank/data@daily", "nas-backup", "admin", "192.168.1.10"))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer inspector.Close()

	pending, err := inspector.ListPendingTasks(QueueMaintenance)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, TaskTypePoolScrub, pending[0].Type)

	var payload PoolScrubPayload
	require.NoError(t, json.Unmarshal(pending[0].Payload, &payload))
	assert.Equal(t, "tank", payload.Pool)
	assert.Equal(t, "admin", payload.User)

	replication, err := inspector.ListPendingTasks(QueueReplication)
	require.NoError(t, err)
	require.Len(t, replication, 1)
	assert.Equal(t, TaskTypeReplicationSend, replication[0].Type)
}
