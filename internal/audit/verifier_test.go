package audit

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRepo is an in-memory chain used by recorder and verifier tests.
type memoryRepo struct {
	events []Event
}

func (m *memoryRepo) AppendChained(_ context.Context, e Event, compute func(prevHash string) string) (Event, error) {
	prevHash := ""
	if n := len(m.events); n > 0 {
		prevHash = m.events[n-1].Hash
	}
	e.ID = int64(len(m.events) + 1)
	e.PrevHash = prevHash
	e.Hash = compute(prevHash)
	m.events = append(m.events, e)
	return e, nil
}

func (m *memoryRepo) ListEvents(_ context.Context, limit, offset int) ([]Event, error) {
	if offset >= len(m.events) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.events) {
		end = len(m.events)
	}
	return m.events[offset:end], nil
}

func (m *memoryRepo) EventsAscending(_ context.Context, fromID, toID int64) ([]Event, error) {
	var out []Event
	for _, e := range m.events {
		if fromID != 0 && e.ID < fromID {
			continue
		}
		if toID != 0 && e.ID > toID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

var _ Repository = (*memoryRepo)(nil)

func testRecorder(repo Repository, key []byte) *Recorder {
	return NewRecorder(repo, key, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func fillChain(t *testing.T, repo *memoryRepo, key []byte, n int) {
	t.Helper()
	r := testRecorder(repo, key)
	actions := []string{"auth.login", "storage.pool.create", "storage.snapshot.create", "storage.pool.scrub"}
	for i := 0; i < n; i++ {
		err := r.RecordAction(context.Background(), "admin", actions[i%len(actions)], "tank", "", "192.168.1.10", true)
		require.NoError(t, err)
	}
}

func TestVerifyIntactChain(t *testing.T) {
	repo := &memoryRepo{}
	fillChain(t, repo, chainKey, 8)

	report, err := NewVerifier(repo, chainKey).Verify(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 8, report.Total)
	assert.Equal(t, 8, report.Checked)
	assert.Zero(t, report.Skipped)
}

func TestVerifyDetectsTamperedRow(t *testing.T) {
	repo := &memoryRepo{}
	fillChain(t, repo, chainKey, 8)

	// Tamper with a mid-chain row without recomputing its hash.
	repo.events[3].Details = "exit=0 (edited)"

	report, err := NewVerifier(repo, chainKey).Verify(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, repo.events[3].ID, report.FirstBroken)
	assert.Equal(t, repo.events[3].Hash, report.StoredHash)
	assert.NotEqual(t, report.StoredHash, report.ComputedHash)
}

func TestVerifyDetectsRecomputedRowByChainBreak(t *testing.T) {
	repo := &memoryRepo{}
	fillChain(t, repo, chainKey, 8)

	// An attacker with the key could recompute the edited row's hash, but the
	// next row's prev linkage still exposes the edit.
	e := &repo.events[3]
	e.Details = "exit=0 (edited)"
	e.Hash = ComputeHash(chainKey, e.PrevHash, *e)

	report, err := NewVerifier(repo, chainKey).Verify(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, repo.events[4].ID, report.FirstBroken)
}

func TestVerifySkipsLegacyUnkeyedRows(t *testing.T) {
	repo := &memoryRepo{}
	fillChain(t, repo, nil, 3) // no key: rows carry empty hashes
	fillChain(t, repo, chainKey, 5)

	report, err := NewVerifier(repo, chainKey).Verify(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 8, report.Total)
	assert.Equal(t, 5, report.Checked)
	assert.Equal(t, 3, report.Skipped)
}

func TestVerifyBoundedRange(t *testing.T) {
	repo := &memoryRepo{}
	fillChain(t, repo, chainKey, 8)
	repo.events[1].Details = "edited"

	// The tampered row sits outside the verified range.
	report, err := NewVerifier(repo, chainKey).Verify(context.Background(), 4, 8)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 5, report.Total)

	report, err = NewVerifier(repo, chainKey).Verify(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, int64(2), report.FirstBroken)
}

func TestRecorderStampsTimestamp(t *testing.T) {
	repo := &memoryRepo{}
	r := testRecorder(repo, chainKey)

	require.NoError(t, r.Record(context.Background(), Event{User: "admin", Action: "auth.login", Success: true}))
	require.Len(t, repo.events, 1)
	assert.NotZero(t, repo.events[0].Timestamp)
	assert.NotEmpty(t, repo.events[0].Hash)
}
