package audit

import (
	"context"
	"log/slog"
	"time"
)

// Recorder appends chained events. Audit writes must never roll back the
// action they describe, so Record logs failures and returns the error for the
// caller to inspect but callers are expected to continue.
type Recorder struct {
	repo   Repository
	key    []byte
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder constructs a Recorder. An empty key disables chaining; events
// are still written, with empty hashes.
func NewRecorder(repo Repository, key []byte, logger *slog.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		key:    key,
		logger: logger,
		now:    time.Now,
	}
}

// Record appends one event to the chain, stamping the timestamp.
func (r *Recorder) Record(ctx context.Context, e Event) error {
	e.Timestamp = r.now().Unix()
	_, err := r.repo.AppendChained(ctx, e, func(prevHash string) string {
		return ComputeHash(r.key, prevHash, e)
	})
	if err != nil {
		r.logger.Error("audit record failed",
			slog.String("action", e.Action),
			slog.String("resource", e.Resource),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

// RecordAction is a convenience wrapper for the common call sites.
func (r *Recorder) RecordAction(ctx context.Context, user, action, resource, details, ip string, success bool) error {
	return r.Record(ctx, Event{
		User:     user,
		Action:   action,
		Resource: resource,
		Details:  details,
		IP:       ip,
		Success:  success,
	})
}
