package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dplaneos/dplaned/internal/shared"
)

// advisoryLockID serializes audit appends across all daemon instances
// sharing the database. Chain integrity requires that reading the tail hash
// and inserting the next row happen atomically.
const advisoryLockID = 0x6475_6c6f_6721

// Repository defines persistence for the audit chain.
type Repository interface {
	// AppendChained inserts an event whose hash is computed from the current
	// tail hash. The compute callback runs inside the append critical section
	// so no two writers can observe the same tail.
	AppendChained(ctx context.Context, e Event, compute func(prevHash string) string) (Event, error)
	ListEvents(ctx context.Context, limit, offset int) ([]Event, error)
	// EventsAscending returns rows in chain order; fromID and toID bound the
	// range, zero meaning unbounded on that side.
	EventsAscending(ctx context.Context, fromID, toID int64) ([]Event, error)
}

// PGRepository implements Repository over PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// AppendChained runs the read-tail-then-insert sequence inside a transaction
// holding an advisory lock, so appends are strictly serialized.
func (r *PGRepository) AppendChained(ctx context.Context, e Event, compute func(prevHash string) string) (Event, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Event{}, fmt.Errorf("%w: begin audit append: %v", shared.ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockID); err != nil {
		return Event{}, fmt.Errorf("%w: audit append lock: %v", shared.ErrStorage, err)
	}

	var prevHash string
	err = tx.QueryRow(ctx, `SELECT hash FROM audit_log ORDER BY id DESC LIMIT 1`).Scan(&prevHash)
	if err != nil && err != pgx.ErrNoRows {
		return Event{}, fmt.Errorf("%w: read chain tail: %v", shared.ErrStorage, err)
	}

	e.PrevHash = prevHash
	e.Hash = compute(prevHash)

	err = tx.QueryRow(ctx, `
		INSERT INTO audit_log (timestamp, username, action, resource, details, ip, success, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, e.Timestamp, e.User, e.Action, e.Resource, e.Details, e.IP, e.Success, e.PrevHash, e.Hash).Scan(&e.ID)
	if err != nil {
		return Event{}, fmt.Errorf("%w: insert audit event: %v", shared.ErrStorage, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Event{}, fmt.Errorf("%w: commit audit append: %v", shared.ErrStorage, err)
	}
	return e, nil
}

// ListEvents returns events newest-first for the read API.
func (r *PGRepository) ListEvents(ctx context.Context, limit, offset int) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, timestamp, username, action, resource, details, ip, success, prev_hash, hash
		FROM audit_log
		ORDER BY id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list audit events: %v", shared.ErrStorage, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsAscending returns log rows in chain order for verification.
func (r *PGRepository) EventsAscending(ctx context.Context, fromID, toID int64) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, timestamp, username, action, resource, details, ip, success, prev_hash, hash
		FROM audit_log
		WHERE ($1 = 0 OR id >= $1)
		  AND ($2 = 0 OR id <= $2)
		ORDER BY id ASC
	`, fromID, toID)
	if err != nil {
		return nil, fmt.Errorf("%w: load audit chain: %v", shared.ErrStorage, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.User, &e.Action, &e.Resource,
			&e.Details, &e.IP, &e.Success, &e.PrevHash, &e.Hash); err != nil {
			return nil, fmt.Errorf("%w: scan audit event: %v", shared.ErrStorage, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan audit events: %v", shared.ErrStorage, err)
	}
	return events, nil
}

var _ Repository = (*PGRepository)(nil)
