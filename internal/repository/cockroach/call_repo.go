package cockroach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatcall-backend/internal/domain"
	apperrors "chatcall-backend/pkg/errors"
	"chatcall-backend/pkg/metrics"
)

const storeName = "cockroach"

const callColumns = `call_id, participants, call_type, status, initiated_at,
	started_at, ended_at, duration, archived_by, updated_at`

// CallRepository handles call data operations
type CallRepository struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewCallRepository creates a new call repository. m may be nil.
func NewCallRepository(pool *pgxpool.Pool, m *metrics.Metrics) *CallRepository {
	return &CallRepository{pool: pool, metrics: m}
}

// Create creates a new call record
func (r *CallRepository) Create(ctx context.Context, call *domain.Call) (err error) {
	defer r.observe("call_create", time.Now(), &err)

	query := `
		INSERT INTO calls (` + callColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.pool.Exec(ctx, query,
		call.CallID,
		call.Participants,
		call.CallType,
		call.Status,
		call.InitiatedAt,
		call.StartedAt,
		call.EndedAt,
		call.Duration,
		call.ArchivedBy,
		call.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}
	return nil
}

// GetByID retrieves a call by ID
func (r *CallRepository) GetByID(ctx context.Context, callID uuid.UUID) (call *domain.Call, err error) {
	defer r.observe("call_get", time.Now(), &err)

	query := `SELECT ` + callColumns + ` FROM calls WHERE call_id = $1`

	call, err = scanCall(r.pool.QueryRow(ctx, query, callID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	return call, nil
}

// Accept moves an initiated call to active
func (r *CallRepository) Accept(ctx context.Context, callID uuid.UUID, startedAt time.Time) (err error) {
	defer r.observe("call_accept", time.Now(), &err)

	query := `
		UPDATE calls
		SET status = 'active', started_at = $2, updated_at = $2
		WHERE call_id = $1 AND status = 'initiated'
	`
	return r.conditionalUpdate(ctx, "accept call", query, callID, startedAt)
}

// MarkMissed moves a still initiated call to missed
func (r *CallRepository) MarkMissed(ctx context.Context, callID uuid.UUID, at time.Time) (err error) {
	defer r.observe("call_mark_missed", time.Now(), &err)

	query := `
		UPDATE calls
		SET status = 'missed', ended_at = $2, updated_at = $2
		WHERE call_id = $1 AND status = 'initiated'
	`
	return r.conditionalUpdate(ctx, "mark call missed", query, callID, at)
}

// End moves a non-terminal call to ended
func (r *CallRepository) End(ctx context.Context, callID uuid.UUID, endedAt time.Time, duration int) (err error) {
	defer r.observe("call_end", time.Now(), &err)

	query := `
		UPDATE calls
		SET status = 'ended', ended_at = $2, duration = $3, updated_at = $2
		WHERE call_id = $1 AND status IN ('initiated', 'ringing', 'active')
	`
	return r.conditionalUpdate(ctx, "end call", query, callID, endedAt, duration)
}

// Archive adds userID to the archived set. Archiving twice leaves one entry.
func (r *CallRepository) Archive(ctx context.Context, callID, userID uuid.UUID) (err error) {
	defer r.observe("call_archive", time.Now(), &err)

	query := `
		UPDATE calls
		SET archived_by = array_append(archived_by, $2)
		WHERE call_id = $1 AND NOT ($2 = ANY(archived_by))
	`
	tag, err := r.pool.Exec(ctx, query, callID, userID)
	if err != nil {
		return fmt.Errorf("failed to archive call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either already archived or unknown
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM calls WHERE call_id = $1)`, callID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check call: %w", err)
		}
		if !exists {
			return apperrors.ErrNotFound
		}
	}
	return nil
}

// ListByUser returns the user's non-archived calls, most recently updated first
func (r *CallRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) (calls []*domain.Call, total int64, err error) {
	defer r.observe("call_list", time.Now(), &err)

	countQuery := `
		SELECT count(*) FROM calls
		WHERE participants @> ARRAY[$1]::UUID[] AND NOT ($1 = ANY(archived_by))
	`
	if err = r.pool.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count calls: %w", err)
	}

	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE participants @> ARRAY[$1]::UUID[] AND NOT ($1 = ANY(archived_by))
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list calls: %w", err)
	}
	defer rows.Close()

	calls = make([]*domain.Call, 0, limit)
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, call)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating calls: %w", err)
	}
	return calls, total, nil
}

func (r *CallRepository) conditionalUpdate(ctx context.Context, op, query string, args ...interface{}) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM calls WHERE call_id = $1)`, args[0]).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check call: %w", err)
	}
	if !exists {
		return apperrors.ErrNotFound
	}
	return apperrors.ErrConflict
}

func (r *CallRepository) observe(op string, start time.Time, err *error) {
	r.metrics.RecordDBQuery(storeName, op, time.Since(start), *err)
}

func scanCall(row pgx.Row) (*domain.Call, error) {
	call := &domain.Call{}
	err := row.Scan(
		&call.CallID,
		&call.Participants,
		&call.CallType,
		&call.Status,
		&call.InitiatedAt,
		&call.StartedAt,
		&call.EndedAt,
		&call.Duration,
		&call.ArchivedBy,
		&call.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if call.ArchivedBy == nil {
		call.ArchivedBy = []uuid.UUID{}
	}
	return call, nil
}
