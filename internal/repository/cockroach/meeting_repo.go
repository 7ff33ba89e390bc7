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

// MeetingRepository handles meetings and their roster
type MeetingRepository struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewMeetingRepository creates a new meeting repository. m may be nil.
func NewMeetingRepository(pool *pgxpool.Pool, m *metrics.Metrics) *MeetingRepository {
	return &MeetingRepository{pool: pool, metrics: m}
}

// Create inserts the meeting and its initial roster in one transaction
func (r *MeetingRepository) Create(ctx context.Context, meeting *domain.Meeting) (err error) {
	defer r.observe("meeting_create", time.Now(), &err)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO meetings (
			meeting_id, host_id, status, start_time, end_time,
			actual_start_time, actual_end_time, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err = tx.Exec(ctx, query,
		meeting.MeetingID,
		meeting.HostID,
		meeting.Status,
		meeting.StartTime,
		meeting.EndTime,
		meeting.ActualStartTime,
		meeting.ActualEndTime,
		meeting.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create meeting: %w", err)
	}

	for _, p := range meeting.Participants {
		if _, err = tx.Exec(ctx, `
			INSERT INTO meeting_participants (meeting_id, user_id, joined_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (meeting_id, user_id) DO NOTHING
		`, meeting.MeetingID, p.UserID, p.JoinedAt); err != nil {
			return fmt.Errorf("failed to add meeting participant: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit meeting: %w", err)
	}
	return nil
}

// GetByID retrieves a meeting with its roster ordered by join time
func (r *MeetingRepository) GetByID(ctx context.Context, meetingID uuid.UUID) (meeting *domain.Meeting, err error) {
	defer r.observe("meeting_get", time.Now(), &err)

	query := `
		SELECT meeting_id, host_id, status, start_time, end_time,
		       actual_start_time, actual_end_time, created_at
		FROM meetings
		WHERE meeting_id = $1
	`
	meeting = &domain.Meeting{}
	err = r.pool.QueryRow(ctx, query, meetingID).Scan(
		&meeting.MeetingID,
		&meeting.HostID,
		&meeting.Status,
		&meeting.StartTime,
		&meeting.EndTime,
		&meeting.ActualStartTime,
		&meeting.ActualEndTime,
		&meeting.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get meeting: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT user_id, joined_at
		FROM meeting_participants
		WHERE meeting_id = $1
		ORDER BY joined_at ASC
	`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get meeting participants: %w", err)
	}
	defer rows.Close()

	meeting.Participants = []domain.MeetingParticipant{}
	for rows.Next() {
		var p domain.MeetingParticipant
		if err := rows.Scan(&p.UserID, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan meeting participant: %w", err)
		}
		meeting.Participants = append(meeting.Participants, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating meeting participants: %w", err)
	}
	return meeting, nil
}

// AddParticipant inserts userID into the roster. It reports false if already present.
func (r *MeetingRepository) AddParticipant(ctx context.Context, meetingID, userID uuid.UUID, joinedAt time.Time) (added bool, err error) {
	defer r.observe("meeting_add_participant", time.Now(), &err)

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO meeting_participants (meeting_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (meeting_id, user_id) DO NOTHING
	`, meetingID, userID, joinedAt)
	if err != nil {
		return false, fmt.Errorf("failed to add meeting participant: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RemoveParticipant deletes userID from the roster. It reports false if absent.
func (r *MeetingRepository) RemoveParticipant(ctx context.Context, meetingID, userID uuid.UUID) (removed bool, err error) {
	defer r.observe("meeting_remove_participant", time.Now(), &err)

	tag, err := r.pool.Exec(ctx, `
		DELETE FROM meeting_participants
		WHERE meeting_id = $1 AND user_id = $2
	`, meetingID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove meeting participant: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Activate moves a scheduled meeting to active
func (r *MeetingRepository) Activate(ctx context.Context, meetingID uuid.UUID, at time.Time) (err error) {
	defer r.observe("meeting_activate", time.Now(), &err)

	return r.transition(ctx, `
		UPDATE meetings
		SET status = 'active', actual_start_time = $2
		WHERE meeting_id = $1 AND status = 'scheduled'
	`, meetingID, at)
}

// End moves a meeting that has not ended yet to ended
func (r *MeetingRepository) End(ctx context.Context, meetingID uuid.UUID, at time.Time) (err error) {
	defer r.observe("meeting_end", time.Now(), &err)

	return r.transition(ctx, `
		UPDATE meetings
		SET status = 'ended', actual_end_time = $2
		WHERE meeting_id = $1 AND status != 'ended'
	`, meetingID, at)
}

func (r *MeetingRepository) transition(ctx context.Context, query string, meetingID uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, query, meetingID, at)
	if err != nil {
		return fmt.Errorf("failed to update meeting: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM meetings WHERE meeting_id = $1)`, meetingID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check meeting: %w", err)
	}
	if !exists {
		return apperrors.ErrNotFound
	}
	return apperrors.ErrConflict
}

func (r *MeetingRepository) observe(op string, start time.Time, err *error) {
	r.metrics.RecordDBQuery(storeName, op, time.Since(start), *err)
}
