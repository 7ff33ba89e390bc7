package cockroach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatcall-backend/internal/domain"
	apperrors "chatcall-backend/pkg/errors"
	"chatcall-backend/pkg/metrics"
)

// AttachmentRepository stores metadata of uploaded message files
type AttachmentRepository struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewAttachmentRepository creates a new attachment repository. m may be nil.
func NewAttachmentRepository(pool *pgxpool.Pool, m *metrics.Metrics) *AttachmentRepository {
	return &AttachmentRepository{pool: pool, metrics: m}
}

// Create records an uploaded object
func (r *AttachmentRepository) Create(ctx context.Context, a *domain.Attachment) (err error) {
	defer r.observe("attachment_create", time.Now(), &err)

	query := `
		INSERT INTO attachments (
			object_key, owner_id, file_name, file_type, content_type, file_size, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		a.Key,
		a.OwnerID,
		a.FileName,
		string(a.FileType),
		a.ContentType,
		a.FileSize,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	return nil
}

// GetByKey retrieves an attachment by object key
func (r *AttachmentRepository) GetByKey(ctx context.Context, key string) (_ *domain.Attachment, err error) {
	defer r.observe("attachment_get", time.Now(), &err)

	query := `
		SELECT object_key, owner_id, file_name, file_type, content_type, file_size, created_at
		FROM attachments
		WHERE object_key = $1
	`
	a := &domain.Attachment{}
	var fileType string
	err = r.pool.QueryRow(ctx, query, key).Scan(
		&a.Key,
		&a.OwnerID,
		&a.FileName,
		&fileType,
		&a.ContentType,
		&a.FileSize,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	a.FileType = domain.FileType(fileType)
	return a, nil
}

// Delete removes the metadata row
func (r *AttachmentRepository) Delete(ctx context.Context, key string) (err error) {
	defer r.observe("attachment_delete", time.Now(), &err)

	tag, err := r.pool.Exec(ctx, `DELETE FROM attachments WHERE object_key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *AttachmentRepository) observe(op string, start time.Time, err *error) {
	r.metrics.RecordDBQuery(storeName, op, time.Since(start), *err)
}
