package cockroach

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatcall-backend/internal/domain"
	apperrors "chatcall-backend/pkg/errors"
	"chatcall-backend/pkg/metrics"
)

const chatColumns = `chat_id, participants, last_message_id, created_at, updated_at`

// ChatRepository handles two-party chat operations
type ChatRepository struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewChatRepository creates a new chat repository. m may be nil.
func NewChatRepository(pool *pgxpool.Pool, m *metrics.Metrics) *ChatRepository {
	return &ChatRepository{pool: pool, metrics: m}
}

// PairKey identifies a chat by its participants regardless of order
func PairKey(a, b uuid.UUID) string {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return a.String() + ":" + b.String()
}

// Create inserts a chat. A chat for the same pair already existing is ErrConflict.
func (r *ChatRepository) Create(ctx context.Context, chat *domain.Chat) (err error) {
	defer r.observe("chat_create", time.Now(), &err)

	if len(chat.Participants) != 2 {
		return fmt.Errorf("chat requires two participants, got %d", len(chat.Participants))
	}

	query := `
		INSERT INTO chats (chat_id, participants, pair_key, last_message_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		chat.ChatID,
		chat.Participants,
		PairKey(chat.Participants[0], chat.Participants[1]),
		chat.LastMessageID,
		chat.CreatedAt,
		chat.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

// GetByID retrieves a chat by ID
func (r *ChatRepository) GetByID(ctx context.Context, chatID uuid.UUID) (chat *domain.Chat, err error) {
	defer r.observe("chat_get", time.Now(), &err)

	query := `SELECT ` + chatColumns + ` FROM chats WHERE chat_id = $1`
	chat, err = scanChat(r.pool.QueryRow(ctx, query, chatID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return chat, nil
}

// GetByParticipants retrieves the chat between two users
func (r *ChatRepository) GetByParticipants(ctx context.Context, userA, userB uuid.UUID) (chat *domain.Chat, err error) {
	defer r.observe("chat_get_by_pair", time.Now(), &err)

	query := `SELECT ` + chatColumns + ` FROM chats WHERE pair_key = $1`
	chat, err = scanChat(r.pool.QueryRow(ctx, query, PairKey(userA, userB)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return chat, nil
}

// ListByUser retrieves all chats of a user, most recently active first
func (r *ChatRepository) ListByUser(ctx context.Context, userID uuid.UUID) (chats []*domain.Chat, err error) {
	defer r.observe("chat_list", time.Now(), &err)

	query := `
		SELECT ` + chatColumns + `
		FROM chats
		WHERE participants @> ARRAY[$1]::UUID[]
		ORDER BY updated_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	chats = []*domain.Chat{}
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chats: %w", err)
	}
	return chats, nil
}

// UpdateLastMessage points the chat at its newest message
func (r *ChatRepository) UpdateLastMessage(ctx context.Context, chatID, messageID uuid.UUID, at time.Time) (err error) {
	defer r.observe("chat_update_last_message", time.Now(), &err)

	query := `
		UPDATE chats
		SET last_message_id = $2, updated_at = $3
		WHERE chat_id = $1
	`
	tag, err := r.pool.Exec(ctx, query, chatID, messageID, at)
	if err != nil {
		return fmt.Errorf("failed to update chat last message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *ChatRepository) observe(op string, start time.Time, err *error) {
	r.metrics.RecordDBQuery(storeName, op, time.Since(start), *err)
}

func scanChat(row pgx.Row) (*domain.Chat, error) {
	chat := &domain.Chat{}
	err := row.Scan(
		&chat.ChatID,
		&chat.Participants,
		&chat.LastMessageID,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return chat, nil
}
