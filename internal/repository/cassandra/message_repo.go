package cassandra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcall-backend/internal/domain"
	apperrors "chatcall-backend/pkg/errors"
	"chatcall-backend/pkg/logger"
	"chatcall-backend/pkg/metrics"
)

const storeName = "cassandra"

const messageColumns = `chat_id, created_at, message_id, sender_id, receiver_id, message_type,
	content, files, delivered, seen, read_at, read_by, edited_at`

// MessageRepository handles message storage in Cassandra.
// messages holds the history per chat, messages_by_id resolves a message id
// to its primary key, undelivered_messages is the per-receiver replay queue.
type MessageRepository struct {
	session *gocql.Session
	metrics *metrics.Metrics
}

// NewMessageRepository creates a new MessageRepository. m may be nil.
func NewMessageRepository(session *gocql.Session, m *metrics.Metrics) *MessageRepository {
	return &MessageRepository{session: session, metrics: m}
}

// Create stores the message and enqueues it for the receiver.
// Timestamp is truncated to the millisecond precision Cassandra keeps.
func (r *MessageRepository) Create(ctx context.Context, message *domain.Message) (err error) {
	defer r.observe("message_create", time.Now(), &err)

	message.Timestamp = message.Timestamp.Truncate(time.Millisecond)

	files, err := json.Marshal(message.Files)
	if err != nil {
		return fmt.Errorf("failed to encode message files: %w", err)
	}

	chatID := gocql.UUID(message.ChatID)
	messageID := gocql.UUID(message.MessageID)
	receiverID := gocql.UUID(message.ReceiverID)

	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		chatID,
		message.Timestamp,
		messageID,
		gocql.UUID(message.SenderID),
		receiverID,
		string(message.MessageType),
		message.Content,
		string(files),
		message.Delivered,
		message.IsSeen.Status,
		message.IsSeen.ReadAt,
		readByToMap(message.ReadBy),
		message.EditedAt,
	)
	batch.Query(`INSERT INTO messages_by_id (message_id, chat_id, created_at) VALUES (?, ?, ?)`,
		messageID, chatID, message.Timestamp)
	if !message.Delivered {
		batch.Query(`
			INSERT INTO undelivered_messages (receiver_id, created_at, message_id, chat_id)
			VALUES (?, ?, ?, ?)
		`, receiverID, message.Timestamp, messageID, chatID)
	}

	if err = r.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	// Counter tables cannot join a logged batch
	if countErr := r.session.Query(`UPDATE message_counts SET total = total + 1 WHERE chat_id = ?`, chatID).
		WithContext(ctx).Exec(); countErr != nil {
		logger.Warn("Failed to update message count",
			zap.String("chat_id", message.ChatID.String()),
			zap.String("message_id", message.MessageID.String()),
			zap.Error(countErr))
	}
	return nil
}

// GetByID resolves the message through messages_by_id
func (r *MessageRepository) GetByID(ctx context.Context, messageID uuid.UUID) (message *domain.Message, err error) {
	defer r.observe("message_get", time.Now(), &err)

	var chatID gocql.UUID
	var createdAt time.Time
	err = r.session.Query(`SELECT chat_id, created_at FROM messages_by_id WHERE message_id = ?`,
		gocql.UUID(messageID)).WithContext(ctx).Scan(&chatID, &createdAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up message: %w", err)
	}

	message, err = r.get(ctx, chatID, createdAt, gocql.UUID(messageID))
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return message, nil
}

func (r *MessageRepository) get(ctx context.Context, chatID gocql.UUID, createdAt time.Time, messageID gocql.UUID) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE chat_id = ? AND created_at = ? AND message_id = ?`
	row := &messageRow{}
	if err := r.session.Query(query, chatID, createdAt, messageID).WithContext(ctx).Scan(row.dest()...); err != nil {
		return nil, err
	}
	return row.toDomain()
}

// MarkDelivered flips delivered and removes the message from the replay queue
func (r *MessageRepository) MarkDelivered(ctx context.Context, message *domain.Message) (err error) {
	defer r.observe("message_mark_delivered", time.Now(), &err)

	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`UPDATE messages SET delivered = true WHERE chat_id = ? AND created_at = ? AND message_id = ?`,
		gocql.UUID(message.ChatID), message.Timestamp, gocql.UUID(message.MessageID))
	r.dequeue(batch, message)

	if err = r.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to mark message delivered: %w", err)
	}
	return nil
}

// MarkSeen sets the seen status and the reader's receipt. Seen implies delivered.
func (r *MessageRepository) MarkSeen(ctx context.Context, message *domain.Message, readerID uuid.UUID, readAt time.Time) (err error) {
	defer r.observe("message_mark_seen", time.Now(), &err)

	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		UPDATE messages
		SET seen = true, delivered = true, read_at = ?, read_by[?] = ?
		WHERE chat_id = ? AND created_at = ? AND message_id = ?
	`, readAt, gocql.UUID(readerID), readAt,
		gocql.UUID(message.ChatID), message.Timestamp, gocql.UUID(message.MessageID))
	r.dequeue(batch, message)

	if err = r.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to mark message seen: %w", err)
	}
	return nil
}

func (r *MessageRepository) dequeue(batch *gocql.Batch, message *domain.Message) {
	batch.Query(`DELETE FROM undelivered_messages WHERE receiver_id = ? AND created_at = ? AND message_id = ?`,
		gocql.UUID(message.ReceiverID), message.Timestamp, gocql.UUID(message.MessageID))
}

// UpdateContent rewrites the text of a message
func (r *MessageRepository) UpdateContent(ctx context.Context, message *domain.Message, content string, editedAt time.Time) (err error) {
	defer r.observe("message_update", time.Now(), &err)

	err = r.session.Query(`
		UPDATE messages SET content = ?, edited_at = ?
		WHERE chat_id = ? AND created_at = ? AND message_id = ?
	`, content, editedAt, gocql.UUID(message.ChatID), message.Timestamp, gocql.UUID(message.MessageID)).
		WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}

// ListUndelivered returns the receiver's queued messages, oldest first
func (r *MessageRepository) ListUndelivered(ctx context.Context, receiverID uuid.UUID) (messages []*domain.Message, err error) {
	defer r.observe("message_list_undelivered", time.Now(), &err)

	iter := r.session.Query(`
		SELECT chat_id, created_at, message_id
		FROM undelivered_messages
		WHERE receiver_id = ?
	`, gocql.UUID(receiverID)).WithContext(ctx).Iter()

	type key struct {
		chatID    gocql.UUID
		createdAt time.Time
		messageID gocql.UUID
	}
	var keys []key
	var k key
	for iter.Scan(&k.chatID, &k.createdAt, &k.messageID) {
		keys = append(keys, k)
	}
	if err = iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list undelivered messages: %w", err)
	}

	messages = make([]*domain.Message, 0, len(keys))
	for _, k := range keys {
		message, err := r.get(ctx, k.chatID, k.createdAt, k.messageID)
		if errors.Is(err, gocql.ErrNotFound) {
			// Queue entry without a message row; drop it
			_ = r.session.Query(`DELETE FROM undelivered_messages WHERE receiver_id = ? AND created_at = ? AND message_id = ?`,
				gocql.UUID(receiverID), k.createdAt, k.messageID).WithContext(ctx).Exec()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load undelivered message: %w", err)
		}
		messages = append(messages, message)
	}
	return messages, nil
}

// ListByChat returns one newest-first page of a chat and the chat's total
func (r *MessageRepository) ListByChat(ctx context.Context, chatID uuid.UUID, limit, offset int) (messages []*domain.Message, total int64, err error) {
	defer r.observe("message_list_by_chat", time.Now(), &err)

	cid := gocql.UUID(chatID)
	err = r.session.Query(`SELECT total FROM message_counts WHERE chat_id = ?`, cid).WithContext(ctx).Scan(&total)
	if err != nil && !errors.Is(err, gocql.ErrNotFound) {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	// Cassandra has no OFFSET; skip rows client side within the partition
	iter := r.session.Query(`SELECT `+messageColumns+` FROM messages WHERE chat_id = ? LIMIT ?`,
		cid, offset+limit).WithContext(ctx).PageSize(limit).Iter()

	messages = make([]*domain.Message, 0, limit)
	row := &messageRow{}
	skipped := 0
	for iter.Scan(row.dest()...) {
		if skipped < offset {
			skipped++
			row = &messageRow{}
			continue
		}
		message, convErr := row.toDomain()
		if convErr != nil {
			_ = iter.Close()
			return nil, 0, convErr
		}
		messages = append(messages, message)
		row = &messageRow{}
	}
	if err = iter.Close(); err != nil {
		return nil, 0, fmt.Errorf("failed to get messages: %w", err)
	}
	return messages, total, nil
}

func (r *MessageRepository) observe(op string, start time.Time, err *error) {
	r.metrics.RecordDBQuery(storeName, op, time.Since(start), *err)
}

// messageRow mirrors one row of the messages table
type messageRow struct {
	chatID      gocql.UUID
	createdAt   time.Time
	messageID   gocql.UUID
	senderID    gocql.UUID
	receiverID  gocql.UUID
	messageType string
	content     string
	files       string
	delivered   bool
	seen        bool
	readAt      *time.Time
	readBy      map[gocql.UUID]time.Time
	editedAt    *time.Time
}

func (m *messageRow) dest() []interface{} {
	return []interface{}{
		&m.chatID, &m.createdAt, &m.messageID, &m.senderID, &m.receiverID, &m.messageType,
		&m.content, &m.files, &m.delivered, &m.seen, &m.readAt, &m.readBy, &m.editedAt,
	}
}

func (m *messageRow) toDomain() (*domain.Message, error) {
	message := &domain.Message{
		MessageID:   uuid.UUID(m.messageID),
		ChatID:      uuid.UUID(m.chatID),
		SenderID:    uuid.UUID(m.senderID),
		ReceiverID:  uuid.UUID(m.receiverID),
		MessageType: domain.MessageType(m.messageType),
		Content:     m.content,
		Delivered:   m.delivered,
		IsSeen:      domain.SeenStatus{Status: m.seen, ReadAt: m.readAt},
		ReadBy:      mapToReadBy(m.readBy),
		Timestamp:   m.createdAt.UTC(),
		EditedAt:    m.editedAt,
	}
	if m.files != "" && m.files != "null" {
		if err := json.Unmarshal([]byte(m.files), &message.Files); err != nil {
			return nil, fmt.Errorf("failed to decode message files: %w", err)
		}
	}
	return message, nil
}

func readByToMap(receipts []domain.ReadReceipt) map[gocql.UUID]time.Time {
	out := make(map[gocql.UUID]time.Time, len(receipts))
	for _, r := range receipts {
		out[gocql.UUID(r.UserID)] = r.ReadAt
	}
	return out
}

func mapToReadBy(m map[gocql.UUID]time.Time) []domain.ReadReceipt {
	out := make([]domain.ReadReceipt, 0, len(m))
	for id, at := range m {
		out = append(out, domain.ReadReceipt{UserID: uuid.UUID(id), ReadAt: at.UTC()})
	}
	return out
}
