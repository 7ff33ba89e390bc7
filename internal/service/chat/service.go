// Package chat implements the message delivery pipeline: persist, deliver
// live when the receiver is online, replay on reconnect, delivered/seen state.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcall-backend/internal/domain"
	"chatcall-backend/internal/presence"
	"chatcall-backend/pkg/constants"
	apperrors "chatcall-backend/pkg/errors"
	"chatcall-backend/pkg/events"
	"chatcall-backend/pkg/logger"
	"chatcall-backend/pkg/metrics"
	"chatcall-backend/pkg/pagination"
	"chatcall-backend/pkg/sanitize"
)

// ChatRepository persists two-party chats
type ChatRepository interface {
	Create(ctx context.Context, chat *domain.Chat) error
	GetByID(ctx context.Context, chatID uuid.UUID) (*domain.Chat, error)
	GetByParticipants(ctx context.Context, userA, userB uuid.UUID) (*domain.Chat, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Chat, error)
	UpdateLastMessage(ctx context.Context, chatID, messageID uuid.UUID, at time.Time) error
}

// MessageRepository persists messages and their delivery state.
// ListUndelivered returns oldest first, ListByChat newest first.
type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error)
	MarkDelivered(ctx context.Context, message *domain.Message) error
	MarkSeen(ctx context.Context, message *domain.Message, readerID uuid.UUID, readAt time.Time) error
	UpdateContent(ctx context.Context, message *domain.Message, content string, editedAt time.Time) error
	ListUndelivered(ctx context.Context, receiverID uuid.UUID) ([]*domain.Message, error)
	ListByChat(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]*domain.Message, int64, error)
}

// Service handles chat business logic
type Service struct {
	chatRepo    ChatRepository
	messageRepo MessageRepository
	presence    presence.Registry
	events      *events.Emitter
	now         func() time.Time
}

// NewService creates a new chat service. emitter may be nil.
func NewService(chatRepo ChatRepository, messageRepo MessageRepository, registry presence.Registry, emitter *events.Emitter) *Service {
	return &Service{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		presence:    registry,
		events:      emitter,
		now:         time.Now,
	}
}

// SendMessageInput contains message data
type SendMessageInput struct {
	ChatID      uuid.UUID            `json:"chatId"`
	SenderID    uuid.UUID            `json:"senderId"`
	ReceiverID  uuid.UUID            `json:"receiverId"`
	MessageType domain.MessageType   `json:"messageType"`
	Content     string               `json:"content"`
	Files       []domain.MessageFile `json:"files"`
}

// SendMessageOutput is returned to the sender
type SendMessageOutput struct {
	MessageID uuid.UUID `json:"messageId"`
	// ReceiverOnline reports whether receiveMessage was pushed live.
	// The message stays undelivered until the receiver acknowledges it.
	ReceiverOnline bool      `json:"receiverOnline"`
	Timestamp      time.Time `json:"timestamp"`
}

// SendMessage validates, persists and delivers a message
func (s *Service) SendMessage(ctx context.Context, input *SendMessageInput) (*SendMessageOutput, error) {
	if input.ChatID == uuid.Nil {
		return nil, apperrors.MissingField("chatId")
	}
	if input.SenderID == uuid.Nil {
		return nil, apperrors.MissingField("senderId")
	}
	if input.ReceiverID == uuid.Nil {
		return nil, apperrors.MissingField("receiverId")
	}

	chat, err := s.chatRepo.GetByID(ctx, input.ChatID)
	if err != nil {
		return nil, apperrors.FromRepo("chat", err)
	}
	if input.SenderID == input.ReceiverID ||
		!chat.HasParticipant(input.SenderID) || !chat.HasParticipant(input.ReceiverID) {
		return nil, apperrors.Forbidden("sender and receiver must both be participants of this chat")
	}
	content := sanitize.MessageText(input.Content)
	if err := validateBody(input.MessageType, content, input.Files); err != nil {
		return nil, err
	}

	message := &domain.Message{
		MessageID:   uuid.New(),
		ChatID:      input.ChatID,
		SenderID:    input.SenderID,
		ReceiverID:  input.ReceiverID,
		MessageType: input.MessageType,
		Content:     content,
		Files:       input.Files,
		Delivered:   false,
		ReadBy:      []domain.ReadReceipt{},
		Timestamp:   s.now().UTC(),
	}

	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, apperrors.Internal("failed to save message", err)
	}

	if err := s.chatRepo.UpdateLastMessage(ctx, chat.ChatID, message.MessageID, message.Timestamp); err != nil {
		// The message is stored; a stale pointer only affects chat ordering.
		logger.Warn("Failed to update chat last message",
			zap.String("chat_id", chat.ChatID.String()),
			zap.String("message_id", message.MessageID.String()),
			zap.Error(err))
	}

	online := presence.Deliver(s.presence, input.ReceiverID, domain.EventReceiveMessage, message)
	receiver := "offline"
	if online {
		receiver = "online"
	}
	metrics.MessagesSentTotal.WithLabelValues(string(message.MessageType), receiver).Inc()

	s.events.Emit(ctx, events.MessageSent, message)

	logger.Debug("Message sent",
		zap.String("message_id", message.MessageID.String()),
		zap.String("chat_id", message.ChatID.String()),
		zap.Bool("receiver_online", online))

	return &SendMessageOutput{
		MessageID:      message.MessageID,
		ReceiverOnline: online,
		Timestamp:      message.Timestamp,
	}, nil
}

func validateBody(messageType domain.MessageType, content string, files []domain.MessageFile) error {
	switch messageType {
	case domain.MessageTypeText:
		if strings.TrimSpace(content) == "" {
			return apperrors.InvalidArgument("text message requires content")
		}
		if utf8.RuneCountInString(content) > constants.MaxMessageLength {
			return apperrors.InvalidArgument("message content is too long")
		}
	case domain.MessageTypeMedia:
		if len(files) == 0 {
			return apperrors.InvalidArgument("media message requires at least one file")
		}
		if len(files) > constants.MaxFilesPerMessage {
			return apperrors.InvalidArgument("too many files in one message")
		}
		for _, f := range files {
			if f.FileURL == "" || f.FileName == "" {
				return apperrors.InvalidArgument("every file requires fileName and fileUrl")
			}
			switch f.FileType {
			case domain.FileTypeImage, domain.FileTypeAudio, domain.FileTypeVideo, domain.FileTypeDocument:
			default:
				return apperrors.InvalidArgument("unsupported fileType: " + string(f.FileType))
			}
		}
	default:
		return apperrors.InvalidArgument("messageType must be text or media")
	}
	return nil
}

// MarkDelivered records the receiver's acknowledgment of a message
func (s *Service) MarkDelivered(ctx context.Context, messageID, receiverID uuid.UUID) (*domain.Message, error) {
	if messageID == uuid.Nil {
		return nil, apperrors.MissingField("messageId")
	}

	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, apperrors.FromRepo("message", err)
	}
	if message.ReceiverID != receiverID {
		return nil, apperrors.Forbidden("only the receiver can acknowledge a message")
	}
	if message.Delivered {
		return message, nil
	}

	if err := s.messageRepo.MarkDelivered(ctx, message); err != nil {
		return nil, apperrors.Internal("failed to mark message delivered", err)
	}
	message.Delivered = true

	metrics.MessagesAcknowledgedTotal.WithLabelValues("delivered").Inc()
	s.notifySender(message)
	s.events.Emit(ctx, events.MessageDelivered, statusPayload(message))

	return message, nil
}

// OnReconnect replays every undelivered message of userID, oldest first,
// marking each delivered once it has been handed to the connection.
// Replay stops early if the connection goes away.
func (s *Service) OnReconnect(ctx context.Context, userID uuid.UUID) (int, error) {
	if userID == uuid.Nil {
		return 0, apperrors.MissingField("userId")
	}

	pending, err := s.messageRepo.ListUndelivered(ctx, userID)
	if err != nil {
		return 0, apperrors.Internal("failed to load undelivered messages", err)
	}

	replayed := 0
	for _, message := range pending {
		if !presence.Deliver(s.presence, userID, domain.EventReceiveMessage, message) {
			logger.Info("Replay interrupted, receiver went offline",
				zap.String("user_id", userID.String()),
				zap.Int("replayed", replayed),
				zap.Int("pending", len(pending)))
			break
		}

		if err := s.messageRepo.MarkDelivered(ctx, message); err != nil {
			logger.Error("Failed to mark replayed message delivered",
				zap.String("message_id", message.MessageID.String()),
				zap.Error(err))
			continue
		}
		message.Delivered = true
		replayed++

		s.notifySender(message)
		s.events.Emit(ctx, events.MessageDelivered, statusPayload(message))
	}

	if replayed > 0 {
		metrics.MessagesReplayedTotal.Add(float64(replayed))
		logger.Info("Replayed undelivered messages",
			zap.String("user_id", userID.String()),
			zap.Int("count", replayed))
	}

	return replayed, nil
}

// MarkSeen stamps the read receipt of the receiver. Seen implies delivered.
func (s *Service) MarkSeen(ctx context.Context, messageID, receiverID uuid.UUID) (*domain.Message, error) {
	if messageID == uuid.Nil {
		return nil, apperrors.MissingField("messageId")
	}
	if receiverID == uuid.Nil {
		return nil, apperrors.MissingField("receiverId")
	}

	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, apperrors.FromRepo("message", err)
	}
	if message.ReceiverID != receiverID {
		return nil, apperrors.Forbidden("only the receiver can mark a message as seen")
	}

	readAt := s.now().UTC()
	if err := s.messageRepo.MarkSeen(ctx, message, receiverID, readAt); err != nil {
		return nil, apperrors.Internal("failed to mark message seen", err)
	}

	message.Delivered = true
	message.IsSeen = domain.SeenStatus{Status: true, ReadAt: &readAt}
	message.ReadBy = upsertReceipt(message.ReadBy, receiverID, readAt)

	metrics.MessagesAcknowledgedTotal.WithLabelValues("seen").Inc()
	s.notifySender(message)
	s.events.Emit(ctx, events.MessageSeen, statusPayload(message))

	return message, nil
}

func upsertReceipt(receipts []domain.ReadReceipt, userID uuid.UUID, readAt time.Time) []domain.ReadReceipt {
	for i := range receipts {
		if receipts[i].UserID == userID {
			receipts[i].ReadAt = readAt
			return receipts
		}
	}
	return append(receipts, domain.ReadReceipt{UserID: userID, ReadAt: readAt})
}

func statusPayload(message *domain.Message) *domain.MessageStatusPayload {
	return &domain.MessageStatusPayload{
		MessageID: message.MessageID,
		ChatID:    message.ChatID,
		Delivered: message.Delivered,
		Seen:      message.IsSeen.Status,
	}
}

func (s *Service) notifySender(message *domain.Message) {
	presence.Deliver(s.presence, message.SenderID, domain.EventMessageStatus, statusPayload(message))
}

// FetchPage returns one newest-first page of a chat's messages
func (s *Service) FetchPage(ctx context.Context, chatID uuid.UUID, page, limit int) (*domain.MessagePage, error) {
	if chatID == uuid.Nil {
		return nil, apperrors.MissingField("chatId")
	}

	if _, err := s.chatRepo.GetByID(ctx, chatID); err != nil {
		return nil, apperrors.FromRepo("chat", err)
	}

	params := pagination.New(page, limit)
	messages, total, err := s.messageRepo.ListByChat(ctx, chatID, params.Limit, params.Offset())
	if err != nil {
		return nil, apperrors.Internal("failed to get messages", err)
	}
	if messages == nil {
		messages = []*domain.Message{}
	}

	return &domain.MessagePage{
		Messages:      messages,
		TotalMessages: total,
		CurrentPage:   params.Page,
		TotalPages:    params.TotalPages(total),
	}, nil
}

// FetchPageAs is FetchPage restricted to participants of the chat
func (s *Service) FetchPageAs(ctx context.Context, userID, chatID uuid.UUID, page, limit int) (*domain.MessagePage, error) {
	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, apperrors.FromRepo("chat", err)
	}
	if !chat.HasParticipant(userID) {
		return nil, apperrors.Forbidden("user is not a participant of this chat")
	}
	return s.FetchPage(ctx, chatID, page, limit)
}

// UpdateMessage edits the content of a text message. Only the sender may edit.
func (s *Service) UpdateMessage(ctx context.Context, messageID, editorID uuid.UUID, content string) (*domain.Message, error) {
	if messageID == uuid.Nil {
		return nil, apperrors.MissingField("messageId")
	}

	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, apperrors.FromRepo("message", err)
	}
	if message.SenderID != editorID {
		return nil, apperrors.Forbidden("only the sender can edit a message")
	}
	if message.MessageType != domain.MessageTypeText {
		return nil, apperrors.InvalidArgument("only text messages can be edited")
	}
	content = sanitize.MessageText(content)
	if err := validateBody(domain.MessageTypeText, content, nil); err != nil {
		return nil, err
	}

	editedAt := s.now().UTC()
	if err := s.messageRepo.UpdateContent(ctx, message, content, editedAt); err != nil {
		return nil, apperrors.Internal("failed to update message", err)
	}
	message.Content = content
	message.EditedAt = &editedAt

	return message, nil
}

// CreateChat returns the chat between userA and userB, creating it if needed
func (s *Service) CreateChat(ctx context.Context, userA, userB uuid.UUID) (*domain.Chat, error) {
	if userA == uuid.Nil || userB == uuid.Nil {
		return nil, apperrors.MissingField("participants")
	}
	if userA == userB {
		return nil, apperrors.InvalidArgument("chat participants must be distinct")
	}

	existing, err := s.chatRepo.GetByParticipants(ctx, userA, userB)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Internal("failed to look up chat", err)
	}

	now := s.now().UTC()
	chat := &domain.Chat{
		ChatID:       uuid.New(),
		Participants: []uuid.UUID{userA, userB},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.chatRepo.Create(ctx, chat); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			// Created concurrently by the other participant
			existing, getErr := s.chatRepo.GetByParticipants(ctx, userA, userB)
			if getErr != nil {
				return nil, apperrors.FromRepo("chat", getErr)
			}
			return existing, nil
		}
		return nil, apperrors.Internal("failed to create chat", err)
	}

	logger.Info("Chat created",
		zap.String("chat_id", chat.ChatID.String()))

	return chat, nil
}

// ListChats returns the chats of userID, most recently active first
func (s *Service) ListChats(ctx context.Context, userID uuid.UUID) ([]*domain.Chat, error) {
	if userID == uuid.Nil {
		return nil, apperrors.MissingField("userId")
	}
	chats, err := s.chatRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to list chats", err)
	}
	if chats == nil {
		chats = []*domain.Chat{}
	}
	return chats, nil
}
