package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/rcmedia-dev/kerhome-sub002/internal/models"
	"github.com/rcmedia-dev/kerhome-sub002/internal/realtime"
	"github.com/rcmedia-dev/kerhome-sub002/internal/repository"
)

var (
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidInput     = errors.New("invalid input")
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
	ErrUserNotFound     = errors.New("user not found")
)

const MaxMessageLength = 2000

type profileReader interface {
	GetByID(ctx context.Context, id string) (*models.Profile, error)
}

// MessageNotification is queued for the webhook worker after a successful
// send.
type MessageNotification struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	RecipientID    string `json:"recipient_id"`
	Preview        string `json:"preview"`
}

type MessageNotifier interface {
	EnqueueMessageNotification(ctx context.Context, notification MessageNotification) error
}

type ChatService struct {
	db               *pgxpool.Pool
	conversationRepo *repository.ConversationRepository
	messageRepo      *repository.MessageRepository
	profileRepo      profileReader
	publisher        realtime.Publisher
	notifier         MessageNotifier
	logger           *logrus.Logger
}

func NewChatService(
	db *pgxpool.Pool,
	conversationRepo *repository.ConversationRepository,
	messageRepo *repository.MessageRepository,
	profileRepo profileReader,
	publisher realtime.Publisher,
	notifier MessageNotifier,
	logger *logrus.Logger,
) *ChatService {
	return &ChatService{
		db:               db,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		profileRepo:      profileRepo,
		publisher:        publisher,
		notifier:         notifier,
		logger:           logger,
	}
}

// FindOrCreateConversation returns the single conversation between the caller
// and the target, creating it on first contact. Repeated calls converge on the
// same conversation; the bool reports whether this call created it.
func (s *ChatService) FindOrCreateConversation(
	ctx context.Context,
	actorID string,
	targetID string,
	propertyID *string,
) (*models.Conversation, bool, error) {
	if actorID == "" || targetID == "" {
		return nil, false, ErrInvalidInput
	}
	if actorID == targetID {
		return nil, false, ErrSelfConversation
	}

	if _, err := s.profileRepo.GetByID(ctx, targetID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrUserNotFound
		}
		return nil, false, err
	}

	return s.conversationRepo.FindOrCreate(ctx, actorID, targetID, propertyID)
}

func (s *ChatService) ListConversations(
	ctx context.Context,
	actorID string,
) ([]models.ConversationSummary, error) {
	if actorID == "" {
		return nil, ErrInvalidInput
	}
	return s.conversationRepo.ListForParticipant(ctx, actorID)
}

// ListMessages pages through a conversation's history, newest first, and
// marks the fetched page read for the caller inside the same transaction.
func (s *ChatService) ListMessages(
	ctx context.Context,
	actorID string,
	conversationID string,
	page int,
	limit int,
) ([]models.ChatMessage, int, error) {
	if actorID == "" || conversationID == "" || page <= 0 || limit <= 0 {
		return nil, 0, ErrInvalidInput
	}

	if _, err := s.conversationRepo.GetByIDForParticipant(ctx, conversationID, actorID); err != nil {
		return nil, 0, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)

	messages, total, err := txMessageRepo.ListByConversation(
		ctx,
		conversationID,
		limit,
		(page-1)*limit,
	)
	if err != nil {
		return nil, 0, err
	}

	messageIDs := make([]string, 0, len(messages))
	for _, message := range messages {
		messageIDs = append(messageIDs, message.ID)
	}

	if err := txMessageRepo.MarkMessagesRead(ctx, messageIDs, actorID); err != nil {
		return nil, 0, err
	}

	for i := range messages {
		if messages[i].SenderID != actorID {
			messages[i].ReadByReceiver = true
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

type SendMessageInput struct {
	ConversationID string
	SenderID       string
	Content        string
	AttachmentURL  *string
	AttachmentType *string
}

// SendMessage persists the message and bumps the conversation in one
// transaction, then publishes the realtime event and queues the webhook
// notification best effort. The returned bool reports whether the realtime
// publish succeeded; when it is false the message still exists and clients
// pick it up on their next list refresh.
func (s *ChatService) SendMessage(
	ctx context.Context,
	input SendMessageInput,
) (*models.ChatMessage, bool, error) {
	if input.SenderID == "" || input.ConversationID == "" {
		return nil, false, ErrInvalidInput
	}

	trimmed := strings.TrimSpace(input.Content)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > MaxMessageLength {
		return nil, false, ErrInvalidInput
	}

	conversation, err := s.conversationRepo.GetByIDForParticipant(ctx, input.ConversationID, input.SenderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrForbidden
		}
		return nil, false, err
	}

	recipientID := conversation.OtherParticipant(input.SenderID)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)
	txConversationRepo := repository.NewConversationRepository(tx)

	message, err := txMessageRepo.Create(
		ctx,
		input.ConversationID,
		input.SenderID,
		trimmed,
		input.AttachmentURL,
		input.AttachmentType,
	)
	if err != nil {
		return nil, false, err
	}

	if err := txConversationRepo.Touch(ctx, input.ConversationID); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}

	delivered := s.publishNewMessage(ctx, message, recipientID)
	s.enqueueNotification(ctx, message, recipientID)

	return message, delivered, nil
}

// MarkConversationRead flips the unread flag on every message the other
// participant sent. Idempotent.
func (s *ChatService) MarkConversationRead(
	ctx context.Context,
	actorID string,
	conversationID string,
) error {
	if actorID == "" || conversationID == "" {
		return ErrInvalidInput
	}

	if _, err := s.conversationRepo.GetByIDForParticipant(ctx, conversationID, actorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrForbidden
		}
		return err
	}

	return s.messageRepo.MarkConversationRead(ctx, conversationID, actorID)
}

func (s *ChatService) publishNewMessage(
	ctx context.Context,
	message *models.ChatMessage,
	recipientID string,
) bool {
	event := realtime.Event{
		Type:           realtime.EventNewMessage,
		ConversationID: message.ConversationID,
		MessageID:      message.ID,
		SenderID:       message.SenderID,
		RecipientID:    recipientID,
		Content:        message.Content,
		Timestamp:      FormatChatTimestamp(message.CreatedAt),
	}
	if message.AttachmentURL != nil {
		event.AttachmentURL = *message.AttachmentURL
	}
	if message.AttachmentType != nil {
		event.AttachmentType = *message.AttachmentType
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"conversation_id": message.ConversationID,
			"message_id":      message.ID,
		}).Warn("chat: realtime publish failed, message persisted")
		return false
	}
	return true
}

func (s *ChatService) enqueueNotification(
	ctx context.Context,
	message *models.ChatMessage,
	recipientID string,
) {
	if s.notifier == nil {
		return
	}

	notification := MessageNotification{
		MessageID:      message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		RecipientID:    recipientID,
		Preview:        messagePreview(message.Content),
	}
	if err := s.notifier.EnqueueMessageNotification(ctx, notification); err != nil {
		s.logger.WithError(err).WithField("message_id", message.ID).
			Warn("chat: notification enqueue failed")
	}
}

const previewLength = 120

func messagePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength])
}

func FormatChatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}
