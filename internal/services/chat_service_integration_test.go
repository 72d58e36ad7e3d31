package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/rcmedia-dev/kerhome-sub002/internal/realtime"
	"github.com/rcmedia-dev/kerhome-sub002/internal/repository"
)

var (
	testDBOnce sync.Once
	testDBPool *pgxpool.Pool
	testDBErr  error
)

type recordingPublisher struct {
	events []realtime.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event realtime.Event) error {
	p.events = append(p.events, event)
	return nil
}

type failingPublisher struct{}

func (failingPublisher) Publish(_ context.Context, _ realtime.Event) error {
	return errors.New("bus unavailable")
}

func TestChatServiceFindOrCreateConverges(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationChatService(pool, &recordingPublisher{})

	buyerID := createTestProfile(t, ctx, pool, "user")
	agentID := createTestProfile(t, ctx, pool, "agent")
	t.Cleanup(func() { cleanupTestProfiles(t, ctx, pool, buyerID, agentID) })

	first, created, err := service.FindOrCreateConversation(ctx, buyerID, agentID, nil)
	if err != nil {
		t.Fatalf("first FindOrCreateConversation: %v", err)
	}
	if !created {
		t.Fatal("first call should create the conversation")
	}

	// Same pair from the other side must land on the same row.
	second, created, err := service.FindOrCreateConversation(ctx, agentID, buyerID, nil)
	if err != nil {
		t.Fatalf("second FindOrCreateConversation: %v", err)
	}
	if created {
		t.Fatal("second call must not create a new conversation")
	}
	if second.ID != first.ID {
		t.Fatalf("pair mapped to two conversations: %s and %s", first.ID, second.ID)
	}

	if _, _, err := service.FindOrCreateConversation(ctx, buyerID, uuid.NewString(), nil); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown target: expected ErrUserNotFound, got %v", err)
	}
}

func TestChatServiceSendDeliversToRecipient(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	publisher := &recordingPublisher{}
	service := newIntegrationChatService(pool, publisher)

	buyerID := createTestProfile(t, ctx, pool, "user")
	agentID := createTestProfile(t, ctx, pool, "agent")
	t.Cleanup(func() { cleanupTestProfiles(t, ctx, pool, buyerID, agentID) })

	conversation, _, err := service.FindOrCreateConversation(ctx, buyerID, agentID, nil)
	if err != nil {
		t.Fatalf("FindOrCreateConversation: %v", err)
	}

	message, delivered, err := service.SendMessage(ctx, SendMessageInput{
		ConversationID: conversation.ID,
		SenderID:       buyerID,
		Content:        "Ainda está disponível?",
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !delivered {
		t.Fatal("publish succeeded, delivered must be true")
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.RecipientID != agentID || event.SenderID != buyerID {
		t.Fatalf("event routed to %q from %q", event.RecipientID, event.SenderID)
	}
	if event.MessageID != message.ID || event.ConversationID != conversation.ID {
		t.Fatalf("event references message %q in %q", event.MessageID, event.ConversationID)
	}

	summaries, err := service.ListConversations(ctx, agentID)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(summaries) != 1 || summaries[0].UnreadCount != 1 {
		t.Fatalf("expected one conversation with one unread, got %+v", summaries)
	}
	if summaries[0].LastMessage == nil || summaries[0].LastMessage.ID != message.ID {
		t.Fatalf("expected last message %q, got %+v", message.ID, summaries[0].LastMessage)
	}

	// Mark-read drops the count and re-running it is a no-op.
	for i := 0; i < 2; i++ {
		if err := service.MarkConversationRead(ctx, agentID, conversation.ID); err != nil {
			t.Fatalf("MarkConversationRead #%d: %v", i+1, err)
		}
	}
	summaries, err = service.ListConversations(ctx, agentID)
	if err != nil {
		t.Fatalf("ListConversations after read: %v", err)
	}
	if summaries[0].UnreadCount != 0 {
		t.Fatalf("expected zero unread after mark-read, got %d", summaries[0].UnreadCount)
	}
}

func TestChatServicePersistsWhenPublishFails(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationChatService(pool, failingPublisher{})

	buyerID := createTestProfile(t, ctx, pool, "user")
	agentID := createTestProfile(t, ctx, pool, "agent")
	t.Cleanup(func() { cleanupTestProfiles(t, ctx, pool, buyerID, agentID) })

	conversation, _, err := service.FindOrCreateConversation(ctx, buyerID, agentID, nil)
	if err != nil {
		t.Fatalf("FindOrCreateConversation: %v", err)
	}

	message, delivered, err := service.SendMessage(ctx, SendMessageInput{
		ConversationID: conversation.ID,
		SenderID:       buyerID,
		Content:        "mensagem sem bus",
	})
	if err != nil {
		t.Fatalf("SendMessage must not fail on publish error: %v", err)
	}
	if delivered {
		t.Fatal("failed publish must surface delivered=false")
	}

	messages, total, err := service.ListMessages(ctx, buyerID, conversation.ID, 1, 10)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if total != 1 || len(messages) != 1 || messages[0].ID != message.ID {
		t.Fatalf("message not persisted: total=%d messages=%+v", total, messages)
	}
}

func TestChatServiceShutsOutNonParticipants(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationChatService(pool, &recordingPublisher{})

	buyerID := createTestProfile(t, ctx, pool, "user")
	agentID := createTestProfile(t, ctx, pool, "agent")
	strangerID := createTestProfile(t, ctx, pool, "user")
	t.Cleanup(func() { cleanupTestProfiles(t, ctx, pool, buyerID, agentID, strangerID) })

	conversation, _, err := service.FindOrCreateConversation(ctx, buyerID, agentID, nil)
	if err != nil {
		t.Fatalf("FindOrCreateConversation: %v", err)
	}

	_, _, err = service.SendMessage(ctx, SendMessageInput{
		ConversationID: conversation.ID,
		SenderID:       strangerID,
		Content:        "olá",
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger send: expected ErrForbidden, got %v", err)
	}

	if _, _, err := service.ListMessages(ctx, strangerID, conversation.ID, 1, 10); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("stranger list: expected pgx.ErrNoRows, got %v", err)
	}

	if err := service.MarkConversationRead(ctx, strangerID, conversation.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger mark-read: expected ErrForbidden, got %v", err)
	}
}

func integrationTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testDBOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("..", "..", ".env"))

		dbURL := os.Getenv("DB_URL")
		if dbURL == "" {
			testDBErr = fmt.Errorf("DB_URL is not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			testDBErr = err
			return
		}

		testDBPool, testDBErr = pgxpool.NewWithConfig(context.Background(), cfg)
		if testDBErr != nil {
			return
		}
		testDBErr = testDBPool.Ping(context.Background())
	})

	if testDBErr != nil {
		t.Skipf("skipping integration test: %v", testDBErr)
	}
	return testDBPool
}

func newIntegrationChatService(pool *pgxpool.Pool, publisher realtime.Publisher) *ChatService {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewChatService(
		pool,
		repository.NewConversationRepository(pool),
		repository.NewMessageRepository(pool),
		repository.NewProfileRepository(pool),
		publisher,
		nil,
		logger,
	)
}

func createTestProfile(t *testing.T, ctx context.Context, pool *pgxpool.Pool, role string) string {
	t.Helper()

	var id string
	err := pool.QueryRow(ctx, `
		INSERT INTO profiles (first_name, last_name, email, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, "Chat", "Test", fmt.Sprintf("chat-test-%s-%d@example.com", role, time.Now().UnixNano()), role).Scan(&id)
	if err != nil {
		t.Fatalf("create test profile (%s): %v", role, err)
	}
	return id
}

func cleanupTestProfiles(t *testing.T, ctx context.Context, pool *pgxpool.Pool, profileIDs ...string) {
	t.Helper()

	if len(profileIDs) == 0 {
		return
	}

	// messages cascade with their conversation
	if _, err := pool.Exec(ctx, "DELETE FROM conversations WHERE user1_id = ANY($1) OR user2_id = ANY($1)", profileIDs); err != nil {
		t.Fatalf("cleanup conversations: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM profiles WHERE id = ANY($1)", profileIDs); err != nil {
		t.Fatalf("cleanup profiles: %v", err)
	}
}
