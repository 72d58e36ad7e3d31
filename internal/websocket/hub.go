package chatws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/sirupsen/logrus"

	"github.com/rcmedia-dev/kerhome-sub002/internal/models"
	"github.com/rcmedia-dev/kerhome-sub002/internal/realtime"
	"github.com/rcmedia-dev/kerhome-sub002/internal/services"
)

// Hub tracks the websocket clients of each connected user and delivers
// realtime events to conversation participants only. Events normally arrive
// through the Redis bridge; without a bus the hub doubles as the publisher.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan realtime.Event
	logger     *logrus.Logger
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

type chatSender interface {
	SendMessage(ctx context.Context, input services.SendMessageInput) (*models.ChatMessage, bool, error)
	MarkConversationRead(ctx context.Context, actorID string, conversationID string) error
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan realtime.Event, 64),
		logger:     logger,
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 32),
	}
}

// enqueue hands a payload to the write pump. It reports false when the client
// is closed or its buffer is full. Both the hub goroutine and the read pump
// write to send, so the closed check and the send share one critical section.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.userID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				client.closeSend()
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Deliver queues an event for the participants' local clients.
func (h *Hub) Deliver(event realtime.Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.WithField("conversation_id", event.ConversationID).
			Warn("chat hub: broadcast buffer full, dropping event")
	}
}

// Publish lets the hub stand in for the bus on single-node deployments.
func (h *Hub) Publish(_ context.Context, event realtime.Event) error {
	h.Deliver(event)
	return nil
}

var (
	_ realtime.Sink      = (*Hub)(nil)
	_ realtime.Publisher = (*Hub)(nil)
)

func (h *Hub) deliver(event realtime.Event) {
	encoded, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("chat hub: encode event")
		return
	}

	h.sendToUser(event.SenderID, encoded)
	if event.RecipientID != "" && event.RecipientID != event.SenderID {
		h.sendToUser(event.RecipientID, encoded)
	}
}

func (h *Hub) sendToUser(userID string, payload []byte) {
	set, ok := h.clients[userID]
	if !ok {
		return
	}

	for client := range set {
		if !client.enqueue(payload) {
			// Slow consumer: drop the client rather than block delivery.
			delete(set, client)
			client.closeSend()
		}
	}
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

type incomingCommand struct {
	Type           string  `json:"type"`
	ConversationID string  `json:"conversation_id"`
	Content        string  `json:"content"`
	AttachmentURL  *string `json:"attachment_url"`
	AttachmentType *string `json:"attachment_type"`
}

func (c *Client) ReadPump(service chatSender) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	if c.userID == "" {
		writeError(c, "invalid user")
		return
	}

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming incomingCommand
		if err := json.Unmarshal(payload, &incoming); err != nil {
			writeError(c, "invalid message payload")
			continue
		}
		if incoming.ConversationID == "" {
			writeError(c, "invalid conversation id")
			continue
		}

		switch incoming.Type {
		case "message":
			// Delivery to both participants happens via the publisher, so no
			// direct echo here.
			_, _, err := service.SendMessage(context.Background(), services.SendMessageInput{
				ConversationID: incoming.ConversationID,
				SenderID:       c.userID,
				Content:        incoming.Content,
				AttachmentURL:  incoming.AttachmentURL,
				AttachmentType: incoming.AttachmentType,
			})
			if err != nil {
				writeError(c, "failed to send message")
				continue
			}
		case "read":
			if err := service.MarkConversationRead(context.Background(), c.userID, incoming.ConversationID); err != nil {
				writeError(c, "failed to mark conversation read")
			}
		default:
			writeError(c, "unsupported message type")
		}
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func writeError(client *Client, message string) {
	payload, err := json.Marshal(realtime.Event{
		Type:      "error",
		Content:   message,
		Timestamp: services.FormatChatTimestamp(time.Now().UTC()),
	})
	if err != nil {
		return
	}
	if !client.enqueue(payload) {
		client.hub.Unregister(client)
	}
}
