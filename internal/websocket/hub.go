package chatws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"
	"github.com/saeid-a/SigmaChatSync/internal/models"
)

// Event types pushed to sockets.
const (
	EventConversations = "conversations"
	EventWarning       = "warning"
	EventNotification  = "notification"
	EventSent          = "sent"
	EventError         = "error"
)

type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan envelope
	done       chan struct{}
	log        zerolog.Logger
}

// envelope targets every socket of userID, or every socket when userID is
// empty.
type envelope struct {
	userID  string
	payload []byte
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

type sender interface {
	SendMessage(
		ctx context.Context,
		actorID string,
		counterpartID string,
		content string,
	) (*models.ConversationRecord, error)
}

type Event struct {
	Type          string                       `json:"type"`
	Conversations []models.ConversationSummary `json:"conversations,omitempty"`
	ScrollToTop   bool                         `json:"scroll_to_top,omitempty"`
	Message       string                       `json:"message,omitempty"`
	Notification  *models.Notification         `json:"notification,omitempty"`
	Conversation  *models.ConversationRecord   `json:"conversation,omitempty"`
	Timestamp     string                       `json:"timestamp"`
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan envelope, 64),
		done:       make(chan struct{}),
		log:        log.With().Str("component", "ws_hub").Logger(),
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

// Run owns the client registry until ctx is cancelled, then closes every
// remaining client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for userID, set := range h.clients {
				for client := range set {
					client.close()
				}
				delete(h.clients, userID)
			}
			return
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
				client.close()
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.close()
	}
}

// Warn shows a notice on every socket of userID.
func (h *Hub) Warn(userID string, message string) {
	h.publish(userID, Event{Type: EventWarning, Message: message})
}

// BroadcastNotification shows a posted notification on every open socket.
func (h *Hub) BroadcastNotification(notification models.Notification) {
	h.publish("", Event{Type: EventNotification, Notification: &notification})
}

func (h *Hub) publish(userID string, event Event) {
	encoded, err := encodeEvent(event)
	if err != nil {
		h.log.Error().Err(err).Str("type", event.Type).Msg("encode event")
		return
	}
	select {
	case h.broadcast <- envelope{userID: userID, payload: encoded}:
	case <-h.done:
	}
}

func (h *Hub) deliver(message envelope) {
	if message.userID != "" {
		h.sendToUser(message.userID, message.payload)
		return
	}
	for userID := range h.clients {
		h.sendToUser(userID, message.payload)
	}
}

func (h *Hub) sendToUser(userID string, payload []byte) {
	set, ok := h.clients[userID]
	if !ok {
		return
	}

	for client := range set {
		if !client.enqueue(payload) {
			delete(set, client)
			client.close()
		}
	}
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

func encodeEvent(event Event) ([]byte, error) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return json.Marshal(event)
}

// RenderConversations draws the merged list on this socket only.
func (c *Client) RenderConversations(_ string, conversations []models.ConversationSummary, scrollToTop bool) {
	if conversations == nil {
		conversations = []models.ConversationSummary{}
	}
	c.write(Event{Type: EventConversations, Conversations: conversations, ScrollToTop: scrollToTop})
}

func (c *Client) Warn(_ string, message string) {
	c.write(Event{Type: EventWarning, Message: message})
}

func (c *Client) write(event Event) {
	payload, err := encodeEvent(event)
	if err != nil {
		c.hub.log.Error().Err(err).Str("type", event.Type).Msg("encode event")
		return
	}
	if !c.enqueue(payload) {
		c.hub.log.Warn().Str("user_id", c.userID).Str("type", event.Type).Msg("dropping event for slow socket")
	}
}

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

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump handles messages typed into the socket until it closes. It
// returns when the peer disconnects.
func (c *Client) ReadPump(ctx context.Context, service sender) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming struct {
			Type          string `json:"type"`
			CounterpartID string `json:"counterpart_id"`
			Content       string `json:"content"`
		}
		if err := json.Unmarshal(payload, &incoming); err != nil {
			c.write(Event{Type: EventError, Message: "invalid message payload"})
			continue
		}
		if incoming.Type != "message" {
			c.write(Event{Type: EventError, Message: "unsupported message type"})
			continue
		}

		record, err := service.SendMessage(ctx, c.userID, incoming.CounterpartID, incoming.Content)
		if err != nil {
			c.write(Event{Type: EventError, Message: "failed to send message"})
			continue
		}
		c.write(Event{Type: EventSent, Conversation: record})
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
