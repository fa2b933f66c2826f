package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	EventQuestionCreated = "question_created"
	EventQuestionUpdated = "question_updated"
	EventQuestionDeleted = "question_deleted"
	EventAnswerCreated   = "answer_created"
	EventAnswerUpdated   = "answer_updated"
	EventAnswerDeleted   = "answer_deleted"
)

// FeedTopic receives every forum event.
const FeedTopic = "feed"

const (
	sendBufferSize = 256
	writeWait      = 10 * time.Second
)

// QuestionTopic receives the events of a single question.
func QuestionTopic(questionID uint) string {
	return fmt.Sprintf("question:%d", questionID)
}

type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
	logger     zerolog.Logger
}

type Client struct {
	hub    *Hub
	id     string
	socket *websocket.Conn
	send   chan []byte
	topic  string
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

var _ Publisher = (*Hub)(nil)

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run tracks client registrations until ctx is done, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Debug().
				Str("client_id", client.id).
				Str("topic", client.topic).
				Int("clients", total).
				Msg("client registered")

		case client := <-h.unregister:
			h.remove(client)

		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return
		}
	}
}

// Publish sends the event to the feed and to the question's own topic.
func (h *Hub) Publish(eventType string, questionID uint, payload interface{}) {
	data, err := json.Marshal(Message{Type: eventType, Payload: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("type", eventType).Msg("failed to marshal event")
		return
	}

	questionTopic := QuestionTopic(questionID)
	delivered := 0

	h.mutex.Lock()
	for client := range h.clients {
		if client.topic != FeedTopic && client.topic != questionTopic {
			continue
		}
		select {
		case client.send <- data:
			delivered++
		default:
			h.logger.Warn().Str("client_id", client.id).Msg("send buffer full, dropping client")
			close(client.send)
			delete(h.clients, client)
		}
	}
	h.mutex.Unlock()

	h.logger.Debug().
		Str("type", eventType).
		Uint("question_id", questionID).
		Int("delivered", delivered).
		Msg("event published")
}

// ClientCount returns the number of clients subscribed to topic.
func (h *Hub) ClientCount(topic string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	count := 0
	for client := range h.clients {
		if client.topic == topic {
			count++
		}
	}
	return count
}

// RegisterClient starts serving conn on topic. It returns nil and closes
// conn when the hub has stopped.
func (h *Hub) RegisterClient(conn *websocket.Conn, topic string) *Client {
	client := &Client{
		hub:    h,
		id:     uuid.NewString(),
		socket: conn,
		send:   make(chan []byte, sendBufferSize),
		topic:  topic,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return nil
	}

	go client.writePump()
	go client.readPump()

	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.logger.Debug().
			Str("client_id", client.id).
			Int("clients", len(h.clients)).
			Msg("client unregistered")
	}
}

// sendTo queues data for a single client if it is still registered.
func (h *Hub) sendTo(client *Client, data []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	select {
	case client.send <- data:
	default:
		close(client.send)
		delete(h.clients, client)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.socket.Close()
	}()

	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn().Err(err).Str("client_id", c.id).Msg("websocket read error")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.logger.Debug().Err(err).Str("client_id", c.id).Msg("ignoring malformed message")
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	defer c.socket.Close()

	for message := range c.send {
		c.socket.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}

	c.socket.SetWriteDeadline(time.Now().Add(writeWait))
	c.socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "ping":
		data, _ := json.Marshal(Message{Type: "pong", Payload: "pong"})
		c.hub.sendTo(c, data)
	default:
		c.hub.logger.Debug().
			Str("client_id", c.id).
			Str("type", msg.Type).
			Msg("unknown message type")
	}
}
