// Package realtime fans change and notification events out to websocket
// subscribers. Delivery is best effort and never blocks publishers.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Publisher is the publish side of the fan-out channel.
type Publisher interface {
	Publish(channel, eventType string, payload any)
}

// TaskChannel names the channel of one task.
func TaskChannel(id int64) string { return fmt.Sprintf("task-%d", id) }

// WorkspaceChannel names the channel of one workspace.
func WorkspaceChannel(id int64) string { return fmt.Sprintf("workspace-%d", id) }

// UserChannel names the channel of one user.
func UserChannel(id int64) string { return fmt.Sprintf("user-%d", id) }

// Message is the envelope written to subscribers.
type Message struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Channel string    `json:"channel"`
	Payload any       `json:"payload"`
	SentAt  time.Time `json:"sent_at"`
}

type client struct {
	id       string
	conn     *websocket.Conn
	channels map[string]struct{}
}

// Hub keeps websocket subscribers and delivers queued messages to them.
type Hub struct {
	logger       *slog.Logger
	queue        chan Message
	writeTimeout time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a hub with a publish queue of the given size.
func NewHub(logger *slog.Logger, buffer int) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		logger:       logger,
		queue:        make(chan Message, buffer),
		writeTimeout: 500 * time.Millisecond,
		clients:      map[*client]struct{}{},
	}
}

// Publish enqueues a message. When the queue is full the message is dropped.
func (h *Hub) Publish(channel, eventType string, payload any) {
	msg := Message{
		ID:      uuid.Must(uuid.NewV7()).String(),
		Type:    eventType,
		Channel: channel,
		Payload: payload,
		SentAt:  time.Now().UTC(),
	}
	select {
	case h.queue <- msg:
	default:
		h.logger.Warn("realtime queue full; dropping message", slog.String("channel", channel), slog.String("type", eventType))
	}
}

// Run delivers queued messages until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.queue:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode realtime message", slog.String("channel", msg.Channel), slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if _, ok := c.channels[msg.Channel]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
		if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
			h.logger.Debug("realtime write failed", slog.String("client", c.id), slog.String("error", err.Error()))
		}
		cancel()
	}
}

// HandleWS upgrades the request and subscribes the connection to the
// comma separated channels of the "channels" query parameter.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	channels := parseChannels(r.URL.Query().Get("channels"))
	if len(channels) == 0 {
		http.Error(w, "channels query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, channels: channels}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("realtime client connected", slog.String("client", c.id), slog.Int("channels", len(channels)))

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// Subscribers returns the number of connected clients listening on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if _, ok := c.channels[channel]; ok {
			n++
		}
	}
	return n
}

func parseChannels(raw string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out[p] = struct{}{}
		}
	}
	return out
}
