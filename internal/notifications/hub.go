// Package notifications fans cache invalidation events out to websocket subscribers.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"agora/internal/models"
	"agora/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	maxConnsPerPrincipal = 8
	maxTotalConns        = 10000
)

var (
	ErrTotalLimit     = errors.New("server connection limit reached")
	ErrPrincipalLimit = errors.New("principal connection limit reached")
)

// Message is the frame delivered to subscribers.
type Message struct {
	Type string `json:"type"`
	models.InvalidationEvent
}

// Hub tracks subscribers keyed by principal.
type Hub struct {
	mu     sync.RWMutex
	byPrin map[models.Principal]map[*Client]struct{}
	total  int
	closed bool
}

func NewHub() *Hub {
	return &Hub{byPrin: make(map[models.Principal]map[*Client]struct{})}
}

// setGauge must be called with mu held.
func (h *Hub) setGauge() {
	observability.InvalidationSubscribers.Set(float64(h.total))
}

// Register adds a subscriber. topics narrows delivery to events naming those keys.
// It fails with ErrTotalLimit after Shutdown.
func (h *Hub) Register(principal models.Principal, conn *websocket.Conn, topics []string) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.total >= maxTotalConns {
		return nil, ErrTotalLimit
	}
	mine := h.byPrin[principal]
	if len(mine) >= maxConnsPerPrincipal {
		return nil, ErrPrincipalLimit
	}
	if mine == nil {
		mine = make(map[*Client]struct{})
		h.byPrin[principal] = mine
	}

	c := &Client{
		Principal: principal,
		Send:      make(chan []byte, sendBuffer),
		hub:       h,
		conn:      conn,
		topics:    newTopicSet(topics),
	}
	mine[c] = struct{}{}
	h.total++
	h.setGauge()
	return c, nil
}

// UnregisterClient removes c and closes its send channel. Safe to call twice.
func (h *Hub) UnregisterClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	mine := h.byPrin[c.Principal]
	if _, ok := mine[c]; !ok {
		return
	}
	delete(mine, c)
	if len(mine) == 0 {
		delete(h.byPrin, c.Principal)
	}
	close(c.Send)
	h.total--
	h.setGauge()
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Dispatch delivers event to every subscriber interested in one of its keys.
func (h *Hub) Dispatch(event models.InvalidationEvent) {
	frame, err := json.Marshal(Message{Type: "invalidate", InvalidationEvent: event})
	if err != nil {
		observability.Logger.Error("encode invalidation frame", slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.byPrin {
		for c := range clients {
			if c.topics.matches(event.Keys) {
				c.TrySend(frame)
			}
		}
	}
}

// StartWiring forwards every event the subscriber receives into the hub.
func (h *Hub) StartWiring(ctx context.Context, s *Subscriber) error {
	return s.Start(ctx, h.Dispatch)
}

// Shutdown closes every subscriber's send channel, which makes its write
// loop send a going-away close frame, and refuses new registrations.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, clients := range h.byPrin {
		for c := range clients {
			close(c.Send)
		}
	}
	clear(h.byPrin)
	h.total = 0
	h.setGauge()
	return nil
}
