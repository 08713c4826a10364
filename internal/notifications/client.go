package notifications

import (
	"log/slog"
	"time"

	"agora/internal/models"
	"agora/internal/observability"

	"github.com/gofiber/websocket/v2"
)

// Keepalive timings. pingEvery must stay below pongTimeout.
const (
	writeTimeout = 10 * time.Second
	pongTimeout  = time.Minute
	pingEvery    = pongTimeout * 9 / 10

	// Subscribers only send control frames.
	maxInboundFrame = 512
	sendBuffer      = 64
)

var (
	resyncNotice = []byte(`{"type":"resync","reason":"buffer_full"}`)
	goingAway    = websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
)

// topicSet is the set of cache keys a subscriber asked for. Empty means all.
type topicSet map[string]struct{}

func newTopicSet(topics []string) topicSet {
	if len(topics) == 0 {
		return nil
	}
	s := make(topicSet, len(topics))
	for _, t := range topics {
		s[t] = struct{}{}
	}
	return s
}

func (s topicSet) matches(keys []string) bool {
	if len(s) == 0 {
		return true
	}
	for _, k := range keys {
		if _, ok := s[k]; ok {
			return true
		}
	}
	return false
}

// Client is one websocket subscriber. Send is closed by the hub on unregister.
type Client struct {
	Principal models.Principal
	Send      chan []byte

	hub    *Hub
	conn   *websocket.Conn // nil in tests
	topics topicSet
}

// Serve runs the connection until the peer goes away or the hub drops it.
func (c *Client) Serve() {
	go c.writeLoop()
	c.readLoop()
}

// readLoop only exists to process pongs and notice the peer closing.
func (c *Client) readLoop() {
	defer func() {
		c.hub.UnregisterClient(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundFrame)
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongTimeout)) }
	_ = extend("")
	c.conn.SetPongHandler(extend)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				observability.Logger.Debug("invalidation subscriber read error",
					slog.String("principal", c.Principal.String()), slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (c *Client) writeLoop() {
	ping := time.NewTicker(pingEvery)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		var err error
		select {
		case msg, open := <-c.Send:
			if !open {
				_ = write(websocket.CloseMessage, goingAway)
				return
			}
			err = write(websocket.TextMessage, msg)
		case <-ping.C:
			err = write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

// TrySend queues msg without blocking. When the buffer is full msg is
// dropped, the oldest queued frame is evicted and a resync notice takes its
// place so the subscriber knows to refetch.
func (c *Client) TrySend(msg []byte) {
	defer func() {
		// Send was closed by a concurrent unregister.
		if recover() != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues("closed").Inc()
		}
	}()

	select {
	case c.Send <- msg:
		return
	default:
	}

	observability.WebSocketBackpressureDrops.WithLabelValues("full").Inc()
	observability.Logger.Warn("invalidation subscriber buffer full, dropped event",
		slog.String("principal", c.Principal.String()))
	select {
	case <-c.Send:
	default:
	}
	select {
	case c.Send <- resyncNotice:
	default:
	}
}
