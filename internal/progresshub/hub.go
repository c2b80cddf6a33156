// Package progresshub implements component M: a WebSocket broadcast
// hub fanning out task/job progress events to dashboard-class
// consumers, grounded directly on the teacher's
// services/gateway/main.go local hub (read/write pump, ping/pong
// keepalive, non-blocking per-client send) and
// services/gateway/main.go's subscribeEvents relay-from-broker loop,
// re-themed from Figma job-log events to task-progress events.
package progresshub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/doai-fleet/farmctl/internal/broker"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans out progress.<task_id> broker deliveries to every
// connected WebSocket client.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	bc      chan []byte
	log     zerolog.Logger
}

// New builds an idle Hub; call Run to start its broadcast loop.
func New(log zerolog.Logger) *Hub {
	return &Hub{clients: make(map[*client]struct{}), bc: make(chan []byte, 512), log: log}
}

// Run drives the broadcast loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.bc:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast enqueues msg for delivery to every connected client,
// dropping it if the broadcast channel is saturated rather than
// blocking the caller.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.bc <- msg:
	default:
	}
}

// ClientCount reports the number of connected WebSocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades r to a WebSocket connection and registers it as a
// broadcast recipient.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 64)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *client) {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// RelayProgress subscribes to the broker's progress.* routing keys
// and broadcasts every delivery body verbatim — the body is already
// the JSON-marshalled taskproto.ProgressPayload the worker published
// (spec.md §4.H step 2), so no re-decoding is needed here.
func (h *Hub) RelayProgress(ctx context.Context, b broker.Broker, queueName string) error {
	deliveries, err := b.Subscribe(ctx, queueName, "progress.#")
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				h.Broadcast(d.Body)
				d.Ack()
			}
		}
	}()
	return nil
}
