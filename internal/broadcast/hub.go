// Package broadcast keeps every connected listener in sync with the station:
// it queues update and ack messages, flushes them to all clients, and routes
// client requests to the player and the rank store.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stwalsh4118/airwave/internal/faults"
	"github.com/stwalsh4118/airwave/internal/logger"
	"github.com/stwalsh4118/airwave/internal/metrics"
	"github.com/stwalsh4118/airwave/internal/models"
	"github.com/stwalsh4118/airwave/internal/player"
)

const writeWait = 10 * time.Second

// ErrNoPlayer is returned by Serve before SetPlayer has been called
var ErrNoPlayer = errors.New("broadcast hub has no player")

// Conn is a message-oriented client connection. *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Player is the playback state the hub reports and controls
type Player interface {
	Playing() (models.Track, bool)
	Elapsed() float64
	Mode() player.Mode
	SetMode(m player.Mode)
}

// Ranker reads and records listener scores
type Ranker interface {
	Rank(trackID string) int
	SetRank(trackID string, rank int)
}

type client struct {
	id   uuid.UUID
	conn Conn
	mu   sync.Mutex
}

func (c *client) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Hub owns the connected clients and the outbound queue
type Hub struct {
	ranker  Ranker
	version string

	playerMu sync.RWMutex
	player   Player

	clientsMu sync.RWMutex
	clients   map[uuid.UUID]*client

	queueMu sync.Mutex
	queue   []any

	flushMu sync.Mutex
}

// NewHub creates a hub. The player is attached later with SetPlayer because
// the player itself notifies the hub.
func NewHub(ranker Ranker, version string) *Hub {
	return &Hub{
		ranker:  ranker,
		version: version,
		clients: make(map[uuid.UUID]*client),
	}
}

// SetPlayer attaches the playback state
func (h *Hub) SetPlayer(p Player) {
	h.playerMu.Lock()
	defer h.playerMu.Unlock()
	h.player = p
}

func (h *Hub) currentPlayer() Player {
	h.playerMu.RLock()
	defer h.playerMu.RUnlock()
	return h.player
}

// EnqueueUpdate queues an update for track with the given elapsed seconds
func (h *Hub) EnqueueUpdate(track models.Track, elapsed float64) {
	h.enqueue(newUpdate(track, h.ranker.Rank(track.ID), elapsed))
}

// EnqueueAck queues an ack message
func (h *Hub) EnqueueAck(key string, value any) {
	h.enqueue(newAck(key, value))
}

func (h *Hub) enqueue(msg any) {
	h.queueMu.Lock()
	defer h.queueMu.Unlock()
	h.queue = append(h.queue, msg)
}

// Pending returns the number of queued messages
func (h *Hub) Pending() int {
	h.queueMu.Lock()
	defer h.queueMu.Unlock()
	return len(h.queue)
}

// Flush sends every queued message, oldest first, to every client. A client
// that fails a write is skipped for that message and stays connected.
func (h *Hub) Flush() {
	h.flushMu.Lock()
	defer h.flushMu.Unlock()

	h.queueMu.Lock()
	pending := h.queue
	h.queue = nil
	h.queueMu.Unlock()

	if len(pending) == 0 {
		return
	}

	clients := h.snapshot()
	for _, msg := range pending {
		for _, c := range clients {
			if err := c.write(msg); err != nil {
				metrics.SocketWriteFailures.Inc()
				logger.Log.Warn().
					Err(faults.New(faults.KindClientWrite, "write failed", err)).
					Str("client_id", c.id.String()).
					Msg("Failed to send message to client")
			}
		}
	}
}

func (h *Hub) snapshot() []*client {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	out := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Serve registers conn, sends it the current state and then handles its
// messages until the connection fails or ctx is cancelled. The connection is
// closed on return.
func (h *Hub) Serve(ctx context.Context, conn Conn) error {
	p := h.currentPlayer()
	if p == nil {
		conn.Close()
		return ErrNoPlayer
	}

	c := &client{id: uuid.New(), conn: conn}
	if err := h.register(c, p); err != nil {
		h.unregister(c)
		conn.Close()
		return fmt.Errorf("failed to send initial state: %w", err)
	}
	defer func() {
		h.unregister(c)
		conn.Close()
	}()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg InboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Warn().
					Err(err).
					Str("client_id", c.id.String()).
					Msg("Socket closed unexpectedly")
			}
			return nil
		}
		h.Handle(msg)
	}
}

// register adds c and sends version, mode and the playing track directly.
// The client's write lock is held throughout so a concurrent Flush cannot
// overtake the initial messages.
func (h *Hub) register(c *client, p Player) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h.clientsMu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.clientsMu.Unlock()
	metrics.SocketClients.Set(float64(count))

	logger.Log.Info().
		Str("client_id", c.id.String()).
		Int("clients", count).
		Msg("Client connected")

	initial := []any{
		newAck(KeyVersion, h.version),
		newAck(KeyNext, p.Mode()),
	}
	if track, ok := p.Playing(); ok {
		initial = append(initial, newUpdate(track, h.ranker.Rank(track.ID), p.Elapsed()))
	}

	for _, msg := range initial {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		if err := c.conn.WriteJSON(msg); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub) unregister(c *client) {
	h.clientsMu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	count := len(h.clients)
	h.clientsMu.Unlock()

	if !ok {
		return
	}
	metrics.SocketClients.Set(float64(count))
	logger.Log.Info().
		Str("client_id", c.id.String()).
		Int("clients", count).
		Msg("Client disconnected")
}

// Handle routes one inbound message. Replies go through the queue so every
// client sees them.
func (h *Hub) Handle(msg InboundMessage) {
	p := h.currentPlayer()
	if p == nil {
		return
	}

	switch msg.Key {
	case KeyNext:
		var v int
		if err := json.Unmarshal(msg.Value, &v); err != nil {
			logger.Log.Warn().Err(err).Str("key", msg.Key).Msg("Malformed message value")
			return
		}
		mode, err := player.ParseMode(v)
		if err != nil {
			logger.Log.Warn().Err(err).Msg("Ignoring mode request")
			return
		}
		p.SetMode(mode)
		h.EnqueueAck(KeyNext, p.Mode())

	case KeyScore:
		var v int
		if err := json.Unmarshal(msg.Value, &v); err != nil {
			logger.Log.Warn().Err(err).Str("key", msg.Key).Msg("Malformed message value")
			return
		}
		track, ok := p.Playing()
		if !ok {
			logger.Log.Warn().Int("score", v).Msg("Score received with nothing playing")
			return
		}
		h.ranker.SetRank(track.ID, v)
		logger.Log.Info().
			Str("track_id", track.ID).
			Int("rank", v).
			Msg("Rank updated")
		h.EnqueueAck(KeyScore, v)

	case KeyTime:
		h.EnqueueAck(KeyTime, p.Elapsed())

	default:
		logger.Log.Warn().
			Str("key", msg.Key).
			Str("value", string(msg.Value)).
			Msg("Unknown incoming message")
	}
}

// Close disconnects every client
func (h *Hub) Close() {
	for _, c := range h.snapshot() {
		c.conn.Close()
	}
}
