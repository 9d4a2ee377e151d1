// internal/server/hub.go
package server

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/palacecards/palace/service/internal/game"
	log "github.com/sirupsen/logrus"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

// client is one websocket connection of one player.
type client struct {
	gameID   uuid.UUID
	playerID uuid.UUID
	conn     *websocket.Conn
	send     chan game.GameEvent
}

func newClient(gameID, playerID uuid.UUID, conn *websocket.Conn) *client {
	return &client{
		gameID:   gameID,
		playerID: playerID,
		conn:     conn,
		send:     make(chan game.GameEvent, sendBuffer),
	}
}

// writeLoop drains the send queue to the socket until the queue is closed
// or a write fails.
func (c *client) writeLoop() {
	for ev := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := wsjson.Write(ctx, c.conn, ev)
		cancel()
		if err != nil {
			log.WithError(err).Debugf("Game %s: Write to player %s failed.", c.gameID, c.playerID)
			c.conn.Close(websocket.StatusInternalError, "write failed")
			// Keep draining so broadcasters never block on a dead client.
			for range c.send {
			}
			return
		}
	}
}

// hub tracks the live connection of every player of every game. Games call
// into it while holding their own lock, so it never blocks: a client whose
// queue is full misses the event and resyncs on its next request.
type hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[uuid.UUID]*client // game -> player -> client
}

func newHub() *hub {
	return &hub{clients: make(map[uuid.UUID]map[uuid.UUID]*client)}
}

// register makes c the player's live connection and returns the one it
// replaced, if any.
func (h *hub) register(c *client) *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	players := h.clients[c.gameID]
	if players == nil {
		players = make(map[uuid.UUID]*client)
		h.clients[c.gameID] = players
	}
	prev := players[c.playerID]
	players[c.playerID] = c
	return prev
}

// unregister removes c and closes its queue. It reports whether c was still
// the player's live connection.
func (h *hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	current := false
	if players := h.clients[c.gameID]; players != nil && players[c.playerID] == c {
		delete(players, c.playerID)
		if len(players) == 0 {
			delete(h.clients, c.gameID)
		}
		current = true
	}
	close(c.send)
	return current
}

func (h *hub) broadcast(gameID uuid.UUID, ev game.GameEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients[gameID] {
		c.enqueue(ev)
	}
}

func (h *hub) sendTo(gameID, playerID uuid.UUID, ev game.GameEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c := h.clients[gameID][playerID]; c != nil {
		c.enqueue(ev)
	}
}

// closeGame disconnects every client of a game.
func (h *hub) closeGame(gameID uuid.UUID, reason string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients[gameID] {
		go c.conn.Close(websocket.StatusNormalClosure, reason)
	}
}

// enqueue must be called with the hub's lock held.
func (c *client) enqueue(ev game.GameEvent) {
	select {
	case c.send <- ev:
	default:
		log.Warnf("Game %s: Dropping %s for player %s (queue full).", c.gameID, ev.Type, c.playerID)
	}
}
