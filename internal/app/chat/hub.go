package chat

import (
	"sync"

	"github.com/rs/zerolog"

	"duochat/internal/pkg/logx"
)

type clientSet map[*Client]struct{}

// Hub is the registry of live connections, indexed by user and by room channel.
// A client's send channel is closed only by Unregister, under the write lock,
// and every delivery happens under the read lock after checking registration,
// so nothing is ever sent on a closed channel.
type Hub struct {
	mu       sync.RWMutex
	clients  clientSet
	byUser   map[string]clientSet
	channels map[string]clientSet

	logger zerolog.Logger
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients:  make(clientSet),
		byUser:   make(map[string]clientSet),
		channels: make(map[string]clientSet),
		logger:   logx.Component("Hub"),
	}
}

// Register adds c to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	if h.byUser[c.UserID()] == nil {
		h.byUser[c.UserID()] = make(clientSet)
	}
	h.byUser[c.UserID()][c] = struct{}{}

	h.logger.Debug().Str("user_id", c.UserID()).Int("total_clients", len(h.clients)).Msg("Client registered.")
}

// Unregister removes c from every index and closes its send channel.
// It reports whether c was registered.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}

	delete(h.clients, c)
	if set := h.byUser[c.UserID()]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, c.UserID())
		}
	}
	for roomID := range c.rooms {
		if set := h.channels[roomID]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.channels, roomID)
			}
		}
	}
	close(c.send)

	h.logger.Debug().Str("user_id", c.UserID()).Int("total_clients", len(h.clients)).Msg("Client unregistered.")
	return true
}

// Join subscribes c to the channel of roomID. Unregistered clients are ignored.
func (h *Hub) Join(c *Client, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	h.join(c, roomID)
	return true
}

// JoinUser subscribes every live connection of userID to roomID.
func (h *Hub) JoinUser(userID, roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.byUser[userID] {
		h.join(c, roomID)
	}
	return len(h.byUser[userID])
}

func (h *Hub) join(c *Client, roomID string) {
	if h.channels[roomID] == nil {
		h.channels[roomID] = make(clientSet)
	}
	h.channels[roomID][c] = struct{}{}
	c.rooms[roomID] = struct{}{}
}

// Broadcast delivers msg to every connection joined to roomID.
func (h *Hub) Broadcast(roomID string, msg []byte) {
	h.mu.RLock()
	slow := h.deliver(h.channels[roomID], msg)
	h.mu.RUnlock()

	h.dropSlow(slow)
}

// BroadcastAll delivers msg to every connection.
func (h *Hub) BroadcastAll(msg []byte) {
	h.mu.RLock()
	slow := h.deliver(h.clients, msg)
	h.mu.RUnlock()

	h.dropSlow(slow)
}

// SendToUser delivers msg to every connection of userID.
func (h *Hub) SendToUser(userID string, msg []byte) {
	h.mu.RLock()
	slow := h.deliver(h.byUser[userID], msg)
	h.mu.RUnlock()

	h.dropSlow(slow)
}

// Send delivers msg to c alone.
func (h *Hub) Send(c *Client, msg []byte) {
	h.mu.RLock()
	var slow []*Client
	if _, ok := h.clients[c]; ok {
		slow = h.deliver(clientSet{c: {}}, msg)
	}
	h.mu.RUnlock()

	h.dropSlow(slow)
}

// NotifyPresence announces a presence change to every connection.
func (h *Hub) NotifyPresence(userID string, online bool) {
	msg, err := Encode(TypePresence, PresencePayload{UserID: userID, Online: online})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode presence event.")
		return
	}
	h.BroadcastAll(msg)
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Subscribers returns the number of connections joined to roomID.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[roomID])
}

// Shutdown unregisters every connection, which ends their write pumps.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.Unregister(c)
	}
	h.logger.Info().Int("closed", len(all)).Msg("Hub shutdown complete.")
}

// deliver must be called with at least the read lock held. It returns the
// clients whose queues were full.
func (h *Hub) deliver(targets clientSet, msg []byte) []*Client {
	var slow []*Client
	for c := range targets {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	return slow
}

func (h *Hub) dropSlow(slow []*Client) {
	for _, c := range slow {
		h.logger.Warn().
			Str("user_id", c.UserID()).
			Int("queue_len", len(c.send)).
			Msg("Client send queue full, dropping connection.")
		h.Unregister(c)
	}
}
