// Package realtime is the push channel: a websocket hub keyed by session
// code. It implements the engine's Broadcaster; the engine never sees
// websockets or Redis, only Publish.
package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait (seconds) drive the heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// EventConnected is sent to a client right after it joins, carrying the
// respondent identity it must use in STUDENT_ANSWER.
const EventConnected = "CONNECTED"

// EventCurrentQuestion answers a GET_STATE pull over the socket.
const EventCurrentQuestion = "CURRENT_QUESTION"

// StateFunc returns the pull-path snapshot for a session code. ok is false
// when the code no longer resolves.
type StateFunc func(code string) (payload any, ok bool)

// Bridge fans events out across instances. Optional; nil means local-only.
type Bridge interface {
	Publish(code, event string, payload []byte) error
	Subscribe(code string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains session code -> connected clients and broadcasts events.
// Delivery is best-effort: a client with a full buffer or a closed socket
// simply misses the event and recovers via the pull path.
type Hub struct {
	logger *zap.Logger
	bridge Bridge
	state  StateFunc

	mu    sync.RWMutex
	rooms map[string]map[string]*Client
	subs  map[string]func() // cancel bridge subscription per code
}

// NewHub creates a websocket hub. bridge may be nil.
func NewHub(logger *zap.Logger, bridge Bridge, state StateFunc) *Hub {
	return &Hub{
		logger: logger,
		bridge: bridge,
		state:  state,
		rooms:  make(map[string]map[string]*Client),
		subs:   make(map[string]func()),
	}
}

// Publish implements game.Broadcaster: marshal once, deliver to every local
// subscriber of the code, and forward over the bridge for other instances.
func (h *Hub) Publish(code, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("broadcast payload marshal", zap.String("event", event), zap.Error(err))
		return
	}
	h.deliver(code, event, data)
	if h.bridge != nil {
		if err := h.bridge.Publish(code, event, data); err != nil {
			h.logger.Warn("bridge publish", zap.String("event", event), zap.Error(err))
		}
	}
}

// deliver sends to local clients only. The room map is snapshotted under the
// read lock; iterating it unlocked would race with register/unregister.
func (h *Hub) deliver(code, event string, data []byte) {
	msg := Message{Event: event, Data: data}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[code]))
	for _, c := range h.rooms[code] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, drop; the client catches up via GET_STATE
		}
	}
}

// register adds a client to its session room, starting a bridge subscription
// when it is the room's first client.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.Code] == nil {
		h.rooms[c.Code] = make(map[string]*Client)
		if h.bridge != nil {
			cancel, err := h.bridge.Subscribe(c.Code, func(event string, payload []byte) {
				h.deliver(c.Code, event, payload)
			})
			if err != nil {
				h.logger.Warn("bridge subscribe", zap.String("code", c.Code), zap.Error(err))
			} else {
				h.subs[c.Code] = cancel
			}
		}
	}
	h.rooms[c.Code][c.ID] = c
	h.mu.Unlock()

	h.sendToClient(c.Code, c.ID, EventConnected, map[string]string{"respondentId": c.ID})
	h.logger.Debug("client joined session", zap.String("client_id", c.ID), zap.String("code", c.Code))
}

// unregister removes a client, cancelling the bridge subscription when the
// room empties.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if room, ok := h.rooms[c.Code]; ok {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(h.rooms, c.Code)
			if cancel, ok := h.subs[c.Code]; ok {
				cancel()
				delete(h.subs, c.Code)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left session", zap.String("client_id", c.ID), zap.String("code", c.Code))
}

// sendToClient sends one message to a single client in a session.
func (h *Hub) sendToClient(code, clientID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	c := h.rooms[code][clientID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	select {
	case c.send <- Message{Event: event, Data: data}:
	default:
	}
}

// AudienceCount returns the number of clients joined to a session code.
func (h *Hub) AudienceCount(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[code])
}
