package ws

import (
	"sync"

	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
	"github.com/Manishrsh/video-chat-connectify-app/internal/core/port"
	"github.com/rs/zerolog/log"
)

// Hub tracks live control connections by session. It implements
// port.Gateway for the relay.
type Hub struct {
	mu      sync.RWMutex
	clients map[domain.SessionID]port.Client
	closed  bool
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[domain.SessionID]port.Client),
	}
}

// Register reports false once the hub is closed.
func (h *Hub) Register(c port.Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.ID()] = c
	log.Debug().Str("session_id", c.ID().String()).Int("count", len(h.clients)).Msg("Client registered")
	return true
}

// Unregister only removes c itself, never a newer connection under the same id.
func (h *Hub) Unregister(c port.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[c.ID()]; ok && cur == c {
		delete(h.clients, c.ID())
		log.Debug().Str("session_id", c.ID().String()).Int("count", len(h.clients)).Msg("Client unregistered")
	}
}

// Deliver never blocks: a missing or congested recipient loses the envelope.
func (h *Hub) Deliver(to domain.SessionID, env domain.Envelope) bool {
	h.mu.RLock()
	c, ok := h.clients[to]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return c.Send(env)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop disconnects every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, client := range h.clients {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Str("session_id", id.String()).Msg("Error closing client connection")
		}
		delete(h.clients, id)
	}
}
