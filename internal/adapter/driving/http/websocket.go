package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// WSClient is one relay-side control connection. It implements port.Client.
type WSClient struct {
	id   domain.SessionID
	conn *websocket.Conn
	send chan domain.Envelope
	done chan struct{}
	once sync.Once
	log  zerolog.Logger
}

func newWSClient(id domain.SessionID, conn *websocket.Conn, buffer int) *WSClient {
	return &WSClient{
		id:   id,
		conn: conn,
		send: make(chan domain.Envelope, buffer),
		done: make(chan struct{}),
		log:  log.With().Str("session_id", id.String()).Logger(),
	}
}

func (c *WSClient) ID() domain.SessionID {
	return c.id
}

// Send queues env without blocking. A full buffer means a slow consumer and
// the envelope is dropped.
func (c *WSClient) Send(env domain.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		c.log.Warn().Str("type", string(env.Type)).Msg("Send buffer full, dropping envelope")
		return false
	}
}

func (c *WSClient) Close() error {
	c.once.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *WSClient) writePump(writeWait, pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				c.log.Warn().Err(err).Msg("Error writing envelope")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// HTTP handler
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := newWSClient(domain.NewSessionID(), conn, h.cfg.SendBuffer)
	l := client.log
	if !h.Hub.Register(client) {
		conn.Close()
		return
	}
	go client.writePump(h.cfg.WriteWait, h.cfg.PingPeriod())

	l.Info().Str("remote_addr", r.RemoteAddr).Msg("New client connected")
	h.Relay.Connect(client.id, r.URL.Query().Get("name"))

	defer func() {
		h.Relay.Disconnect(client.id)
		h.Hub.Unregister(client)
		client.Close()
		l.Info().Msg("Client disconnected")
	}()

	limiter := rate.NewLimiter(rate.Limit(h.cfg.MaxEnvelopesPerSecond), h.cfg.EnvelopeBurst)

	conn.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				l.Warn().Int64("limit", h.cfg.MaxMessageBytes).Msg("Message too big, closing")
			case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure):
				l.Error().Err(err).Msg("Unexpected close error")
			}
			return
		}

		if !limiter.Allow() {
			l.Warn().Msg("Envelope rate exceeded, dropping")
			continue
		}

		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			l.Debug().Err(err).Msg("Malformed envelope")
			reply, _ := domain.NewEnvelope(domain.TypeError, domain.ErrorPayload{Error: domain.ErrMalformedEnvelope.Error()})
			client.Send(reply)
			continue
		}
		// Sender identity comes from the connection only.
		env.From = ""

		if err := h.Relay.Handle(r.Context(), client.id, env); err != nil {
			l.Warn().Err(err).Msg("Relay unavailable")
			return
		}
	}
}
