package http

import (
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/Manishrsh/video-chat-connectify-app/internal/adapter/driven/gateway/ws"
	"github.com/Manishrsh/video-chat-connectify-app/internal/config"
	"github.com/Manishrsh/video-chat-connectify-app/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	Relay *service.Relay
	Hub   *ws.Hub

	cfg      config.Server
	upgrader websocket.Upgrader
}

func NewHandler(relay *service.Relay, hub *ws.Hub, cfg config.Server) *Handler {
	h := &Handler{
		Relay: relay,
		Hub:   hub,
		cfg:   cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("req_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request")
	}))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Get("/ws", h.ServeWS)

	return r
}

type healthResponse struct {
	Status string `json:"status"`
	service.Stats
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(healthResponse{Status: "ok", Stats: h.Relay.Stats()}); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Writing health response")
	}
}

// checkOrigin allows everything when no allowlist is configured. Requests
// without an Origin header come from non-browser clients and are accepted.
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return slices.Contains(h.cfg.AllowedOrigins, u.Scheme+"://"+u.Host)
}
