package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Manishrsh/video-chat-connectify-app/internal/adapter/driven/gateway/ws"
	handler "github.com/Manishrsh/video-chat-connectify-app/internal/adapter/driving/http"
	"github.com/Manishrsh/video-chat-connectify-app/internal/config"
	"github.com/Manishrsh/video-chat-connectify-app/internal/core/service"
	"github.com/Manishrsh/video-chat-connectify-app/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if err := logging.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatal().Err(err).Msg("Invalid log settings")
	}

	hub := ws.NewHub()
	relay := service.NewRelay(hub)
	h := handler.NewHandler(relay, hub, cfg)

	go relay.Run()

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: h.NewRouter(),
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Strs("allowed_origins", cfg.AllowedOrigins).Msg("Starting relay")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Info().Msg("Shutting down relay...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Websocket handlers are hijacked and not waited on by Shutdown, so the
	// hub closes them first.
	hub.Stop()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	stats := relay.Stats()
	relay.Stop()

	log.Info().Interface("stats", stats).Msg("Relay exited")
}
