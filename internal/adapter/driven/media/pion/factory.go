// Package pion implements the mesh transport on top of pion/webrtc.
package pion

import (
	"fmt"

	"github.com/Manishrsh/video-chat-connectify-app/internal/config"
	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
	"github.com/Manishrsh/video-chat-connectify-app/internal/core/port"
	"github.com/pion/logging"
	"github.com/pion/transport/v4"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Options struct {
	ICEServers []webrtc.ICEServer
	// Net replaces the host network, used with vnet in tests.
	Net           transport.Net
	LoggerFactory logging.LoggerFactory
}

// ICEServers builds the STUN and TURN list from client config.
func ICEServers(cfg config.Client) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if len(cfg.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: cfg.STUNServers})
	}
	if cfg.TURNServer != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{cfg.TURNServer},
			Username:   cfg.TURNUsername,
			Credential: cfg.TURNPassword,
		})
	}
	return servers
}

// Factory opens one pion PeerConnection per remote participant.
type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

func NewFactory(opts Options) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	se := webrtc.SettingEngine{}
	if opts.LoggerFactory != nil {
		se.LoggerFactory = opts.LoggerFactory
	}
	if opts.Net != nil {
		se.SetNet(opts.Net)
	}

	return &Factory{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(m),
			webrtc.WithSettingEngine(se),
		),
		config: webrtc.Configuration{ICEServers: opts.ICEServers},
	}, nil
}

func (f *Factory) NewPeerConnection(remote domain.SessionID) (port.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, err
	}

	p := &peerConnection{
		pc:  pc,
		log: log.With().Str("remote_id", remote.String()).Logger(),
	}
	if err := p.openDataChannel(); err != nil {
		_ = pc.Close()
		return nil, err
	}
	return p, nil
}
