package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Log configures the zerolog output of either binary.
type Log struct {
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

// Server is the relay configuration, read from the environment only.
type Server struct {
	ListenAddr      string        `env:"LISTEN_ADDR"       envDefault:":3001"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS"   envSeparator:","`
	MaxMessageBytes int64         `env:"MAX_MESSAGE_BYTES" envDefault:"65536"`
	WriteWait       time.Duration `env:"WS_WRITE_WAIT"     envDefault:"10s"`
	PongWait        time.Duration `env:"WS_PONG_WAIT"      envDefault:"60s"`
	SendBuffer      int           `env:"SEND_BUFFER"       envDefault:"256"`
	// Envelopes over this per-connection rate are dropped.
	MaxEnvelopesPerSecond float64       `env:"MAX_ENVELOPES_PER_SECOND" envDefault:"50"`
	EnvelopeBurst         int           `env:"ENVELOPE_BURST"           envDefault:"100"`
	ShutdownTimeout       time.Duration `env:"SHUTDOWN_TIMEOUT"         envDefault:"5s"`

	Log Log
}

// PingPeriod must stay below PongWait so the peer's pong arrives in time.
func (c Server) PingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

func (c Server) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("LISTEN_ADDR is required"))
	}
	if c.MaxMessageBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_MESSAGE_BYTES must be positive, got %d", c.MaxMessageBytes))
	}
	if c.WriteWait <= 0 {
		errs = append(errs, fmt.Errorf("WS_WRITE_WAIT must be positive, got %s", c.WriteWait))
	}
	if c.PongWait <= 0 {
		errs = append(errs, fmt.Errorf("WS_PONG_WAIT must be positive, got %s", c.PongWait))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("SEND_BUFFER must be positive, got %d", c.SendBuffer))
	}
	if c.MaxEnvelopesPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("MAX_ENVELOPES_PER_SECOND must be positive, got %v", c.MaxEnvelopesPerSecond))
	}
	if c.EnvelopeBurst <= 0 {
		errs = append(errs, fmt.Errorf("ENVELOPE_BURST must be positive, got %d", c.EnvelopeBurst))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout))
	}
	return errors.Join(errs...)
}

func LoadServer() (Server, error) {
	return loadServer(nil)
}

// loadServer reads from environ when it is non-nil, from the process
// environment otherwise.
func loadServer(environ map[string]string) (Server, error) {
	var cfg Server
	if err := env.ParseWithOptions(&cfg, options(environ)); err != nil {
		return Server{}, fmt.Errorf("parse relay config: %w", err)
	}
	for i, o := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(o)
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Default ICE servers, the same public pair the browser client shipped with.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Client configures a mesh participant.
type Client struct {
	ServerURL    string   `env:"MESH_SERVER_URL"    envDefault:"ws://localhost:3001/ws"`
	STUNServers  []string `env:"MESH_STUN_SERVERS"  envSeparator:","`
	TURNServer   string   `env:"MESH_TURN_SERVER"`
	TURNUsername string   `env:"MESH_TURN_USERNAME"`
	TURNPassword string   `env:"MESH_TURN_PASSWORD"`
	DisplayName  string   `env:"MESH_DISPLAY_NAME"`

	ReconnectInitial time.Duration `env:"MESH_RECONNECT_INITIAL" envDefault:"500ms"`
	ReconnectMax     time.Duration `env:"MESH_RECONNECT_MAX"     envDefault:"10s"`

	// AnswerTimeout closes a calling link whose offer is never answered.
	AnswerTimeout time.Duration `env:"MESH_ANSWER_TIMEOUT" envDefault:"30s"`

	Log Log
}

// Options carries command line overrides. Zero values mean "not set".
type Options struct {
	ServerURL    string
	STUNServers  []string
	TURNServer   string
	TURNUsername string
	TURNPassword string
	DisplayName  string
	LogLevel     string
}

// LoadClient resolves flags, then environment, then defaults.
func LoadClient(opts Options) (Client, error) {
	return loadClient(opts, nil)
}

func loadClient(opts Options, environ map[string]string) (Client, error) {
	var cfg Client
	if err := env.ParseWithOptions(&cfg, options(environ)); err != nil {
		return Client{}, fmt.Errorf("parse client config: %w", err)
	}

	if opts.ServerURL != "" {
		cfg.ServerURL = opts.ServerURL
	}
	if len(opts.STUNServers) > 0 {
		cfg.STUNServers = opts.STUNServers
	}
	if len(cfg.STUNServers) == 0 {
		cfg.STUNServers = append([]string(nil), DefaultSTUNServers...)
	}
	if opts.TURNServer != "" {
		cfg.TURNServer = opts.TURNServer
	}
	if opts.TURNUsername != "" {
		cfg.TURNUsername = opts.TURNUsername
	}
	if opts.TURNPassword != "" {
		cfg.TURNPassword = opts.TURNPassword
	}
	if opts.DisplayName != "" {
		cfg.DisplayName = opts.DisplayName
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = defaultDisplayName()
	}

	if err := cfg.Validate(); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

func (c Client) Validate() error {
	var errs []error
	if !strings.HasPrefix(c.ServerURL, "ws://") && !strings.HasPrefix(c.ServerURL, "wss://") {
		errs = append(errs, fmt.Errorf("server url must be ws:// or wss://, got %q", c.ServerURL))
	}
	if c.TURNServer != "" && (c.TURNUsername == "" || c.TURNPassword == "") {
		errs = append(errs, errors.New("TURN server requires username and password"))
	}
	if c.ReconnectInitial <= 0 || c.ReconnectMax < c.ReconnectInitial {
		errs = append(errs, fmt.Errorf("invalid reconnect bounds %s..%s", c.ReconnectInitial, c.ReconnectMax))
	}
	if c.AnswerTimeout <= 0 {
		errs = append(errs, fmt.Errorf("answer timeout must be positive, got %s", c.AnswerTimeout))
	}
	return errors.Join(errs...)
}

func defaultDisplayName() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "guest"
}

func options(environ map[string]string) env.Options {
	if environ == nil {
		return env.Options{}
	}
	return env.Options{Environment: environ}
}
