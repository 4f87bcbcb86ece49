package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/Manishrsh/video-chat-connectify-app/internal/config"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show relay health and counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClient(config.Options{ServerURL: flagServer, LogLevel: flagLogLevel})
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		h, err := fetchHealth(ctx, cfg.ServerURL)
		if err != nil {
			return err
		}
		renderHealth(cfg.ServerURL, h)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type health struct {
	Status    string `json:"status"`
	Rooms     int    `json:"rooms"`
	Sessions  int    `json:"sessions"`
	Forwarded uint64 `json:"forwarded"`
	Dropped   uint64 `json:"dropped"`
}

// healthURL maps the websocket endpoint to the relay's /health.
func healthURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/health"
	u.RawQuery = ""
	return u.String(), nil
}

func fetchHealth(ctx context.Context, serverURL string) (health, error) {
	endpoint, err := healthURL(serverURL)
	if err != nil {
		return health{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return health{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return health{}, fmt.Errorf("relay unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return health{}, fmt.Errorf("relay answered %s", resp.Status)
	}

	var h health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return health{}, fmt.Errorf("decode health: %w", err)
	}
	return h, nil
}

func renderHealth(server string, h health) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(server)
	t.AppendHeader(table.Row{"Status", "Rooms", "Sessions", "Forwarded", "Dropped"})
	t.AppendRow(table.Row{h.Status, h.Rooms, h.Sessions, h.Forwarded, h.Dropped})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignCenter},
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	t.Render()
}
