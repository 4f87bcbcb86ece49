package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagServer   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "mesh",
	Short: "Full-mesh video room participant",
	Long: `mesh joins a room on a signaling relay and keeps a direct WebRTC link to
every other participant. The relay only carries connection setup and side
channel events; media flows peer to peer.`,
}

// Execute runs the root command. Errors are printed once, without usage.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("✗ "+err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "relay websocket url (default $MESH_SERVER_URL or ws://localhost:3001/ws)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: trace, debug, info, warn, error")
}
