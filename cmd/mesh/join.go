package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	callmem "github.com/Manishrsh/video-chat-connectify-app/internal/adapter/driven/call/memory"
	"github.com/Manishrsh/video-chat-connectify-app/internal/adapter/driven/gateway/ws"
	"github.com/Manishrsh/video-chat-connectify-app/internal/adapter/driven/media/pion"
	persistmem "github.com/Manishrsh/video-chat-connectify-app/internal/adapter/driven/persistence/memory"
	"github.com/Manishrsh/video-chat-connectify-app/internal/adapter/driven/transcribe/lines"
	"github.com/Manishrsh/video-chat-connectify-app/internal/config"
	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
	"github.com/Manishrsh/video-chat-connectify-app/internal/core/mesh"
	"github.com/Manishrsh/video-chat-connectify-app/internal/core/port"
	"github.com/Manishrsh/video-chat-connectify-app/internal/logging"
	"github.com/Manishrsh/video-chat-connectify-app/internal/supervise"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagName           string
	flagSTUN           []string
	flagTURN           string
	flagTURNUser       string
	flagTURNPass       string
	flagLoopback       bool
	flagTranscribeFrom string
	flagTranscribePace time.Duration
	flagScreenFor      time.Duration
)

var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Join a room and stay in it until interrupted",
	Long: `Join a room on the relay, connect to every participant already there and
accept connections from everyone who joins later.

Lines typed on stdin are sent as chat; lines starting with / are commands
(type /help). A lost relay connection is retried with backoff; the room is
joined again with a fresh mesh.

Examples:
  mesh join standup
  mesh join standup --name Alice --server wss://relay.example/ws
  mesh join standup --loopback
  mesh join standup --transcribe-from /tmp/captions.fifo`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJoin(cmd.Context(), domain.RoomID(args[0]))
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagName, "name", "n", "", "display name (default $MESH_DISPLAY_NAME or $USER)")
	joinCmd.Flags().StringSliceVarP(&flagSTUN, "stun", "s", nil, "STUN server urls")
	joinCmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "TURN server url")
	joinCmd.Flags().StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	joinCmd.Flags().StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	joinCmd.Flags().BoolVar(&flagLoopback, "loopback", false, "negotiate with in-process placeholder connections instead of WebRTC")
	joinCmd.Flags().StringVar(&flagTranscribeFrom, "transcribe-from", "", "file or pipe whose lines are published as live captions")
	joinCmd.Flags().DurationVar(&flagTranscribePace, "transcribe-pace", 2*time.Second, "pause between captions")
	joinCmd.Flags().DurationVar(&flagScreenFor, "screen-for", 0, "end each screen share after this long")
}

type participant struct {
	cfg   config.Client
	room  domain.RoomID
	coord *mesh.Coordinator
	// joined is false until the first join of the current connection.
	joined atomic.Bool
}

func runJoin(parent context.Context, room domain.RoomID) error {
	cfg, err := config.LoadClient(config.Options{
		ServerURL:    flagServer,
		STUNServers:  flagSTUN,
		TURNServer:   flagTURN,
		TURNUsername: flagTURNUser,
		TURNPassword: flagTURNPass,
		DisplayName:  flagName,
		LogLevel:     flagLogLevel,
	})
	if err != nil {
		return err
	}
	if err := logging.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory, source, err := transport(cfg)
	if err != nil {
		return err
	}
	p := &participant{
		cfg:   cfg,
		room:  room,
		coord: mesh.NewCoordinator(factory, source, persistmem.NewMessageRepository()),
	}
	p.coord.OnData(p.data)
	p.coord.SetAnswerTimeout(cfg.AnswerTimeout)

	fmt.Println(titleStyle.Render(fmt.Sprintf("Joining %s as %s", room, cfg.DisplayName)))
	fmt.Println(systemStyle.Render("Type /help for commands."))

	if flagTranscribeFrom != "" {
		go p.transcribe(ctx, flagTranscribeFrom)
	}
	go p.readCommands(ctx, stop)

	policy := supervise.Policy{
		Initial:    cfg.ReconnectInitial,
		Max:        cfg.ReconnectMax,
		ResetAfter: 30 * time.Second,
	}
	err = supervise.Run(ctx, policy, "control channel", p.session)

	leaveCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if lerr := p.coord.Leave(leaveCtx); lerr != nil && !errors.Is(lerr, domain.ErrNotJoined) {
		log.Debug().Err(lerr).Msg("Leave")
	}
	if errors.Is(err, context.Canceled) {
		fmt.Println(successStyle.Render("✓ Left " + string(room)))
		return nil
	}
	return err
}

func transport(cfg config.Client) (port.PeerFactory, port.MediaSource, error) {
	if flagLoopback {
		return callmem.NewFactory(), &callmem.Source{}, nil
	}
	f, err := pion.NewFactory(pion.Options{
		ICEServers:    pion.ICEServers(cfg),
		LoggerFactory: logging.NewPionFactory(log.Logger),
	})
	if err != nil {
		return nil, nil, err
	}
	return f, &pion.Synthetic{StreamID: cfg.DisplayName, ScreenFor: flagScreenFor}, nil
}

// session runs one control connection. It returns when the connection is
// lost, and the supervisor dials again.
func (p *participant) session(ctx context.Context) error {
	u, err := url.Parse(p.cfg.ServerURL)
	if err != nil {
		return supervise.Permanent(err)
	}
	q := u.Query()
	q.Set("name", p.cfg.DisplayName)
	u.RawQuery = q.Encode()

	conn, err := ws.Dial(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if room, _, wasJoined := p.coord.Reset(); wasJoined {
		system("Reconnected, rejoining %s", room)
	}
	p.coord.Attach(conn)
	p.joined.Store(false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-conn.Incoming():
			if !ok {
				system("Lost connection to relay")
				return ws.ErrConnClosed
			}
			if err := p.coord.HandleEnvelope(ctx, env); err != nil {
				log.Warn().Err(err).Str("type", string(env.Type)).Msg("Envelope not applied")
			}
			if err := p.show(ctx, env); err != nil {
				return err
			}
		}
	}
}

// show prints what the user should see and joins once the relay has
// assigned a session.
func (p *participant) show(ctx context.Context, env domain.Envelope) error {
	switch env.Type {
	case domain.TypeSession:
		if p.joined.Swap(true) {
			return nil
		}
		if err := p.coord.Join(ctx, p.room, p.cfg.DisplayName); err != nil {
			if errors.Is(err, domain.ErrMediaUnavailable) {
				return supervise.Permanent(err)
			}
			return err
		}
	case domain.TypeExistingMembers:
		fmt.Println(rosterLine(p.coord.Roster(), p.coord.SideChannel().Hands()))
	case domain.TypeMemberJoined:
		var m domain.Member
		if env.Decode(&m) == nil {
			system("%s joined", m.DisplayName)
		}
	case domain.TypeMemberLeft:
		system("A participant left")
	case domain.TypeChatMessage:
		var msg domain.ChatMessage
		if env.Decode(&msg) == nil {
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			printChat(msg, p.cfg.DisplayName)
		}
	case domain.TypeTranscript:
		var t domain.Transcript
		if env.Decode(&t) == nil {
			printTranscript(t)
		}
	case domain.TypeHandRaise:
		var h domain.HandRaise
		if env.Decode(&h) == nil {
			verb := "lowered"
			if h.Raised {
				verb = "raised"
			}
			system("%s %s a hand", p.name(env.From), verb)
		}
	}
	return nil
}

func (p *participant) name(id domain.SessionID) string {
	for _, m := range p.coord.Roster() {
		if m.SessionID == id {
			return m.DisplayName
		}
	}
	return string(id)
}

func (p *participant) transcribe(ctx context.Context, path string) {
	tr := &lines.Transcriber{
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
		Pace: flagTranscribePace,
	}
	if err := p.coord.SideChannel().RunTranscriber(ctx, tr, supervise.DefaultPolicy); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("Transcription stopped")
	}
}

func (p *participant) data(from domain.SessionID, msg domain.DataMessage) {
	if msg.Kind == domain.DataKindPong {
		system("pong from %s in %s", p.name(from), time.Since(msg.SentAt).Round(time.Millisecond))
	}
}

func (p *participant) readCommands(ctx context.Context, quit context.CancelFunc) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := p.command(ctx, line, quit); err != nil {
			fmt.Println(errorStyle.Render("✗ " + err.Error()))
		}
	}
}

func (p *participant) chat(ctx context.Context, text, to string) error {
	msg, err := p.coord.SideChannel().SendChat(ctx, text, to)
	if err != nil {
		return err
	}
	printChat(*msg, p.cfg.DisplayName)
	return nil
}

func (p *participant) command(ctx context.Context, line string, quit context.CancelFunc) error {
	side := p.coord.SideChannel()
	if !strings.HasPrefix(line, "/") {
		return p.chat(ctx, line, domain.RecipientEveryone)
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/help":
		fmt.Println(helpText)
	case "/to":
		if len(fields) < 3 {
			return errors.New("usage: /to <name> <text>")
		}
		return p.chat(ctx, strings.Join(fields[2:], " "), fields[1])
	case "/mute":
		return p.coord.SetMuted(ctx, true)
	case "/unmute":
		return p.coord.SetMuted(ctx, false)
	case "/video":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			return errors.New("usage: /video on|off")
		}
		return p.coord.SetVideoOff(ctx, fields[1] == "off")
	case "/share":
		return p.coord.StartScreenShare(ctx)
	case "/unshare":
		return p.coord.StopScreenShare(ctx)
	case "/hand":
		return side.RaiseHand(ctx, true)
	case "/lower":
		return side.RaiseHand(ctx, false)
	case "/open":
		side.OpenPanel()
		msgs, err := side.Messages(ctx)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			printChat(m, p.cfg.DisplayName)
		}
	case "/close":
		side.ClosePanel()
	case "/ping":
		for _, l := range p.coord.Links() {
			msg := domain.DataMessage{Kind: domain.DataKindPing, SentAt: time.Now()}
			if err := p.coord.SendData(l.Remote, msg); err != nil {
				system("ping %s: %v", l.DisplayName, err)
			}
		}
	case "/links":
		fmt.Println(linksTable(p.coord.Links()))
	case "/who":
		fmt.Println(rosterLine(p.coord.Roster(), side.Hands()))
		if side.Unread() {
			fmt.Println(privateStyle.Render("Unread chat, /open to read"))
		}
	case "/leave", "/quit":
		quit()
	default:
		return fmt.Errorf("unknown command %s, try /help", fields[0])
	}
	return nil
}
