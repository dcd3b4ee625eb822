package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Huddle/internal/adapters/api"
	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/adapters/ws"
	"github.com/dkeye/Huddle/internal/call"
	"github.com/dkeye/Huddle/internal/chat"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/retry"
)

var errQuit = errors.New("quit")

const help = `commands:
  <text>    send a chat message
  /read     mark the conversation as read
  /mic      toggle microphone
  /cam      toggle camera
  /screen   toggle screen share
  /blur     toggle background blur
  /who      list remote streams
  /leave    leave the call
  /quit     exit`

func main() {
	conversation := flag.String("conversation", "", "conversation id to open")
	room := flag.String("room", "", "room key to join")
	verbose := flag.Bool("v", false, "log at the configured level instead of warn")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && *verbose {
		zerolog.SetGlobalLevel(lvl)
	}
	if *conversation == "" && *room == "" {
		fmt.Fprintln(os.Stderr, "usage: huddle -conversation <id> [-room <key>]")
		os.Exit(2)
	}

	creds := api.StaticCredentials(cfg.Auth.Token)
	client, err := api.NewClient(cfg.API.BaseURL, creds, cfg.API.Timeout)
	if err != nil {
		log.Fatal().Err(err).Msg("api client")
	}

	var transport *chat.Transport
	if *conversation != "" {
		transport = chat.NewTransport(chat.Options{
			Dialer: &ws.Dialer{
				BaseURL:    cfg.API.WSURL,
				PingPeriod: cfg.PingPeriod,
				ReadLimit:  cfg.ReadLimit,
			},
			History:     client,
			Receipts:    client,
			Credentials: creds,
			Retry:       retry.FromConfig(cfg.Chat.Reconnect),
			OnMessage:   printMessage,
			OnState: func(id domain.ConversationID, s chat.State) {
				fmt.Printf("* chat %s %s\n", id, s)
			},
		})
		defer transport.Close()
	}

	var session *call.Session
	if *room != "" {
		session = call.NewSession(domain.RoomKey(*room), call.Options{
			Tokens: client,
			NewEngine: rtc.NewFactory(rtc.Config{
				ICEServers: cfg.Call.ICEServers,
				Capture: rtc.CaptureConfig{
					AudioFile:  cfg.Capture.AudioFile,
					VideoFile:  cfg.Capture.VideoFile,
					ScreenFile: cfg.Capture.ScreenFile,
				},
			}),
			TokenTimeout: cfg.Call.TokenTimeout,
			JoinTimeout:  cfg.Call.JoinTimeout,
			PlayTimeout:  cfg.Call.PlayTimeout,
			OnEnd: func(reason error) {
				if reason != nil {
					fmt.Printf("* call ended: %v\n", reason)
					return
				}
				fmt.Println("* call ended")
			},
			OnUpdate: func(s call.Snapshot) {
				fmt.Printf("* call %s, %d remote streams\n", s.State, len(s.Participants))
			},
		})
		defer session.Leave(context.Background())
	}

	lines := make(chan string)
	go readLines(lines)

	g, gctx := errgroup.WithContext(ctx)
	if transport != nil {
		id := domain.ConversationID(*conversation)
		g.Go(func() error {
			for _, m := range transport.Bind(gctx, id) {
				printMessage(m)
			}
			return nil
		})
	}
	if session != nil {
		g.Go(func() error {
			if err := session.Start(gctx); err != nil {
				fmt.Printf("* call failed: %v\n", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		fmt.Println(help)
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return errQuit
				}
				if err := runCommand(gctx, line, transport, session); err != nil {
					return err
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		log.Error().Err(err).Msg("huddle exited")
	}
}

func readLines(out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		out <- sc.Text()
	}
}

func printMessage(m domain.ChatMessage) {
	name := m.SenderName
	if name == "" {
		name = m.SenderID.String()
	}
	fmt.Printf("[%s] %s: %s\n", m.Timestamp.Local().Format("15:04:05"), name, m.Content)
}

func runCommand(ctx context.Context, line string, transport *chat.Transport, session *call.Session) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		if transport == nil {
			fmt.Println("* no conversation open")
		} else if !transport.Send(line) {
			fmt.Println("* not sent: chat is not connected")
		}
		return nil
	}

	switch line {
	case "/quit":
		return errQuit
	case "/read":
		if transport != nil {
			transport.MarkAsRead(ctx, transport.Conversation())
		}
		return nil
	case "/help":
		fmt.Println(help)
		return nil
	}

	if session == nil {
		fmt.Println("* no call")
		return nil
	}
	switch line {
	case "/mic":
		fmt.Printf("* mic muted: %t\n", session.ToggleMic())
	case "/cam":
		fmt.Printf("* camera off: %t\n", session.ToggleCamera())
	case "/screen":
		fmt.Printf("* screen sharing: %t\n", session.ToggleScreenShare(ctx))
	case "/blur":
		fmt.Printf("* background blur: %t\n", session.ToggleBackgroundBlur())
	case "/who":
		for _, p := range session.Participants() {
			var packets uint64
			if counter, ok := p.Stream.(interface{ Packets() uint64 }); ok {
				packets = counter.Packets()
			}
			fmt.Printf("  %s user=%s kind=%s packets=%d\n", p.StreamID, p.UserID, p.Kind, packets)
		}
	case "/leave":
		session.Leave(ctx)
	default:
		fmt.Printf("* unknown command %q\n", line)
	}
	return nil
}
