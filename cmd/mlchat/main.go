package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/makerlink/chat/internal/actor"
	"github.com/makerlink/chat/internal/api"
	"github.com/makerlink/chat/internal/auth"
	"github.com/makerlink/chat/internal/chat"
	"github.com/makerlink/chat/internal/config"
	"github.com/makerlink/chat/internal/conversation"
	"github.com/makerlink/chat/internal/transport"
	"github.com/makerlink/chat/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	args, err := parseFlags(cfg, os.Args[1:])
	if err != nil {
		return err
	}
	if args == nil {
		return nil
	}

	level := logger.LevelInfo
	if cfg.LogLevel != "" {
		level, err = logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
	}
	if cfg.Debug {
		level = logger.LevelDebug
	}
	logger.SetLevel(level)

	if len(args) < 1 {
		printUsage()
		return fmt.Errorf("missing conversation id")
	}
	conversationID := args[0]

	if cfg.AccessToken == "" {
		return fmt.Errorf("no access token configured (set MAKERLINK_ACCESS_TOKEN)")
	}
	if auth.ExpiringSoon(cfg.AccessToken, auth.DefaultRefreshWindow) {
		logger.Warnf("access token expires soon; refresh it before long sessions")
	}

	role := chat.Role(cfg.Role)
	selfID := selfIDFromToken(cfg.AccessToken)

	apiClient := api.New(cfg.ServerURL, cfg.AccessToken, api.WithPageSize(cfg.HistoryPageSize))
	defer apiClient.Close()

	tr := transport.NewSocketIO(cfg.ServerURL, cfg.SocketPath, cfg.AccessToken, conversationID)
	if err := tr.Connect(); err != nil {
		return fmt.Errorf("failed to connect transport: %w", err)
	}
	if !tr.WaitForConnect(10 * time.Second) {
		_ = tr.Close()
		return fmt.Errorf("transport did not connect in time")
	}

	hooks := actor.Hooks[conversation.State]{
		OnTransition: func(prev, next conversation.State, _ actor.Input) {
			// Echo messages arriving after the initial history render.
			if !prev.HistoryLoaded || next.Store.Len() <= prev.Store.Len() {
				return
			}
			msgs := next.Store.Messages()
			printMessage(msgs[len(msgs)-1])
		},
	}

	session := conversation.NewSession(apiClient, tr, role, selfID, conversation.WithHooks(hooks))
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = session.Open(ctx, conversationID)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to open conversation: %w", err)
	}

	for _, m := range session.Messages() {
		printMessage(m)
	}
	fmt.Println("Connected. Commands: /image <path>, /retry <id>, /complete <jobId>, /fund <jobId> <escrowId> <amount>, /release <jobId> <escrowId> <amount>, /quit")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-sigCh:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := handleLine(session, line); err != nil {
				if err == errQuit {
					return nil
				}
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
	}
}

var errQuit = fmt.Errorf("quit")

func handleLine(session *conversation.Session, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if !strings.HasPrefix(line, "/") {
		id, err := session.SendText(line)
		if err != nil {
			return err
		}
		fmt.Printf("-> queued %s\n", id)
		return nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return errQuit

	case "/image":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /image <path>")
		}
		data, err := os.ReadFile(fields[1])
		if err != nil {
			return err
		}
		id, err := session.SendImage(fields[1], data, "")
		if err != nil {
			return err
		}
		fmt.Printf("-> uploading %s\n", id)

	case "/retry":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /retry <clientMessageId>")
		}
		id, err := session.Retry(fields[1])
		if err != nil {
			return err
		}
		fmt.Printf("-> retrying as %s\n", id)

	case "/complete":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /complete <jobId>")
		}
		id, err := session.CompleteJob(fields[1])
		if err != nil {
			return err
		}
		fmt.Printf("-> completing job, message %s\n", id)

	case "/fund":
		if len(fields) != 4 {
			return fmt.Errorf("usage: /fund <jobId> <escrowId> <amount>")
		}
		id, err := session.FundEscrow(fields[1], fields[2], fields[3])
		if err != nil {
			return err
		}
		fmt.Printf("-> funding escrow, message %s\n", id)

	case "/release":
		if len(fields) != 4 {
			return fmt.Errorf("usage: /release <jobId> <escrowId> <amount>")
		}
		id, err := session.ReleaseEscrow(fields[1], fields[2], fields[3])
		if err != nil {
			return err
		}
		fmt.Printf("-> releasing escrow, message %s\n", id)

	case "/messages":
		for _, m := range session.Messages() {
			printMessage(m)
		}

	case "/typing":
		for sender := range session.Typing() {
			fmt.Printf("%s is typing...\n", sender)
		}

	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
	return nil
}

func printMessage(m chat.Message) {
	body := m.Data.String(chat.FieldText)
	switch m.Kind {
	case chat.KindImage:
		body = m.Data.String(chat.FieldImageURL)
	case chat.KindPayment, chat.KindActionPayment, chat.KindEscrowPayment, chat.KindEscrowRelease:
		body = fmt.Sprintf("amount=%s payer=%s", m.Data.String(chat.FieldAmount), m.Data.String(chat.FieldPayer))
	}
	id := m.ID
	if id == "" {
		id = m.ClientMessageID
	}
	status := string(m.Status)
	if !m.Terminal() {
		status += "..."
	}
	fmt.Printf("[%s] %-8s %-12s %s (%s)\n", m.Time.Format("15:04:05"), m.Sender, status, body, id)
}

func selfIDFromToken(token string) string {
	if id, ok := auth.SubjectID(token); ok {
		return id
	}
	return ""
}

func parseFlags(cfg *config.Config, args []string) ([]string, error) {
	fs := flag.NewFlagSet("mlchat", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	serverURL := fs.String("server-url", "", "Makerlink API base URL")
	token := fs.String("token", "", "Access token")
	role := fs.String("role", "", "Participant role (maker|creator)")
	logLevel := fs.String("log-level", "", "Log level (trace|debug|info|warn|error)")
	debug := fs.Bool("debug", false, "Enable debug logging")
	showHelp := fs.Bool("help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *showHelp {
		printUsage()
		return nil, nil
	}

	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *token != "" {
		cfg.AccessToken = *token
	}
	if *role != "" {
		if *role != "maker" && *role != "creator" {
			return nil, fmt.Errorf("invalid --role %q (expected maker or creator)", *role)
		}
		cfg.Role = *role
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *debug {
		cfg.Debug = true
	}

	return fs.Args(), nil
}

func printUsage() {
	fmt.Println(`Usage: mlchat [flags] <conversationId>

Flags:
  --server-url URL   Makerlink API base URL
  --token TOKEN      Access token
  --role ROLE        Participant role (maker|creator)
  --log-level LEVEL  Log level (trace|debug|info|warn|error)
  --debug            Enable debug logging

Interactive commands:
  <text>                              send a text message
  /image <path>                       upload and send an image
  /retry <clientMessageId>            retry a failed message
  /complete <jobId>                   mark a job complete
  /fund <jobId> <escrowId> <amount>   fund an escrow
  /release <jobId> <escrowId> <amount> release an escrow
  /messages                           print the reconciled timeline
  /typing                             show typing participants
  /quit                               exit`)
}
