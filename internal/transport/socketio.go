package transport

import (
	"fmt"
	"sync"
	"time"

	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/makerlink/chat/internal/wire"
	"github.com/makerlink/chat/pkg/logger"
)

// SocketIO is the production Transport backed by a Socket.IO connection.
type SocketIO struct {
	serverURL      string
	path           string
	token          string
	conversationID string

	mu        sync.RWMutex
	socket    *socket.Socket
	handlers  Handlers
	connected bool
	closeOnce sync.Once
}

var _ Transport = (*SocketIO)(nil)

// NewSocketIO creates a conversation-scoped Socket.IO transport. Connect
// must be called before Emit.
func NewSocketIO(serverURL, path, token, conversationID string) *SocketIO {
	return &SocketIO{
		serverURL:      serverURL,
		path:           path,
		token:          token,
		conversationID: conversationID,
	}
}

// Connect establishes the Socket.IO connection.
func (s *SocketIO) Connect() error {
	logger.Debugf("transport: connecting to %s (path: %s)", s.serverURL, s.path)

	opts := socket.DefaultOptions()
	opts.SetPath(s.path)
	opts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))
	opts.SetAuth(map[string]interface{}{
		"token":          s.token,
		"clientType":     "conversation-scoped",
		"conversationId": s.conversationID,
	})

	sock, err := socket.Connect(s.serverURL, opts)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	s.mu.Lock()
	s.socket = sock
	s.mu.Unlock()

	sock.On(types.EventName("connect"), func(args ...any) {
		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()
		logger.Debugf("transport: connected, id=%s", sock.Id())
	})

	sock.On(types.EventName("disconnect"), func(args ...any) {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()

		reason := ""
		if len(args) > 0 {
			if r, ok := args[0].(string); ok {
				reason = r
			}
		}
		logger.Debugf("transport: disconnected: %s", reason)
	})

	sock.On(types.EventName("connect_error"), func(args ...any) {
		if len(args) == 0 {
			return
		}
		logger.Warnf("transport: connection error: %v", args[0])
		if h := s.currentHandlers(); h.OnError != nil {
			h.OnError(fmt.Errorf("connection error: %v", args[0]))
		}
	})

	sock.On(types.EventName(EventMessageAck), func(args ...any) {
		data := firstMap(args)
		ack, ok := wire.ParseMessageAck(data)
		if !ok {
			logger.Warnf("transport: ack without correlation key dropped: %v", data)
			return
		}
		if h := s.currentHandlers(); h.OnMessageAck != nil {
			h.OnMessageAck(ack)
		}
	})

	sock.On(types.EventName(EventNewMessage), func(args ...any) {
		data := firstMap(args)
		if data == nil {
			return
		}
		if h := s.currentHandlers(); h.OnNewMessage != nil {
			h.OnNewMessage(wire.RawMessage(data))
		}
	})

	sock.On(types.EventName(EventTyping), func(args ...any) {
		ev, ok := wire.ParseTypingEvent(firstMap(args))
		if !ok {
			return
		}
		if h := s.currentHandlers(); h.OnTyping != nil {
			h.OnTyping(ev)
		}
	})

	return nil
}

// WaitForConnect waits for the socket to report connected or times out.
func (s *SocketIO) WaitForConnect(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.IsConnected() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return s.IsConnected()
}

// IsConnected reports whether the transport is connected.
func (s *SocketIO) IsConnected() bool {
	s.mu.RLock()
	sock := s.socket
	connected := s.connected
	s.mu.RUnlock()

	if connected {
		return true
	}
	if sock != nil && sock.Connected() {
		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()
		return true
	}
	return false
}

// Subscribe implements Transport.
func (s *SocketIO) Subscribe(h Handlers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = h
}

// Emit implements Transport.
func (s *SocketIO) Emit(event string, payload map[string]any) error {
	s.mu.RLock()
	sock := s.socket
	s.mu.RUnlock()

	if sock == nil {
		return fmt.Errorf("not connected")
	}
	logger.Tracef("transport: emit %s", event)
	sock.Emit(event, payload)
	return nil
}

// Close implements Transport.
func (s *SocketIO) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.socket != nil {
			s.socket.Disconnect()
			s.socket = nil
		}
		s.connected = false
	})
	return nil
}

func (s *SocketIO) currentHandlers() Handlers {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handlers
}

func firstMap(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	m, _ := args[0].(map[string]any)
	return m
}
