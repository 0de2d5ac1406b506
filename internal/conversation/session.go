package conversation

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/makerlink/chat/internal/actor"
	"github.com/makerlink/chat/internal/api"
	"github.com/makerlink/chat/internal/chat"
	"github.com/makerlink/chat/internal/transport"
	"github.com/makerlink/chat/internal/wire"
)

// Session is the public handle on one conversation loop.
//
// All methods are safe for concurrent use; they translate calls into loop
// commands, minting client message ids and timestamps on the way in so the
// reducer stays deterministic.
type Session struct {
	loop      *actor.Loop[State]
	transport transport.Transport
	clock     actor.Clock
	avatarURL string

	gen atomic.Int64
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	clock     actor.Clock
	previews  PreviewReleaser
	avatarURL string
	hooks     actor.Hooks[State]
}

// WithClock overrides the time source. Tests inject a fake clock here.
func WithClock(c actor.Clock) SessionOption {
	return func(cfg *sessionConfig) { cfg.clock = c }
}

// WithPreviewReleaser installs the callback that frees local image preview
// handles.
func WithPreviewReleaser(p PreviewReleaser) SessionOption {
	return func(cfg *sessionConfig) { cfg.previews = p }
}

// WithAvatarURL sets the avatar attached to outgoing text messages.
func WithAvatarURL(url string) SessionOption {
	return func(cfg *sessionConfig) { cfg.avatarURL = url }
}

// WithHooks attaches loop observability hooks.
func WithHooks(h actor.Hooks[State]) SessionOption {
	return func(cfg *sessionConfig) { cfg.hooks = h }
}

// NewSession wires a conversation loop over the given REST client and
// realtime transport and starts it. The caller still has to Open a
// conversation before sending.
func NewSession(apiClient *api.Client, tr transport.Transport, selfRole chat.Role, selfID string, opts ...SessionOption) *Session {
	cfg := sessionConfig{clock: actor.RealClock{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	rt := NewRuntime(apiClient, tr, cfg.previews, cfg.clock)
	loop := actor.New(NewState(selfRole, selfID), Reduce, rt)
	loop.SetHooks(cfg.hooks)

	s := &Session{
		loop:      loop,
		transport: tr,
		clock:     cfg.clock,
		avatarURL: cfg.avatarURL,
	}

	// Inbound transport callbacks are stamped with the generation current at
	// arrival time; the reducer drops anything from a superseded session.
	tr.Subscribe(transport.Handlers{
		OnMessageAck: func(ack wire.MessageAck) {
			s.loop.Enqueue(evMessageAck{Gen: s.gen.Load(), Ack: ack})
		},
		OnNewMessage: func(raw wire.RawMessage) {
			s.loop.Enqueue(evNewMessage{Gen: s.gen.Load(), Raw: raw, Now: s.clock.Now()})
		},
		OnTyping: func(ev wire.TypingEvent) {
			s.loop.Enqueue(evTyping{Gen: s.gen.Load(), Event: ev})
		},
		OnError: func(err error) {
			s.loop.Enqueue(evTransportError{Gen: s.gen.Load(), Err: err})
		},
	})

	loop.Start()
	return s
}

// Open switches the session to a conversation: resets all per-conversation
// state, fetches and reconciles the history, and blocks until that settles
// or ctx expires.
//
// Opening a new conversation supersedes the previous one; any still-running
// work for it is discarded when it reports back.
func (s *Session) Open(ctx context.Context, conversationID string) error {
	gen := s.gen.Add(1)
	reply := make(chan error, 1)
	if !s.loop.Enqueue(cmdOpen{Gen: gen, ConversationID: conversationID, Reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.loop.Done():
		return ErrClosed
	}
}

// SendText sends a text message optimistically and returns its minted
// clientMessageId.
func (s *Session) SendText(text string) (string, error) {
	id := uuid.NewString()
	if !s.loop.Enqueue(cmdSendText{ClientID: id, Text: text, AvatarURL: s.avatarURL, Now: s.clock.Now()}) {
		return "", ErrClosed
	}
	return id, nil
}

// SendImage starts an image upload lifecycle and returns the minted
// clientMessageId. previewRef, if non-empty, is a local preview handle that
// will be released exactly once when the upload settles or the session ends.
func (s *Session) SendImage(fileName string, data []byte, previewRef string) (string, error) {
	id := uuid.NewString()
	if !s.loop.Enqueue(cmdSendImage{ClientID: id, FileName: fileName, Data: data, PreviewRef: previewRef, Now: s.clock.Now()}) {
		return "", ErrClosed
	}
	return id, nil
}

// Retry re-runs a failed message and returns the clientMessageId to watch:
// text retries re-enter under a fresh id, image and action retries keep the
// original one. Only failed messages are retryable.
func (s *Session) Retry(clientMessageID string) (string, error) {
	msg, ok := s.loop.State().Store.ByClientID(clientMessageID)
	if !ok || msg.Status != chat.StatusFailed {
		return "", ErrNotRetryable
	}

	watchID := clientMessageID
	newID := ""
	if msg.Kind == chat.KindUser {
		newID = uuid.NewString()
		watchID = newID
	}
	if !s.loop.Enqueue(cmdRetry{ClientID: clientMessageID, NewClientID: newID, Now: s.clock.Now()}) {
		return "", ErrClosed
	}
	return watchID, nil
}

// CompleteJob marks a job complete: an optimistic action message plus the
// REST side-channel call. Returns the action message's clientMessageId.
func (s *Session) CompleteJob(jobID string) (string, error) {
	id := uuid.NewString()
	if !s.loop.Enqueue(cmdCompleteJob{ClientID: id, JobID: jobID, Now: s.clock.Now()}) {
		return "", ErrClosed
	}
	return id, nil
}

// CreateEscrow opens an escrow for a job.
func (s *Session) CreateEscrow(jobID, amount string) (string, error) {
	return s.escrow(cmdEscrow{Op: EscrowCreate, JobID: jobID, Amount: amount})
}

// FundEscrow funds an existing escrow.
func (s *Session) FundEscrow(jobID, escrowID, amount string) (string, error) {
	return s.escrow(cmdEscrow{Op: EscrowFund, JobID: jobID, EscrowID: escrowID, Amount: amount})
}

// ReleaseEscrow releases a funded escrow to the maker.
func (s *Session) ReleaseEscrow(jobID, escrowID, amount string) (string, error) {
	return s.escrow(cmdEscrow{Op: EscrowRelease, JobID: jobID, EscrowID: escrowID, Amount: amount})
}

func (s *Session) escrow(cmd cmdEscrow) (string, error) {
	cmd.ClientID = uuid.NewString()
	cmd.Now = s.clock.Now()
	if !s.loop.Enqueue(cmd) {
		return "", ErrClosed
	}
	return cmd.ClientID, nil
}

// Messages returns the current reconciled timeline, ascending by time.
func (s *Session) Messages() []chat.Message {
	return s.loop.State().Store.Messages()
}

// Typing returns the senders currently showing a typing indicator.
func (s *Session) Typing() map[string]bool {
	return s.loop.State().Typing.Snapshot()
}

// HistoryLoaded reports whether the open conversation's initial history
// fetch has reconciled.
func (s *Session) HistoryLoaded() bool {
	return s.loop.State().HistoryLoaded
}

// Close shuts the loop down, releases outstanding preview handles, and
// closes the transport. Safe to call once; further calls return ErrClosed.
func (s *Session) Close() error {
	reply := make(chan error, 1)
	if !s.loop.Enqueue(cmdShutdown{Reply: reply}) {
		return ErrClosed
	}
	select {
	case <-reply:
	case <-s.loop.Done():
	}
	s.loop.Stop()
	return s.transport.Close()
}
