// Package conversation runs one chat conversation as a single-threaded
// reducer loop: optimistic sends, uploads, history reconciliation, typing
// state, and the fire-and-forget job/escrow side channel.
package conversation

import (
	"time"

	"github.com/makerlink/chat/internal/actor"
	"github.com/makerlink/chat/internal/api"
	"github.com/makerlink/chat/internal/chat"
	"github.com/makerlink/chat/internal/wire"
)

// EscrowOp names a side-channel escrow operation.
type EscrowOp string

const (
	EscrowCreate  EscrowOp = "create"
	EscrowFund    EscrowOp = "fund"
	EscrowRelease EscrowOp = "release"
)

// uploadAttempt retains what a user-triggered retry needs to re-run an
// image upload, plus the preview handle owed a release.
type uploadAttempt struct {
	FileName string
	Data     []byte
	// PreviewRef is the outstanding local preview handle; empty once
	// released. Release happens exactly once: on completion (success or
	// failure) or on session teardown.
	PreviewRef string
}

// State is the loop-owned conversation state.
//
// The store, cache, and typing map are mutated only from the reducer, which
// runs on the loop goroutine; none of them lock.
type State struct {
	// ConversationID is the active conversation; empty before the first Open.
	ConversationID string

	// Gen identifies the conversation session. It is minted by the Session
	// wrapper on every Open; events and effect continuations carry it so
	// stale work from a previous session is dropped.
	Gen int64

	// SelfRole and SelfID identify the local participant.
	SelfRole chat.Role
	SelfID   string

	// MakerID and CreatorID are the known participant identities, learned
	// from the history response.
	MakerID   string
	CreatorID string

	// HistoryLoaded is set once the initial history fetch reconciled.
	HistoryLoaded bool
	// Closed is set after shutdown; all further inputs are ignored.
	Closed bool

	Store  *chat.Store
	Cache  *chat.OptimisticCache
	Typing *chat.TypingState

	// Uploads tracks in-flight and retryable image attempts by
	// clientMessageId.
	Uploads map[string]uploadAttempt

	// PendingOpenReply completes when the session's history fetch settles.
	PendingOpenReply chan error
}

// NewState returns the initial state for a session loop.
func NewState(selfRole chat.Role, selfID string) State {
	return State{
		SelfRole: selfRole,
		SelfID:   selfID,
		Store:    chat.NewStore(),
		Cache:    chat.NewOptimisticCache(),
		Typing:   chat.NewTypingState(),
		Uploads:  make(map[string]uploadAttempt),
	}
}

// Commands (from the Session wrapper; identifiers and timestamps are minted
// there so the reducer stays deterministic).

type cmdOpen struct {
	actor.InputBase
	Gen            int64
	ConversationID string
	Reply          chan error
}

type cmdSendText struct {
	actor.InputBase
	ClientID  string
	Text      string
	AvatarURL string
	Now       time.Time
}

type cmdSendImage struct {
	actor.InputBase
	ClientID   string
	FileName   string
	Data       []byte
	PreviewRef string
	Now        time.Time
}

type cmdRetry struct {
	actor.InputBase
	ClientID string
	// NewClientID replaces the failed attempt's identity for kinds that
	// re-enter as a fresh message (text); ignored for kinds that reuse their
	// correlation key (image).
	NewClientID string
	Now         time.Time
}

type cmdCompleteJob struct {
	actor.InputBase
	ClientID string
	JobID    string
	Now      time.Time
}

type cmdEscrow struct {
	actor.InputBase
	ClientID string
	Op       EscrowOp
	JobID    string
	EscrowID string
	Amount   string
	Now      time.Time
}

type cmdShutdown struct {
	actor.InputBase
	Reply chan error
}

// Events (from the runtime and the transport wiring).

type evHistoryFetched struct {
	actor.InputBase
	Gen          int64
	Messages     []wire.RawMessage
	Participants api.Participants
	Err          error
	Now          time.Time
}

type evNewMessage struct {
	actor.InputBase
	Gen int64
	Raw wire.RawMessage
	Now time.Time
}

type evMessageAck struct {
	actor.InputBase
	Gen int64
	Ack wire.MessageAck
}

type evEmitFailed struct {
	actor.InputBase
	Gen      int64
	ClientID string
	Err      error
}

type evUploadFinished struct {
	actor.InputBase
	Gen      int64
	ClientID string
	ImageURL string
	Err      error
	Now      time.Time
}

type evSideChannelFinished struct {
	actor.InputBase
	Gen      int64
	ClientID string
	Err      error
}

type evTyping struct {
	actor.InputBase
	Gen   int64
	Event wire.TypingEvent
}

type evTimerFired struct {
	actor.InputBase
	Gen  int64
	Name string
}

type evTransportError struct {
	actor.InputBase
	Gen int64
	Err error
}

// Effects (interpreted by the Runtime).

type effFetchHistory struct {
	actor.EffectBase
	Gen            int64
	ConversationID string
}

type effEmitMessage struct {
	actor.EffectBase
	Gen      int64
	ClientID string
	Payload  map[string]any
}

type effUploadImage struct {
	actor.EffectBase
	Gen      int64
	ClientID string
	FileName string
	Data     []byte
}

type effReleasePreview struct {
	actor.EffectBase
	Ref string
}

type effStartTimer struct {
	actor.EffectBase
	Gen   int64
	Name  string
	After time.Duration
}

type effCancelTimer struct {
	actor.EffectBase
	Name string
}

type effJobComplete struct {
	actor.EffectBase
	Gen      int64
	ClientID string
	JobID    string
}

type effEscrow struct {
	actor.EffectBase
	Gen      int64
	ClientID string
	Op       EscrowOp
	JobID    string
	EscrowID string
	Amount   string
}
