// Package transport connects the conversation engine to the real-time
// socket. Reconnect and backoff are the socket library's concern; the engine
// only needs emit plus inbound callbacks.
package transport

import "github.com/makerlink/chat/internal/wire"

// Event names on the chat namespace.
const (
	// EventMessage carries an outbound chat message.
	EventMessage = "message"
	// EventMessageAck acknowledges a message this client emitted.
	EventMessageAck = "message-ack"
	// EventNewMessage broadcasts a message from another participant.
	EventNewMessage = "new-message"
	// EventTyping carries typing signals.
	EventTyping = "typing"
)

// Handlers are the inbound callbacks a subscriber installs.
//
// Callbacks are invoked from transport goroutines; subscribers must hand the
// payloads over to their own loop rather than mutating state in place.
type Handlers struct {
	OnMessageAck func(ack wire.MessageAck)
	OnNewMessage func(raw wire.RawMessage)
	OnTyping     func(ev wire.TypingEvent)
	OnError      func(err error)
}

// Transport is the injected emit capability plus subscription surface.
type Transport interface {
	// Emit sends an event to the server. Fire-and-forget at this layer;
	// delivery confirmation arrives as a message ack.
	Emit(event string, payload map[string]any) error
	// Subscribe installs the inbound callbacks. Later calls replace earlier
	// ones.
	Subscribe(h Handlers)
	// Close tears the connection down.
	Close() error
}
