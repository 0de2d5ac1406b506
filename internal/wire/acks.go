package wire

import "time"

// MessageAck is the acknowledgement delivered after the server persists a
// message emitted by this client.
type MessageAck struct {
	// ClientMessageID correlates the ack with the optimistic entry.
	ClientMessageID string
	// ServerID is the server-assigned message id.
	ServerID string
	// Time is the authoritative server timestamp, when provided.
	Time time.Time
	// HasTime reports whether Time was present in the payload.
	HasTime bool
}

// ParseMessageAck decodes an ack payload from the socket transport.
//
// ok is false when the payload carries no correlation key; such acks cannot
// be applied and are dropped by the caller.
func ParseMessageAck(data map[string]any) (MessageAck, bool) {
	raw := RawMessage(data)
	ack := MessageAck{
		ClientMessageID: raw.ClientMessageID(),
		ServerID:        raw.ID(),
	}
	if ack.ClientMessageID == "" {
		return MessageAck{}, false
	}
	if ts, has := raw.Time(); has {
		ack.Time = ts
		ack.HasTime = true
	}
	return ack, true
}

// TypingEvent is an inbound typing signal for one participant.
type TypingEvent struct {
	// Sender identifies the typing participant.
	Sender string
	// IsTyping is the reported typing state.
	IsTyping bool
}

// ParseTypingEvent decodes a typing payload from the socket transport.
func ParseTypingEvent(data map[string]any) (TypingEvent, bool) {
	sender := firstString(RawMessage(data), "sender", "senderId", "from")
	if sender == "" {
		return TypingEvent{}, false
	}
	typing, ok := data["isTyping"].(bool)
	if !ok {
		// Absent flag means the signal itself asserts typing.
		typing = true
	}
	return TypingEvent{Sender: sender, IsTyping: typing}, true
}
