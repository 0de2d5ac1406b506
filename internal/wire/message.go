// Package wire holds the raw message shapes exchanged with the Makerlink
// backend, before normalization into the canonical chat model.
//
// History fetch and the live socket deliver the same logical records in
// several slightly different shapes (field name drift, string-encoded JSON
// payloads, legacy attachment arrays). This package keeps decoding permissive
// and lossless; interpretation happens in the chat package.
package wire

import (
	"encoding/json"
	"time"
)

// RawMessage is one heterogeneous message object as received from the
// history endpoint or a socket broadcast.
type RawMessage map[string]any

// DecodeRawMessages decodes a JSON array of raw message objects.
func DecodeRawMessages(data []byte) ([]RawMessage, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var out []RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ID returns the server-assigned message id, if present.
func (m RawMessage) ID() string {
	return firstString(m, "id", "_id", "messageId")
}

// ClientMessageID returns the client-minted correlation key, if present.
func (m RawMessage) ClientMessageID() string {
	return firstString(m, "clientMessageId", "localId", "client_message_id")
}

// TypeTokens returns the raw kind tokens in resolution order.
//
// The backend has used several discriminator field names over time; callers
// must evaluate them in this order and take the first match.
func (m RawMessage) TypeTokens() []string {
	var tokens []string
	for _, key := range []string{"type", "messageType", "kind", "actionType"} {
		if v := getString(m[key]); v != "" {
			tokens = append(tokens, v)
		}
	}
	return tokens
}

// Content returns the content field as a string, when it is one.
//
// Legacy records string-encode structured payloads into content; newer
// records use a structured data object instead.
func (m RawMessage) Content() string {
	return getString(m["content"])
}

// DataMap returns the structured data payload, if present.
func (m RawMessage) DataMap() map[string]any {
	if d, ok := m["data"].(map[string]any); ok {
		return d
	}
	return nil
}

// FirstAttachment returns the first legacy attachments entry, if present.
func (m RawMessage) FirstAttachment() map[string]any {
	atts, ok := m["attachments"].([]any)
	if !ok || len(atts) == 0 {
		return nil
	}
	if a, ok := atts[0].(map[string]any); ok {
		return a
	}
	return nil
}

// ConversationID returns the conversation the record belongs to, if present.
func (m RawMessage) ConversationID() string {
	return firstString(m, "conversationId", "conversation_id", "sid")
}

// SenderRole returns the backend-asserted sender role, if present.
func (m RawMessage) SenderRole() string {
	return firstString(m, "senderRole", "role")
}

// SenderID returns the raw participant identity, if present.
func (m RawMessage) SenderID() string {
	return firstString(m, "senderId", "sender_id", "from")
}

// Time returns the record timestamp.
//
// Accepted encodings: milliseconds since epoch (number), seconds since epoch
// (number, pre-2001 cutoff), or an RFC3339 string. ok is false when no
// timestamp field decodes.
func (m RawMessage) Time() (time.Time, bool) {
	for _, key := range []string{"time", "createdAt", "created_at", "timestamp"} {
		v, present := m[key]
		if !present {
			continue
		}
		if ts, ok := decodeTime(v); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

// msSecondsCutoff separates second- from millisecond-encoded epoch numbers.
// Values below it are treated as seconds.
const msSecondsCutoff = int64(1) << 40

func decodeTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return time.Time{}, false
		}
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts, true
		}
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts, true
		}
		return time.Time{}, false
	default:
		n := getInt64(v)
		if n <= 0 {
			return time.Time{}, false
		}
		if n < msSecondsCutoff {
			return time.Unix(n, 0).UTC(), true
		}
		return time.UnixMilli(n).UTC(), true
	}
}

func firstString(m RawMessage, keys ...string) string {
	for _, key := range keys {
		if v := getString(m[key]); v != "" {
			return v
		}
	}
	return ""
}

func getString(v any) string {
	s, _ := v.(string)
	return s
}

func getInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}
