package chat

import (
	"encoding/json"
	"time"

	"github.com/makerlink/chat/internal/wire"
	"github.com/makerlink/chat/pkg/logger"
)

// NormalizeContext carries the session facts normalization needs. It is
// passed explicitly so Normalize stays a pure function of its inputs.
type NormalizeContext struct {
	// MakerID and CreatorID are the known participant identities, used for
	// sender resolution when the backend asserts no role.
	MakerID   string
	CreatorID string
	// FallbackRole is assigned when the sender cannot be resolved at all.
	FallbackRole Role
	// Cache is the session's optimistic cache, consulted as a field-level
	// fallback. May be nil.
	Cache *OptimisticCache
	// Now supplies the timestamp for records that carry none.
	Now time.Time
}

// Normalize maps one raw wire object into the canonical model.
//
// It never fails: malformed payloads degrade to kind defaults, unknown kinds
// degrade to user text, unresolvable senders take the fallback role with a
// logged warning. The payload fallback chain is applied field by field, in
// increasing precedence: kind defaults, optimistic cache entry, JSON-decoded
// string content, first legacy attachment, structured data.
func Normalize(raw wire.RawMessage, ctx NormalizeContext) Message {
	kind, exact := ResolveKind(raw)
	if !exact && logger.Enabled(logger.LevelDebug) {
		logger.Debugf("normalize: inexact kind %q for raw message id=%q", kind, raw.ID())
	}

	msg := Message{
		ID:              raw.ID(),
		ClientMessageID: raw.ClientMessageID(),
		Kind:            kind,
		SenderID:        raw.SenderID(),
		Status:          StatusSent,
	}
	msg.Sender = resolveSender(raw, ctx)

	if ts, ok := raw.Time(); ok {
		msg.Time = ts
	} else {
		msg.Time = ctx.Now
	}

	payload := DefaultPayload(kind)
	if ctx.Cache != nil && msg.ClientMessageID != "" {
		if cached, ok := ctx.Cache.Lookup(msg.ClientMessageID); ok {
			payload = payload.Overlay(cached)
		}
	}
	payload = payload.Overlay(decodeContentPayload(raw))
	if att := raw.FirstAttachment(); att != nil {
		payload = payload.Overlay(Payload(att))
	}
	if data := raw.DataMap(); data != nil {
		payload = payload.Overlay(Payload(data))
	}
	msg.Data = payload

	return msg
}

func resolveSender(raw wire.RawMessage, ctx NormalizeContext) Role {
	switch Role(raw.SenderRole()) {
	case RoleMaker:
		return RoleMaker
	case RoleCreator:
		return RoleCreator
	case RoleSystem:
		return RoleSystem
	}

	if id := raw.SenderID(); id != "" {
		switch id {
		case ctx.MakerID:
			return RoleMaker
		case ctx.CreatorID:
			return RoleCreator
		}
	}

	fallback := ctx.FallbackRole
	if fallback == "" {
		fallback = RoleSystem
	}
	logger.Warnf("normalize: unresolved sender id=%q role=%q, falling back to %q",
		raw.SenderID(), raw.SenderRole(), fallback)
	return fallback
}

// decodeContentPayload decodes a string content field as JSON. Non-JSON
// content is treated as plain user text; decode failures of things that look
// like JSON contribute nothing rather than an error.
func decodeContentPayload(raw wire.RawMessage) Payload {
	content := raw.Content()
	if content == "" {
		return nil
	}
	if content[0] == '{' {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(content), &decoded); err != nil {
			logger.Debugf("normalize: undecodable content payload for id=%q: %v", raw.ID(), err)
			return Payload{}
		}
		return Payload(decoded)
	}
	return Payload{FieldText: content}
}
