package chat

import (
	"sort"
	"time"
)

// Store is the ordered, deduplicated state of one conversation.
//
// It is the single source of truth for rendering. Messages arrive from three
// racing sources (history fetch, optimistic sends, live broadcast); the
// merge is keyed dedup plus field-level overlay, which makes it idempotent
// and commutative, so callers never need to reason about arrival order.
type Store struct {
	msgs       []*Message
	byServerID map[string]*Message
	byClientID map[string]*Message
}

// NewStore returns an empty conversation store.
func NewStore() *Store {
	return &Store{
		byServerID: make(map[string]*Message),
		byClientID: make(map[string]*Message),
	}
}

// statusRank orders lifecycle states for merge purposes. A merge never moves
// a message backwards in its lifecycle; explicit transitions (retry) do.
func statusRank(s Status) int {
	switch s {
	case StatusPending, StatusUploading:
		return 0
	case StatusSent, StatusUploaded, StatusFailed:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// InsertOrMerge reconciles one message into the store.
//
//  1. A message whose server id is already known is discarded: this absorbs
//     the race where history fetch and live broadcast deliver the same
//     server message twice.
//  2. A message whose clientMessageId is already known merges into the
//     existing entry in place: present payload fields overlay, lifecycle
//     status only advances, the server id attaches, server-authoritative
//     time replaces local time.
//  3. Anything else is appended.
//
// The sequence is stably re-sorted ascending by time after every call.
func (s *Store) InsertOrMerge(msg Message) {
	if msg.ID != "" {
		if _, known := s.byServerID[msg.ID]; known {
			return
		}
	}

	if msg.ClientMessageID != "" {
		if existing, known := s.byClientID[msg.ClientMessageID]; known {
			s.mergeInto(existing, msg)
			s.sortByTime()
			return
		}
	}

	entry := msg
	entry.Data = msg.Data.Clone()
	s.msgs = append(s.msgs, &entry)
	if entry.ID != "" {
		s.byServerID[entry.ID] = &entry
	}
	if entry.ClientMessageID != "" {
		s.byClientID[entry.ClientMessageID] = &entry
	}
	s.sortByTime()
}

func (s *Store) mergeInto(existing *Message, incoming Message) {
	if incoming.ID != "" && existing.ID == "" {
		existing.ID = incoming.ID
		s.byServerID[existing.ID] = existing
	}
	if incoming.Status != "" && statusRank(incoming.Status) >= statusRank(existing.Status) {
		existing.Status = incoming.Status
	}
	// Time from a server-identified record is authoritative; otherwise keep
	// the local timestamp so merge order cannot reshuffle the view.
	if !incoming.Time.IsZero() && (incoming.ID != "" || existing.Time.IsZero()) {
		existing.Time = incoming.Time
	}
	if incoming.Kind != "" && incoming.Kind != KindUser {
		existing.Kind = incoming.Kind
	}
	if incoming.SenderID != "" {
		existing.SenderID = incoming.SenderID
	}
	if incoming.Sender != "" && incoming.Sender != existing.Sender && existing.Sender == "" {
		existing.Sender = incoming.Sender
	}
	if len(incoming.Data) > 0 {
		existing.Data = existing.Data.Overlay(incoming.Data)
	}
}

// AckUpdate applies a server acknowledgement to the optimistic entry for
// clientMessageID: attaches the server id, advances the status to sent, and
// adopts the server timestamp when one was provided.
func (s *Store) AckUpdate(clientMessageID, serverID string, serverTime time.Time, hasTime bool) bool {
	existing, ok := s.byClientID[clientMessageID]
	if !ok {
		return false
	}
	if serverID != "" && existing.ID == "" {
		existing.ID = serverID
		s.byServerID[serverID] = existing
	}
	// An ack never downgrades a completed upload; it only attaches identity.
	if existing.Status != StatusUploaded && statusRank(StatusSent) >= statusRank(existing.Status) {
		existing.Status = StatusSent
	}
	if hasTime && !serverTime.IsZero() {
		existing.Time = serverTime
	}
	s.sortByTime()
	return true
}

// MarkFailed moves the entry for clientMessageID to the terminal failed
// state. Recovery is an explicit user retry.
func (s *Store) MarkFailed(clientMessageID string) bool {
	existing, ok := s.byClientID[clientMessageID]
	if !ok {
		return false
	}
	existing.Status = StatusFailed
	return true
}

// MarkUploaded completes an upload lifecycle: applies the patch (typically
// the canonical image URL) and moves the entry to uploaded.
func (s *Store) MarkUploaded(clientMessageID string, patch Payload) bool {
	existing, ok := s.byClientID[clientMessageID]
	if !ok {
		return false
	}
	if len(patch) > 0 {
		existing.Data = existing.Data.Overlay(patch)
	}
	if statusRank(StatusUploaded) >= statusRank(existing.Status) {
		existing.Status = StatusUploaded
	}
	return true
}

// Restart re-enters the lifecycle for a user-triggered retry. Valid only
// from failed; it resets the status and adopts the new attempt timestamp.
func (s *Store) Restart(clientMessageID string, status Status, at time.Time) bool {
	existing, ok := s.byClientID[clientMessageID]
	if !ok || existing.Status != StatusFailed {
		return false
	}
	existing.Status = status
	if !at.IsZero() {
		existing.Time = at
	}
	s.sortByTime()
	return true
}

// Remove deletes the entry for a clientMessageId. Used when a retry abandons
// a failed attempt's identity in favor of a fresh one.
func (s *Store) Remove(clientMessageID string) bool {
	existing, ok := s.byClientID[clientMessageID]
	if !ok {
		return false
	}
	delete(s.byClientID, clientMessageID)
	if existing.ID != "" {
		delete(s.byServerID, existing.ID)
	}
	for i, m := range s.msgs {
		if m == existing {
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
			break
		}
	}
	return true
}

// MarkDelivered advances a server-identified message to delivered.
func (s *Store) MarkDelivered(serverID string) bool {
	return s.advanceByServerID(serverID, StatusDelivered)
}

// MarkRead advances a server-identified message to read.
func (s *Store) MarkRead(serverID string) bool {
	return s.advanceByServerID(serverID, StatusRead)
}

func (s *Store) advanceByServerID(serverID string, status Status) bool {
	existing, ok := s.byServerID[serverID]
	if !ok {
		return false
	}
	if statusRank(status) >= statusRank(existing.Status) {
		existing.Status = status
	}
	return true
}

// ByClientID returns the current entry for a clientMessageId.
func (s *Store) ByClientID(clientMessageID string) (Message, bool) {
	existing, ok := s.byClientID[clientMessageID]
	if !ok {
		return Message{}, false
	}
	return snapshot(existing), true
}

// ByServerID returns the current entry for a server id.
func (s *Store) ByServerID(serverID string) (Message, bool) {
	existing, ok := s.byServerID[serverID]
	if !ok {
		return Message{}, false
	}
	return snapshot(existing), true
}

// Messages returns a snapshot of the ordered sequence.
func (s *Store) Messages() []Message {
	out := make([]Message, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = snapshot(m)
	}
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int { return len(s.msgs) }

func (s *Store) sortByTime() {
	sort.SliceStable(s.msgs, func(i, j int) bool {
		return s.msgs[i].Time.Before(s.msgs[j].Time)
	})
}

func snapshot(m *Message) Message {
	out := *m
	out.Data = m.Data.Clone()
	return out
}
