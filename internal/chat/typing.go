package chat

import "time"

// TypingWindow is how long a typing signal stays visible without a follow-up
// event for the same sender.
const TypingWindow = 2000 * time.Millisecond

// TypingState is the per-participant typing indicator map.
//
// It only consumes inbound signals and exposes the current view; expiry is
// driven externally (the conversation reducer restarts a per-sender timer on
// every signal and clears the entry when it fires). Nothing here emits
// network traffic.
type TypingState struct {
	active map[string]bool
}

// NewTypingState returns an empty typing map.
func NewTypingState() *TypingState {
	return &TypingState{active: make(map[string]bool)}
}

// Set records the typing state for a sender.
func (t *TypingState) Set(sender string, typing bool) {
	if sender == "" {
		return
	}
	if typing {
		t.active[sender] = true
		return
	}
	delete(t.active, sender)
}

// IsTyping reports whether a sender is currently typing.
func (t *TypingState) IsTyping(sender string) bool {
	return t.active[sender]
}

// Snapshot returns a copy of the current typing map.
func (t *TypingState) Snapshot() map[string]bool {
	out := make(map[string]bool, len(t.active))
	for k, v := range t.active {
		out[k] = v
	}
	return out
}

// Reset clears all typing entries. Called on session teardown.
func (t *TypingState) Reset() {
	t.active = make(map[string]bool)
}
