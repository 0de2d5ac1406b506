package chat

// optimisticCacheCap bounds the number of retained payload snapshots. A
// conversation session never has anywhere near this many sends in flight;
// the cap exists so a long-lived session cannot grow without bound.
const optimisticCacheCap = 128

// OptimisticCache stores payload snapshots of locally-created messages,
// keyed by clientMessageId.
//
// It is written when a message is optimistically created and read only as a
// field-level fallback during normalization, so a stripped-down server echo
// cannot erase rich fields chosen at send time (an avatar, a local caption).
// The cache is owned by one conversation session: entries are evicted when a
// confirmed server payload supersedes them and the whole cache is reset when
// the session ends or the active conversation switches.
type OptimisticCache struct {
	entries map[string]Payload
	order   []string
	cap     int
}

// NewOptimisticCache returns an empty session-scoped cache.
func NewOptimisticCache() *OptimisticCache {
	return &OptimisticCache{
		entries: make(map[string]Payload),
		cap:     optimisticCacheCap,
	}
}

// Put records a payload snapshot for a client message id. An existing entry
// for the same id is replaced without changing its eviction position.
func (c *OptimisticCache) Put(clientMessageID string, payload Payload) {
	if clientMessageID == "" {
		return
	}
	if _, exists := c.entries[clientMessageID]; !exists {
		c.order = append(c.order, clientMessageID)
		for len(c.order) > c.cap {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
	}
	c.entries[clientMessageID] = payload.Clone()
}

// Lookup returns the snapshot for a client message id.
func (c *OptimisticCache) Lookup(clientMessageID string) (Payload, bool) {
	p, ok := c.entries[clientMessageID]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Evict removes the entry for a client message id. Called when a confirmed
// server payload supersedes the optimistic snapshot.
func (c *OptimisticCache) Evict(clientMessageID string) {
	if _, ok := c.entries[clientMessageID]; !ok {
		return
	}
	delete(c.entries, clientMessageID)
	for i, id := range c.order {
		if id == clientMessageID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Reset drops every entry. Called on session teardown.
func (c *OptimisticCache) Reset() {
	c.entries = make(map[string]Payload)
	c.order = nil
}

// Len returns the number of retained entries.
func (c *OptimisticCache) Len() int { return len(c.entries) }
