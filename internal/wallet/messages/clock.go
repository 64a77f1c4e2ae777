package messages

import "sync"

// Clock assigns the timestamps that order a conversation. The daemon's
// median time is the base; timestamps already seen this session (sent or
// received) bump the assignment to max(seen)+1 so the ordering key stays
// strictly increasing and collision free.
type Clock struct {
	mu       sync.Mutex
	seen     map[int64]struct{}
	maxSeen  int64
	assigned int64 // last timestamp handed out for an outgoing message
}

func NewClock() *Clock {
	return &Clock{seen: make(map[int64]struct{})}
}

// Observe feeds an inbound message timestamp into the session's seen set.
func (c *Clock) Observe(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(ts)
}

// Next picks the timestamp for an outgoing message given the daemon's
// current median time.
func (c *Clock) Next(medianTime int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := medianTime
	if _, collision := c.seen[ts]; collision {
		ts = c.maxSeen + 1
	}
	if ts <= c.assigned {
		ts = c.assigned + 1
	}

	c.record(ts)
	c.assigned = ts
	return ts
}

func (c *Clock) record(ts int64) {
	c.seen[ts] = struct{}{}
	if ts > c.maxSeen {
		c.maxSeen = ts
	}
}
