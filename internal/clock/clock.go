// Package clock implements the Lamport logical clock (component C1).
package clock

import (
	"sync"

	"github.com/lamportchain/ledgerd/internal/types"
)

// Clock is a monotonic Lamport counter, safe for concurrent use. Both
// operations are atomic with respect to each other.
type Clock struct {
	mu    sync.Mutex
	value types.LamportTime
}

// New returns a Clock starting at zero.
func New() *Clock {
	return &Clock{}
}

// TickSend advances the clock by one and returns the new value. It
// must be called exactly once before emitting any outbound message.
func (c *Clock) TickSend() types.LamportTime {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value++
	return c.value
}

// TickRecv applies the Lamport receive rule: the clock becomes
// max(local, peer) + 1, even if the local value was already larger.
// It must be called exactly once on receiving any inbound message,
// before any other handler logic observes the clock.
func (c *Clock) TickRecv(peer types.LamportTime) types.LamportTime {
	c.mu.Lock()
	defer c.mu.Unlock()
	if peer > c.value {
		c.value = peer
	}
	c.value++
	return c.value
}

// Peek returns the current value without advancing it. Intended for
// diagnostics (the operator status endpoint) only — protocol logic
// must never branch on a peeked value.
func (c *Clock) Peek() types.LamportTime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
