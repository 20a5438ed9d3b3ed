package mining

import (
	"math"
	"sync"
	"sync/atomic"
)

// Coordinator is the state shared by the workers of a mining round. It hands
// out unique extra-nonces and records how the round ended.
type Coordinator struct {
	mu         sync.Mutex
	extraNonce uint64
	limit      uint64

	finished   atomic.Bool
	overflowed atomic.Bool
	stopped    atomic.Bool
}

// NewCoordinator constructs a coordinator that hands out extra-nonces below
// the limit. A zero limit uses the whole 64-bit space.
func NewCoordinator(limit uint64) *Coordinator {
	if limit == 0 {
		limit = math.MaxUint64
	}

	return &Coordinator{
		limit: limit,
	}
}

// Reset prepares the coordinator for a new round. The stopped flag is left
// alone since it is controlled from outside the round.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.extraNonce = 0
	c.finished.Store(false)
	c.overflowed.Store(false)
}

// NextExtraNonce returns an extra-nonce no other worker of the round has
// received. It returns false and marks the round overflowed once the space
// is exhausted.
func (c *Coordinator) NextExtraNonce() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.extraNonce >= c.limit {
		c.overflowed.Store(true)
		return 0, false
	}

	n := c.extraNonce
	c.extraNonce++

	return n, true
}

// Finish marks the round finished. Only the first caller gets true, which
// makes that caller the winner of the round.
func (c *Coordinator) Finish() bool {
	return c.finished.CompareAndSwap(false, true)
}

// IsFinished reports whether a worker solved the round.
func (c *Coordinator) IsFinished() bool {
	return c.finished.Load()
}

// Overflowed reports whether the extra-nonce space ran out.
func (c *Coordinator) Overflowed() bool {
	return c.overflowed.Load()
}

// SetStopped sets or clears the external stop.
func (c *Coordinator) SetStopped(stopped bool) {
	c.stopped.Store(stopped)
}

// IsStopped reports whether mining was stopped from outside.
func (c *Coordinator) IsStopped() bool {
	return c.stopped.Load()
}

// done reports whether a worker should give up on the round.
func (c *Coordinator) done() bool {
	return c.finished.Load() || c.overflowed.Load() || c.stopped.Load()
}
