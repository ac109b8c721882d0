// Package seqnum implements the AODVv2 16-bit sequence number
// arithmetic from spec.md §4.1: monotonic allocation, circular
// comparison, and lifetime-bounded reset.
package seqnum

import (
	"sync"
	"time"
)

// Value 0 is reserved to mean "unknown" and is never issued by New.
const Unknown uint16 = 0

const resetValue uint16 = 1

// Counter is the core's own sequence number generator. The zero value
// is not ready to use; construct with NewCounter().
type Counter struct {
	mu       sync.Mutex
	value    uint16
	lastUsed time.Time
	lifetime time.Duration
	now      func() time.Time
}

// NewCounter returns a Counter whose own sequence number starts at 1
// and is reset to 1 after lifetime of inactivity (spec.md's
// MAX_SEQNUM_LIFETIME).
func NewCounter(lifetime time.Duration) *Counter {
	return &Counter{
		value:    resetValue,
		lastUsed: time.Now(),
		lifetime: lifetime,
		now:      time.Now,
	}
}

// New returns the current own SeqNum and advances it by one, wrapping
// from 65535 to 1 (never 0).
func (c *Counter) New() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetIfIdleLocked()

	v := c.value
	if c.value == 0xFFFF {
		c.value = resetValue
	} else {
		c.value++
	}
	c.lastUsed = c.now()
	return v
}

// ResetIfIdle resets the own SeqNum to 1 if no SeqNum has been issued
// for at least lifetime. It is safe to call on a timer; most callers
// never need to, since New() performs the same check lazily.
func (c *Counter) ResetIfIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetIfIdleLocked()
}

func (c *Counter) resetIfIdleLocked() {
	if c.lifetime <= 0 {
		return
	}
	if c.now().Sub(c.lastUsed) >= c.lifetime {
		c.value = resetValue
	}
}

// Current returns the SeqNum that would be issued by the next call to
// New, without advancing the counter.
func (c *Counter) Current() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetIfIdleLocked()
	return c.value
}

// Cmp performs RFC-1982-style circular comparison: negative when a is
// older than b, zero when equal, positive when a is newer. The values
// are never compared as plain integers.
func Cmp(a, b uint16) int {
	diff := int16(a - b)
	switch {
	case diff == 0:
		return 0
	case diff > 0:
		return 1
	default:
		return -1
	}
}

// Newer reports whether a is strictly newer than b under circular
// comparison.
func Newer(a, b uint16) bool {
	return Cmp(a, b) > 0
}
