package testutil

import (
	"fmt"
	"sync"
)

// TrackingCodes hands out client tracking codes "<prefix>-1", "<prefix>-2",
// and so on, so that repeated runs submit identical transactions.
//
// Safe for concurrent use.
type TrackingCodes struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewTrackingCodes returns a generator for prefix. An empty prefix means
// "client".
func NewTrackingCodes(prefix string) *TrackingCodes {
	if prefix == "" {
		prefix = "client"
	}
	return &TrackingCodes{prefix: prefix}
}

// Next returns the next code.
func (c *TrackingCodes) Next() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return fmt.Sprintf("%s-%d", c.prefix, c.seq)
}

// Reset restarts the sequence at 1.
func (c *TrackingCodes) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
