// Package sequence provides the monotonic event ordering source stamped on
// every committed market event.
package sequence

import "sync/atomic"

// Counter is a lock-free, process-local sequence. Next never returns the same
// value twice and never returns zero.
type Counter struct {
	n atomic.Uint64
}

// NewCounter returns a Counter whose first Next is start+1. Pass the highest
// persisted sequence to resume after a restart.
func NewCounter(start uint64) *Counter {
	c := &Counter{}
	c.n.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Counter) Next() uint64 {
	return c.n.Add(1)
}

// Current returns the last number handed out.
func (c *Counter) Current() uint64 {
	return c.n.Load()
}
