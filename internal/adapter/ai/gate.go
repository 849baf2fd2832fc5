package ai

import (
	"context"
)

// Gate bounds the number of outbound calls in flight regardless of how many
// clusters a tick produced. Acquire blocks the calling dispatch only; other
// dispatches and the batch tick keep running.
type Gate struct {
	slots chan struct{}
}

// NewGate creates a gate admitting at most capacity concurrent holders.
func NewGate(capacity int) *Gate {
	if capacity <= 0 {
		capacity = 1
	}
	return &Gate{slots: make(chan struct{}, capacity)}
}

// Acquire blocks until a slot is free or the context is done.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot. Must pair with a successful Acquire.
func (g *Gate) Release() {
	<-g.slots
}

// InFlight returns the number of slots currently held.
func (g *Gate) InFlight() int {
	return len(g.slots)
}

// Capacity returns the configured maximum.
func (g *Gate) Capacity() int {
	return cap(g.slots)
}
