package provision

import (
	"context"
	"sync"
)

// Context is the process-wide provisioning result: written once by the
// supervisor, read-only after the ready latch fires.
type Context struct {
	VectorStoreID string
	AgentIDs      map[string]string

	once  sync.Once
	ready chan struct{}
}

// NewContext returns an unprovisioned context whose latch has not fired.
func NewContext() *Context {
	return &Context{AgentIDs: map[string]string{}, ready: make(chan struct{})}
}

// SignalReady fires the latch. Subsequent calls are no-ops.
func (c *Context) SignalReady() {
	c.once.Do(func() { close(c.ready) })
}

// WaitReady blocks until the latch has fired or ctx is done. Waiters after
// the first fire return immediately.
func (c *Context) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether the latch has fired, without blocking.
func (c *Context) Ready() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

// AgentID returns the provisioned id for a canonical agent name.
func (c *Context) AgentID(name string) (string, bool) {
	id, ok := c.AgentIDs[name]
	return id, ok
}
