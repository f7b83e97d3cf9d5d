package sourcemap

import (
	"context"
	"sync"
)

// ReadyGate is a one-shot barrier between the session's initial mapping
// setup and the queries that must not race it. It starts closed; Open
// flushes queued continuations in the order they were queued. Wait is a
// continuation that wakes the caller.
type ReadyGate struct {
	mu      sync.Mutex
	ready   bool
	waiters []func()
}

// NewReadyGate creates a closed gate.
func NewReadyGate() *ReadyGate {
	return &ReadyGate{}
}

// Ready reports whether the gate has opened.
func (g *ReadyGate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

// Open opens the gate and runs queued continuations. Calls after the
// first are no-ops.
func (g *ReadyGate) Open() {
	g.mu.Lock()
	if g.ready {
		g.mu.Unlock()
		return
	}
	g.ready = true
	waiters := g.waiters
	g.waiters = nil
	g.mu.Unlock()

	for _, fn := range waiters {
		fn()
	}
}

// Then runs fn once the gate is open: immediately if it already is,
// otherwise when Open is called.
func (g *ReadyGate) Then(fn func()) {
	g.mu.Lock()
	if !g.ready {
		g.waiters = append(g.waiters, fn)
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	fn()
}

// Wait blocks until the gate opens or ctx is done. A cancelled wait
// leaves its continuation queued; it is dropped when the gate opens.
func (g *ReadyGate) Wait(ctx context.Context) error {
	opened := make(chan struct{})
	g.Then(func() { close(opened) })

	select {
	case <-opened:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
