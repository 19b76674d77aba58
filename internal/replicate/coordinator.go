// Package replicate pushes committed state snapshots to secondary backends:
// a relational store holding the full document and a remote version-controlled
// snapshot holding a reduced projection. Replication is best-effort and never
// blocks or fails the committing caller; the local file stays the primary
// source of truth.
package replicate

import (
	"context"
	"sync"

	"github.com/dueskeeper/dueskeeper/internal/logging"
	"github.com/dueskeeper/dueskeeper/internal/state"
)

// Backend is one replication target.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string

	// Write pushes the document to the backend. It may block on network I/O
	// and is only ever called from a single goroutine per coordinator.
	Write(ctx context.Context, doc *state.Document) error
}

// Coordinator serializes writes to one backend, coalescing bursts: at most
// one write is in flight and at most one re-run is queued. When a write
// completes and newer state was scheduled meanwhile, the worker immediately
// writes again with the then-latest snapshot, so the backend converges on the
// most recent call's content.
type Coordinator struct {
	backend Backend
	logger  logging.Logger

	mu       sync.Mutex
	latest   *state.Document
	inflight bool
	dirty    bool
	quiesced chan struct{}
}

// NewCoordinator returns a coordinator for the given backend.
func NewCoordinator(backend Backend, logger logging.Logger) *Coordinator {
	return &Coordinator{
		backend: backend,
		logger:  logger.With("backend", backend.Name()),
	}
}

// Schedule registers doc as the content the backend should eventually hold.
// It is fire-and-forget: it never blocks and never returns an error. Write
// failures are logged; the retry trigger is the next Schedule call.
func (c *Coordinator) Schedule(doc *state.Document) {
	c.mu.Lock()
	c.latest = doc
	if c.inflight {
		c.dirty = true
		c.mu.Unlock()
		return
	}
	c.inflight = true
	c.quiesced = make(chan struct{})
	q := c.quiesced
	c.mu.Unlock()

	go c.run(q)
}

func (c *Coordinator) run(quiesced chan struct{}) {
	defer close(quiesced)

	for {
		c.mu.Lock()
		doc := c.latest
		c.mu.Unlock()

		ctx := context.Background()
		if err := c.backend.Write(ctx, doc); err != nil {
			c.logger.Error(ctx, "replication write failed", "error", err)
		} else {
			c.logger.Debug(ctx, "replication write done", "score", doc.Score())
		}

		c.mu.Lock()
		if !c.dirty {
			c.inflight = false
			c.mu.Unlock()
			return
		}
		c.dirty = false
		c.mu.Unlock()
	}
}

// Flush blocks until the work in flight at the time of the call has drained,
// or ctx expires. Used at shutdown and in tests.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	if !c.inflight {
		c.mu.Unlock()
		return nil
	}
	q := c.quiesced
	c.mu.Unlock()

	select {
	case <-q:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
