// Package store owns the canonical in-memory document and its single
// mutation funnel. Every state change goes through one commit path that
// normalizes the document, persists it locally and schedules replication.
//
// A single-writer mutex serializes all mutations. Mutations are applied to a
// clone and the clone is swapped in only after the local persistence guard
// accepts it, so a committed document is never mutated again — snapshots
// handed to replicators stay stable without copying.
package store

import (
	"context"
	"sync"

	"github.com/dueskeeper/dueskeeper/internal/logging"
	"github.com/dueskeeper/dueskeeper/internal/state"
)

// Persister is the local persistence engine. Write returns an error only for
// guard rejections; filesystem failures are handled inside.
type Persister interface {
	Write(ctx context.Context, doc *state.Document, reason string) error
}

// Scheduler is a replication coordinator accepting fire-and-forget snapshots.
type Scheduler interface {
	Schedule(doc *state.Document)
}

// Store is the canonical state handle.
type Store struct {
	persister  Persister
	schedulers []Scheduler
	logger     logging.Logger

	mu  sync.Mutex
	doc *state.Document
}

// New returns a store owning doc. schedulers receive every committed
// snapshot.
func New(doc *state.Document, persister Persister, logger logging.Logger, schedulers ...Scheduler) *Store {
	if doc == nil {
		doc = state.New()
	}
	doc.Normalize()
	return &Store{
		persister:  persister,
		schedulers: schedulers,
		logger:     logger.With("component", "store"),
		doc:        doc,
	}
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot() *state.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Update applies fn to a copy of the document and commits the result. If fn
// returns an error, or the commit is rejected by the anti-loss guard, the
// in-memory document is left unchanged and the error is returned.
func (s *Store) Update(ctx context.Context, reason string, fn func(doc *state.Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.doc.Clone()
	if err := fn(next); err != nil {
		return err
	}
	return s.commitLocked(ctx, next, reason)
}

// Replace swaps in a whole new document (relational bootstrap path). The
// anti-loss guard still applies.
func (s *Store) Replace(ctx context.Context, doc *state.Document, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx, doc.Clone(), reason)
}

func (s *Store) commitLocked(ctx context.Context, next *state.Document, reason string) error {
	next.Normalize()

	if err := s.persister.Write(ctx, next, reason); err != nil {
		s.logger.Warn(ctx, "commit rejected", "reason", reason, "error", err)
		return err
	}

	s.doc = next

	for _, sched := range s.schedulers {
		sched.Schedule(next)
	}

	s.logger.Debug(ctx, "state committed", "reason", reason, "score", next.Score())
	return nil
}
