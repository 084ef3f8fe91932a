// Package memory provides the in-memory audit store used by unit tests and
// single-node development deployments.
package memory

import (
	"context"
	"sync"

	audit "dataledger/pkg/platform/audit"
)

// Store keeps audit events in an append-only slice guarded by a mutex.
type Store struct {
	mu     sync.RWMutex
	events []audit.Event
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *Store) ListByQuery(ctx context.Context, queryID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.QueryID == queryID {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns a copy of every recorded event in append order. Test helper.
func (s *Store) All() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, len(s.events))
	copy(out, s.events)
	return out
}
