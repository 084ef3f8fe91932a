package audit

import (
	"context"
	"time"
)

// StorePublisher captures structured audit events synchronously. It is
// append-only and uses the storage layer for persistence so tests can swap
// sinks easily. Compliance-category events are fail-closed: a failed append
// must fail the calling operation.
type StorePublisher struct {
	store Store
}

func NewStorePublisher(store Store) *StorePublisher {
	return &StorePublisher{store: store}
}

func (p *StorePublisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = event.Action.Category()
	}
	return p.store.Append(ctx, event)
}

// ChannelPublisher hands events to a buffered channel consumed by a Worker.
// Emission never blocks the calling operation; when the buffer is full the
// event is dropped and reported through the overflow callback. Do not use it
// for compliance events.
type ChannelPublisher struct {
	inbox    chan<- Event
	overflow func(Event)
}

func NewChannelPublisher(inbox chan<- Event, overflow func(Event)) *ChannelPublisher {
	return &ChannelPublisher{inbox: inbox, overflow: overflow}
}

func (p *ChannelPublisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = event.Action.Category()
	}
	select {
	case p.inbox <- event:
	default:
		if p.overflow != nil {
			p.overflow(event)
		}
	}
	return nil
}

// NopPublisher discards events. Useful in unit tests that don't assert on
// the audit trail.
type NopPublisher struct{}

func (NopPublisher) Emit(context.Context, Event) error { return nil }
