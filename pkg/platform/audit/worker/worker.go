// Package worker drains the audit inbox into the store and optional stream
// sink, keeping event persistence off the request path.
package worker

import (
	"context"
	"log/slog"

	audit "dataledger/pkg/platform/audit"
)

// Sink is an optional secondary destination (e.g. Kafka) fed after the store
// append succeeds.
type Sink interface {
	Publish(ctx context.Context, event audit.Event) error
}

// Worker consumes audit events from a channel and persists them. Store
// failures stop the worker (the supervising errgroup restarts or shuts the
// process down); sink failures are logged and skipped so a flaky broker
// cannot lose the durable copy.
type Worker struct {
	store  audit.Store
	sink   Sink
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func New(store audit.Store, sink Sink, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, sink: sink, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				return err
			}
			if w.sink != nil {
				if err := w.sink.Publish(ctx, event); err != nil {
					w.logger.WarnContext(ctx, "audit sink publish failed",
						"action", event.Action,
						"error", err,
					)
				}
			}
		}
	}
}
