// Package postgres persists audit events in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	audit "dataledger/pkg/platform/audit"
)

// Store is pure I/O; categorization and timestamps are set by the publisher.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Schema is the table this store expects. Applied by migrations; exposed so
// integration tests can create it directly.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id           BIGSERIAL PRIMARY KEY,
	category     TEXT        NOT NULL,
	ts           TIMESTAMPTZ NOT NULL,
	action       TEXT        NOT NULL,
	actor_id     TEXT        NOT NULL DEFAULT '',
	owner_id     TEXT        NOT NULL DEFAULT '',
	requester_id TEXT        NOT NULL DEFAULT '',
	record_id    TEXT        NOT NULL DEFAULT '',
	query_id     TEXT        NOT NULL DEFAULT '',
	amount_wei   NUMERIC(20) NOT NULL DEFAULT 0,
	decision     TEXT        NOT NULL DEFAULT '',
	reason       TEXT        NOT NULL DEFAULT '',
	request_id   TEXT        NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_events_query_idx ON audit_events (query_id) WHERE query_id <> '';
`

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events
			(category, ts, action, actor_id, owner_id, requester_id, record_id, query_id, amount_wei, decision, reason, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		string(event.Category),
		event.Timestamp,
		string(event.Action),
		event.ActorID,
		event.OwnerID,
		event.RequesterID,
		event.RecordID,
		event.QueryID,
		event.AmountWei,
		event.Decision,
		event.Reason,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByQuery(ctx context.Context, queryID string) ([]audit.Event, error) {
	query := `
		SELECT category, ts, action, actor_id, owner_id, requester_id, record_id, query_id, amount_wei, decision, reason, request_id
		FROM audit_events
		WHERE query_id = $1
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, queryID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var e audit.Event
		var category, action string
		if err := rows.Scan(&category, &e.Timestamp, &action, &e.ActorID, &e.OwnerID,
			&e.RequesterID, &e.RecordID, &e.QueryID, &e.AmountWei, &e.Decision, &e.Reason, &e.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		e.Action = audit.Action(action)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}
