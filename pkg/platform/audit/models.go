// Package audit defines the audit event taxonomy for the query-and-settlement
// engine and the store/publisher contracts around it.
package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose. This
// enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal or regulatory
	// significance: record lifecycle, fund distribution, slashing.
	// These require durable storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring:
	// authorization failures, role grants and revocations.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and
	// operational visibility: executed queries, decryption round-trips.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key engine actions. It is
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	Action    Action        `json:"action"`
	// ActorID is the authenticated caller that triggered the action.
	ActorID string `json:"actor_id,omitempty"`
	// OwnerID / RequesterID identify the affected parties where relevant.
	OwnerID     string `json:"owner_id,omitempty"`
	RequesterID string `json:"requester_id,omitempty"`
	RecordID    string `json:"record_id,omitempty"`
	QueryID     string `json:"query_id,omitempty"`
	// AmountWei carries the payment, credit or stake amount involved.
	AmountWei uint64 `json:"amount_wei,omitempty"`
	// Decision records the outcome for gate-style actions, e.g.
	// "anonymity_met" vs "anonymity_rejected".
	Decision string `json:"decision,omitempty"`
	Reason   string `json:"reason,omitempty"`
	// RequestID is the correlation id from the HTTP request context.
	RequestID string `json:"request_id,omitempty"`
}

// Action names an auditable engine action.
type Action string

const (
	// Record index actions.
	ActionRecordSubmitted Action = "record_submitted"
	ActionConsentUpdated  Action = "consent_updated"
	ActionRecordRevoked   Action = "record_revoked"

	// Query oracle actions.
	ActionAggregateQueryExecuted  Action = "aggregate_query_executed"
	ActionIndividualQueryExecuted Action = "individual_query_executed"
	ActionDecryptionRequested     Action = "decryption_requested"
	ActionDecryptionSubmitted     Action = "decryption_submitted"

	// Settlement actions.
	ActionEarningsDistributed Action = "earnings_distributed"
	ActionEarningsWithdrawn   Action = "earnings_withdrawn"

	// Verification registry actions.
	ActionStakeDeposited  Action = "stake_deposited"
	ActionConfidenceScored Action = "confidence_scored"
	ActionDisputeOpened   Action = "dispute_opened"
	ActionDisputeResolved Action = "dispute_resolved"
	ActionStakeSlashed    Action = "stake_slashed"
	ActionStakeWithdrawn  Action = "stake_withdrawn"

	// Administrative actions.
	ActionRoleGranted   Action = "role_granted"
	ActionRoleRevoked   Action = "role_revoked"
	ActionParamsUpdated Action = "params_updated"

	// Security actions.
	ActionAuthorizationDenied Action = "authorization_denied"
)

// actionCategories maps each action to its category. Unknown actions default
// to CategoryOperations.
var actionCategories = map[Action]EventCategory{
	ActionRecordSubmitted:     CategoryCompliance,
	ActionConsentUpdated:      CategoryCompliance,
	ActionRecordRevoked:       CategoryCompliance,
	ActionEarningsDistributed: CategoryCompliance,
	ActionEarningsWithdrawn:   CategoryCompliance,
	ActionStakeSlashed:        CategoryCompliance,
	ActionDisputeResolved:     CategoryCompliance,

	ActionRoleGranted:         CategorySecurity,
	ActionRoleRevoked:         CategorySecurity,
	ActionAuthorizationDenied: CategorySecurity,

	ActionAggregateQueryExecuted:  CategoryOperations,
	ActionIndividualQueryExecuted: CategoryOperations,
	ActionDecryptionRequested:     CategoryOperations,
	ActionDecryptionSubmitted:     CategoryOperations,
	ActionStakeDeposited:          CategoryOperations,
	ActionConfidenceScored:        CategoryOperations,
	ActionDisputeOpened:           CategoryOperations,
	ActionStakeWithdrawn:          CategoryOperations,
	ActionParamsUpdated:           CategoryOperations,
}

// Category returns the EventCategory for this action.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Store is the append-only persistence contract for audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	// ListByQuery returns events that reference the given query id, oldest
	// first. Used by auditors to reconstruct a query's full settlement
	// trail.
	ListByQuery(ctx context.Context, queryID string) ([]Event, error)
}

// Publisher is what domain services hold to emit events.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}
