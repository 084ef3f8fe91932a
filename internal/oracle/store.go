package oracle

import (
	"context"

	"dataledger/pkg/domain"
)

// Store persists query results. Aggregate results mutate only through
// ExecuteAggregate, which runs validate then mutate while holding the
// result's lock so decryption transitions are atomic.
type Store interface {
	SaveAggregate(ctx context.Context, result *QueryResult) error
	GetAggregate(ctx context.Context, id domain.QueryID) (*QueryResult, error)
	// ExecuteAggregate loads the result, runs validate, applies mutate if
	// validation passed, and returns the updated result.
	ExecuteAggregate(
		ctx context.Context,
		id domain.QueryID,
		validate func(*QueryResult) error,
		mutate func(*QueryResult),
	) (*QueryResult, error)

	SaveIndividual(ctx context.Context, result *IndividualQueryResult) error
	GetIndividual(ctx context.Context, id domain.QueryID) (*IndividualQueryResult, error)
}
