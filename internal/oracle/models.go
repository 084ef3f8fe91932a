// Package oracle implements the query engine: paid aggregate and individual
// queries over the record index, the k-anonymity gate on individual results,
// and the two-phase decryption protocol for aggregates. Every accepted query
// forwards its payment to settlement in the same call.
package oracle

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"dataledger/internal/encryption"
	"dataledger/pkg/domain"
	dErrors "dataledger/pkg/domain-errors"
)

// QueryResult is an executed aggregate query. The sum and count accumulators
// stay opaque handles until the decryption callback lands; decrypted flips
// false to true exactly once and the result is immutable afterward.
type QueryResult struct {
	ID        domain.QueryID     `json:"query_id"`
	Requester domain.RequesterID `json:"requester"`

	ScannedFrom  domain.RecordID `json:"scanned_from"`
	ScannedCount int             `json:"scanned_count"`

	SumHandle   encryption.Ciphertext `json:"sum_handle"`
	CountHandle encryption.Ciphertext `json:"count_handle"`

	FeePaid   domain.Wei `json:"fee_paid_wei"`
	CreatedAt time.Time  `json:"created_at"`

	// Decryption protocol state. The commitment binds the submit phase to
	// the proof token issued at request time; the token itself is never
	// stored.
	DecryptionRequested bool   `json:"decryption_requested"`
	ProofCommitment     string `json:"-"`
	Decrypted           bool   `json:"decrypted"`
	PlainSum            uint64 `json:"plain_sum,omitempty"`
	PlainCount          uint64 `json:"plain_count,omitempty"`
}

// CommitProof derives the stored commitment from a proof token.
func CommitProof(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (q *QueryResult) CanRequestDecryption() error {
	if q.Decrypted {
		return dErrors.New(dErrors.CodeConflict, "query result is already decrypted")
	}
	if q.DecryptionRequested {
		return dErrors.New(dErrors.CodeConflict, "decryption already requested")
	}
	return nil
}

func (q *QueryResult) ApplyRequestDecryption(commitment string) {
	q.DecryptionRequested = true
	q.ProofCommitment = commitment
}

// CanSubmitDecrypted validates the second phase: a request must be open, the
// result must not already be decrypted, and the proof must hash to the
// stored commitment.
func (q *QueryResult) CanSubmitDecrypted(proof string) error {
	if q.Decrypted {
		return dErrors.New(dErrors.CodeConflict, "query result is already decrypted")
	}
	if !q.DecryptionRequested {
		return dErrors.New(dErrors.CodeConflict, "decryption was not requested")
	}
	if CommitProof(proof) != q.ProofCommitment {
		return dErrors.New(dErrors.CodeUnauthorized, "decryption proof does not match")
	}
	return nil
}

func (q *QueryResult) ApplySubmitDecrypted(sum, count uint64) {
	q.Decrypted = true
	q.PlainSum = sum
	q.PlainCount = count
}

// IndividualQueryResult is an executed individual query. RecordIDs is
// populated only when the anonymity gate held at execution time; a gated
// result is empty by construction, never populated then hidden.
type IndividualQueryResult struct {
	ID        domain.QueryID     `json:"query_id"`
	Requester domain.RequesterID `json:"requester"`

	TotalMatching  int  `json:"total_matching"`
	ConsentedCount int  `json:"consented_count"`
	AnonymityMet   bool `json:"anonymity_met"`

	RecordIDs []domain.RecordID `json:"record_ids"`

	FeePaid   domain.Wei `json:"fee_paid_wei"`
	CreatedAt time.Time  `json:"created_at"`
}
