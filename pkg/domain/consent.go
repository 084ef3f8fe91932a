package domain

import dErrors "dataledger/pkg/domain-errors"

// ConsentLevel controls how a record may surface in query results.
// aggregate_only records contribute to encrypted sums and counts but are
// never disclosed individually; individual_allowed records may additionally
// appear in an anonymity-gated id list.
type ConsentLevel string

const (
	ConsentAggregateOnly     ConsentLevel = "aggregate_only"
	ConsentIndividualAllowed ConsentLevel = "individual_allowed"
)

// Valid reports whether the level is one of the two defined values.
func (l ConsentLevel) Valid() bool {
	return l == ConsentAggregateOnly || l == ConsentIndividualAllowed
}

// ParseConsentLevel validates a consent level at the trust boundary.
func ParseConsentLevel(raw string) (ConsentLevel, error) {
	level := ConsentLevel(raw)
	if !level.Valid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "consent level must be aggregate_only or individual_allowed")
	}
	return level, nil
}
