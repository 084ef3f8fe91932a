package domain_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataledger/pkg/domain"
	dErrors "dataledger/pkg/domain-errors"
)

func TestWeiAdd(t *testing.T) {
	sum, err := domain.Wei(1).Add(2)
	require.NoError(t, err)
	assert.Equal(t, domain.Wei(3), sum)

	_, err = domain.Wei(math.MaxUint64).Add(1)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestWeiSub(t *testing.T) {
	diff, err := domain.Wei(5).Sub(3)
	require.NoError(t, err)
	assert.Equal(t, domain.Wei(2), diff)

	_, err = domain.Wei(3).Sub(5)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestWeiSplitBPS(t *testing.T) {
	// 30% of 0.001 ETH.
	assert.Equal(t, domain.Wei(300_000_000_000_000), domain.Wei(1_000_000_000_000_000).SplitBPS(3000))

	// Small amounts round down.
	assert.Equal(t, domain.Wei(0), domain.Wei(3).SplitBPS(3000))

	// Full uint64 range splits without wrapping.
	full := domain.Wei(math.MaxUint64)
	assert.Equal(t, full, full.SplitBPS(10_000))
	assert.Less(t, uint64(full.SplitBPS(9_999)), uint64(full))

	// Out-of-range bps is capped at 100%.
	assert.Equal(t, domain.Wei(100), domain.Wei(100).SplitBPS(20_000))
}
