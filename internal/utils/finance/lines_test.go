package finance_test

import (
	"testing"

	"github.com/pass-culture/finance_backend/internal/core/domain"
	"github.com/pass-culture/finance_backend/internal/utils/finance"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sumLines(lines []domain.PricingLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Amount)
	}
	return sum
}

func TestBuildLines_FullReimbursement(t *testing.T) {
	// 1000 fully reimbursed: revenue 1000, commission 0.
	lines, err := finance.BuildLines(d("1000"), d("1000"), decimal.Zero)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, domain.LineOffererRevenue, lines[0].Kind)
	assert.True(t, lines[0].Amount.Equal(d("1000")))
	assert.Equal(t, domain.LinePassCultureCommission, lines[1].Kind)
	assert.True(t, lines[1].Amount.IsZero())
	assert.True(t, sumLines(lines).Equal(d("1000")))
}

func TestBuildLines_PartialReimbursement(t *testing.T) {
	// 1000 at 80%: revenue 800, commission 200, sum still equals the price.
	lines, err := finance.BuildLines(d("1000"), d("800"), decimal.Zero)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.True(t, lines[0].Amount.Equal(d("800")))
	assert.True(t, lines[1].Amount.Equal(d("200")))
	assert.True(t, sumLines(lines).Equal(d("1000")))
	assert.True(t, finance.NetAmount(lines).Equal(d("800")))
}

func TestBuildLines_WithContribution(t *testing.T) {
	lines, err := finance.BuildLines(d("1000"), d("950"), d("-50"))
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.Equal(t, domain.LineOffererContribution, lines[1].Kind)
	assert.True(t, lines[1].Amount.Equal(d("-50")))
	// Commission balances the decomposition: 1000 - 950 + 50.
	assert.True(t, lines[2].Amount.Equal(d("100")))
	assert.True(t, sumLines(lines).Equal(d("1000")))
	// Cash moved is revenue + contribution.
	assert.True(t, finance.NetAmount(lines).Equal(d("900")))
}

func TestBuildLines_ReimbursedExceedsPrice(t *testing.T) {
	_, err := finance.BuildLines(d("1000"), d("1001"), decimal.Zero)
	assert.Error(t, err)
}

func TestBuildLines_PositiveContributionRejected(t *testing.T) {
	_, err := finance.BuildLines(d("1000"), d("900"), d("10"))
	assert.Error(t, err)
}

func TestBuildCompensationLines(t *testing.T) {
	lines := finance.BuildCompensationLines(d("800"))
	require.Len(t, lines, 2)

	assert.True(t, lines[0].Amount.Equal(d("-800")))
	assert.True(t, lines[1].Amount.Equal(d("800")))
	assert.True(t, sumLines(lines).IsZero())
	assert.True(t, finance.NetAmount(lines).Equal(d("-800")))
}
