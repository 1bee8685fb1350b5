package sampledata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlemilk/pfinance/analytics/internal/features"
	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

var now = time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)

func TestTransactionsDeterministic(t *testing.T) {
	p := DefaultProfile("u1", now)
	a, b := Transactions(p), Transactions(p)
	require.NotEmpty(t, a)
	assert.Equal(t, a, b)

	p.Seed = 7
	assert.NotEqual(t, a, Transactions(p))
}

func TestRecordsAreValid(t *testing.T) {
	p := DefaultProfile("u1", now)
	records := Records(p)
	require.Len(t, records, 24)
	assert.Equal(t, finance.Period{Year: 2023, Month: time.June}, records[0].Period)
	assert.Equal(t, finance.Period{Year: 2025, Month: time.May}, records[23].Period)

	caveats, err := features.Validate(records)
	require.NoError(t, err)
	assert.Empty(t, caveats)

	for _, r := range records {
		assert.Greater(t, r.TotalIncome, r.TotalExpense, r.Period.String())
		assert.Equal(t, 49.0, r.Category("Healthcare"))
		assert.Equal(t, 15.99, r.Category("Entertainment"))
	}
	dec := records[6]
	require.Equal(t, time.December, dec.Period.Month)
	assert.Equal(t, 9000.0, dec.TotalIncome)
}

func TestEmptyProfile(t *testing.T) {
	assert.Nil(t, Transactions(Profile{UserID: "u1"}))
	assert.Nil(t, Transactions(Profile{Months: 3}))
}

func TestGoals(t *testing.T) {
	g := Goals("u1", now)
	require.Len(t, g, 2)
	assert.Equal(t, g, Goals("u1", now))
	assert.False(t, g[0].TargetDate.IsZero())
	assert.Zero(t, g[1].TargetDate)
}
