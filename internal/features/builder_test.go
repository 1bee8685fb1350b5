package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

func monthly(n int, income, expense func(i int) float64) []finance.MonthlyRecord {
	start := finance.Period{Year: 2024, Month: time.January}
	out := make([]finance.MonthlyRecord, n)
	for i := range out {
		inc, exp := income(i), expense(i)
		out[i] = finance.MonthlyRecord{
			Period:       start.Add(i),
			TotalIncome:  inc,
			TotalExpense: exp,
			Savings:      inc - exp,
			Categories: map[string]float64{
				"Food":      exp * 0.4,
				"Transport": exp * 0.2,
				"Shopping":  exp * 0.4,
			},
		}
	}
	return out
}

func flat(v float64) func(int) float64 { return func(int) float64 { return v } }

func TestBuild_RowCount(t *testing.T) {
	b := NewBuilder()
	for n := 5; n <= 30; n++ {
		records := monthly(n, flat(5000), func(i int) float64 { return 4000 + float64(i%4)*50 })
		table, err := b.Build(records, SingleTarget(finance.ColumnExpense))
		require.NoError(t, err, "n=%d", n)
		assert.Equal(t, n-2, table.Len(), "n=%d", n)
		assert.Len(t, table.Y, table.Len()-1)
		assert.Equal(t, records[n-1].Period.Next(), table.NextPeriod())
		for _, row := range table.X {
			assert.Len(t, row, len(table.Columns))
		}
	}
}

func TestBuild_InsufficientHistory(t *testing.T) {
	b := NewBuilder()
	for _, n := range []int{0, 1, 3, 4} {
		_, err := b.Build(monthly(n, flat(1), flat(1)), SingleTarget(finance.ColumnExpense))
		require.Error(t, err)
		assert.ErrorIs(t, err, finance.ErrInsufficientHistory, "n=%d", n)
	}
}

func TestBuild_MinimumHistory(t *testing.T) {
	b := NewBuilder()
	need := MinRows + b.maxLag() - 1
	require.Equal(t, 5, need)

	table, err := b.Build(monthly(need, flat(5000), flat(4000)), SingleTarget(finance.ColumnExpense))
	require.NoError(t, err)
	assert.Equal(t, need-(b.maxLag()-1), table.Len())
	assert.Equal(t, MinRows, table.Len())

	_, err = b.Build(monthly(need-1, flat(5000), flat(4000)), SingleTarget(finance.ColumnExpense))
	require.ErrorIs(t, err, finance.ErrInsufficientHistory)
	assert.ErrorContains(t, err, "requires at least 5 periods, got 4")
}

func TestBuild_NoTargetLeakage(t *testing.T) {
	b := NewBuilder()
	records := monthly(12, flat(5000), func(i int) float64 { return 3000 + float64(i)*25 })
	spec := SingleTarget(finance.ColumnSavings, finance.ColumnIncome, finance.ColumnExpense)

	table, err := b.Build(records, spec)
	require.NoError(t, err)
	for _, c := range table.Columns {
		for _, target := range spec.Targets {
			assert.NotEqual(t, target, c)
		}
		assert.NotEqual(t, finance.ColumnIncome, c)
		assert.NotEqual(t, finance.ColumnExpense, c)
	}

	// Perturbing the final observed month must not change its own feature row.
	perturbed := append([]finance.MonthlyRecord(nil), records...)
	perturbed[11].TotalExpense = 99999
	perturbed[11].Savings = perturbed[11].TotalIncome - perturbed[11].TotalExpense
	other, err := b.Build(perturbed, spec)
	require.NoError(t, err)

	last := len(table.Y) - 1
	assert.Equal(t, records[11].Period, table.Periods[last])
	assert.Equal(t, table.X[last], other.X[last])
	assert.NotEqual(t, table.Y[last], other.Y[last])
	assert.NotEqual(t, table.Latest(), other.Latest())
}

func TestBuild_ZeroBaselineGrowthIsBounded(t *testing.T) {
	b := NewBuilder()
	records := monthly(8, flat(5000), func(i int) float64 {
		if i%2 == 0 {
			return 0
		}
		return 1200
	})
	table, err := b.Build(records, SingleTarget(finance.ColumnExpense))
	require.NoError(t, err)

	mom := table.ColumnIndex(finance.ColumnExpense + "_mom_growth")
	require.GreaterOrEqual(t, mom, 0)
	for _, row := range table.X {
		for _, v := range row {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		}
		assert.LessOrEqual(t, math.Abs(row[mom]), GrowthCap)
	}
	require.NotEmpty(t, table.Caveats)
	assert.Equal(t, finance.CaveatZeroBaseline, table.Caveats[0].Code)
}

func TestBuild_MultiTargetOrdering(t *testing.T) {
	b := NewBuilder()
	cats := []string{"Food", "Transport", "Shopping"}
	table, err := b.Build(monthly(10, flat(5000), flat(4000)), MultiTarget(cats))
	require.NoError(t, err)
	assert.Equal(t, cats, table.Targets)
	require.NotEmpty(t, table.Y)
	assert.InDelta(t, 1600, table.Y[0][0], 1e-9)
	assert.InDelta(t, 800, table.Y[0][1], 1e-9)
	assert.Equal(t, b.Columns(MultiTarget(cats)), table.Columns)
}

func TestBuild_InvalidSpec(t *testing.T) {
	b := NewBuilder()
	records := monthly(8, flat(1), flat(1))

	_, err := b.Build(records, TargetSpec{})
	assert.ErrorIs(t, err, finance.ErrInvalidParameter)

	_, err = b.Build(records, TargetSpec{Targets: []string{"Food", "Food"}})
	assert.ErrorIs(t, err, finance.ErrInvalidParameter)
}

func TestValidate(t *testing.T) {
	t.Run("unordered periods", func(t *testing.T) {
		records := monthly(4, flat(1), flat(1))
		records[2], records[3] = records[3], records[2]
		_, err := Validate(records)
		assert.ErrorIs(t, err, finance.ErrInvalidParameter)
	})

	t.Run("negative expense", func(t *testing.T) {
		records := monthly(4, flat(1), flat(1))
		records[1].TotalExpense = -5
		_, err := Validate(records)
		assert.ErrorIs(t, err, finance.ErrInvalidParameter)
	})

	t.Run("gap recorded as caveat", func(t *testing.T) {
		records := monthly(4, flat(1), flat(1))
		records[3].Period = records[3].Period.Add(2)
		caveats, err := Validate(records)
		require.NoError(t, err)
		require.Len(t, caveats, 1)
		assert.Equal(t, finance.CaveatHistoryGap, caveats[0].Code)
	})

	t.Run("savings recomputed", func(t *testing.T) {
		records := monthly(3, flat(100), flat(40))
		records[0].Savings = 0
		_, err := Validate(records)
		require.NoError(t, err)
		assert.Equal(t, 60.0, records[0].Savings)
	})
}
