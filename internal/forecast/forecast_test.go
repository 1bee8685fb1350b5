package forecast

import (
	"bytes"
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
	"github.com/castlemilk/pfinance/analytics/internal/predictor"
)

func testConfig() predictor.Config {
	cfg := predictor.DefaultConfig()
	cfg.Estimators = 20
	cfg.MaxDepth = 6
	return cfg
}

var start = finance.Period{Year: 2023, Month: time.January}

// flatHistory is income 5000 and expense 4000 every month.
func flatHistory(n int) []finance.MonthlyRecord {
	out := make([]finance.MonthlyRecord, n)
	for i := range out {
		out[i] = finance.MonthlyRecord{
			Period:       start.Add(i),
			TotalIncome:  5000,
			TotalExpense: 4000,
			Savings:      1000,
			Categories: map[string]float64{
				"Food": 1200, "Transport": 600, "Shopping": 500, "Entertainment": 300,
				"Utilities": 700, "Healthcare": 200, "Education": 100, "Other": 400,
			},
		}
	}
	return out
}

// seasonalHistory varies spend through the year.
func seasonalHistory(n int) []finance.MonthlyRecord {
	out := make([]finance.MonthlyRecord, n)
	for i := range out {
		s := math.Sin(2 * math.Pi * float64(i) / 12)
		cats := map[string]float64{
			"Food":          1000 + 150*s,
			"Transport":     500 + float64(i%3)*40,
			"Shopping":      400 + 200*s,
			"Entertainment": 300,
			"Utilities":     650 - 80*s,
			"Healthcare":    150 + float64(i%4)*25,
			"Education":     100,
			"Other":         250 + float64(i%5)*30,
		}
		var expense float64
		for _, v := range cats {
			expense += v
		}
		out[i] = finance.MonthlyRecord{
			Period:       start.Add(i),
			TotalIncome:  5200 + 20*float64(i),
			TotalExpense: expense,
			Categories:   cats,
		}
	}
	return out
}

func TestExpenseForecaster_FlatHistory(t *testing.T) {
	f := NewExpenseForecaster(testConfig())
	records := flatHistory(12)
	require.NoError(t, f.Train(context.Background(), records))

	fc, err := f.ForecastNextMonth(records, 0)
	require.NoError(t, err)
	assert.InDelta(t, 4000, fc.Point, 1)
	assert.Less(t, fc.Interval.Width(), 50.0)
	assert.Equal(t, 0.95, fc.Interval.Confidence)
	assert.Equal(t, start.Add(12), fc.Period)
	assert.Equal(t, finance.MethodEnsemble, fc.Method)
	assert.Equal(t, TrendStable, fc.Trend)
	assert.InDelta(t, 4000, fc.HistoricalAverage, 1e-9)
}

func TestExpenseForecaster_IntervalContainsPoint(t *testing.T) {
	f := NewExpenseForecaster(testConfig())
	records := seasonalHistory(30)
	require.NoError(t, f.Train(context.Background(), records))

	fc, err := f.ForecastNextMonth(records, 0.8)
	require.NoError(t, err)
	assert.LessOrEqual(t, fc.Interval.Lower, fc.Point)
	assert.LessOrEqual(t, fc.Point, fc.Interval.Upper)
	assert.Contains(t, []string{TrendStable, TrendIncreasing, TrendDecreasing}, fc.Trend)
}

func TestExpenseForecaster_Errors(t *testing.T) {
	f := NewExpenseForecaster(testConfig())
	_, err := f.ForecastNextMonth(flatHistory(12), 0.95)
	assert.ErrorIs(t, err, finance.ErrNotTrained)

	err = f.Train(context.Background(), flatHistory(4))
	assert.ErrorIs(t, err, finance.ErrInsufficientHistory)

	require.NoError(t, f.Train(context.Background(), flatHistory(12)))
	_, err = f.ForecastNextMonth(flatHistory(12), 1.5)
	assert.ErrorIs(t, err, finance.ErrInvalidParameter)
}

func TestExpenseForecaster_SaveLoad(t *testing.T) {
	records := seasonalHistory(24)
	f := NewExpenseForecaster(testConfig())
	require.NoError(t, f.Train(context.Background(), records))
	before, err := f.ForecastNextMonth(records, 0.95)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Save(&buf))

	restored := NewExpenseForecaster(testConfig())
	require.NoError(t, restored.Load(&buf))
	after, err := restored.ForecastNextMonth(records, 0.95)
	require.NoError(t, err)
	assert.Equal(t, before.Forecast, after.Forecast)

	// A savings model cannot be installed into an expense forecaster.
	s := NewSavingsForecaster(testConfig())
	require.NoError(t, s.Train(context.Background(), records))
	buf.Reset()
	require.NoError(t, s.Save(&buf))
	assert.Error(t, restored.Load(&buf))
}

func TestExpenseForecaster_EvaluateAndCrossValidate(t *testing.T) {
	records := seasonalHistory(36)
	f := NewExpenseForecaster(testConfig())
	require.NoError(t, f.Train(context.Background(), records))

	m, err := f.Evaluate(records)
	require.NoError(t, err)
	assert.Equal(t, 33, m.N)
	assert.GreaterOrEqual(t, m.RMSE, m.MAE)

	cv, err := f.CrossValidate(context.Background(), records, 3)
	require.NoError(t, err)
	assert.Len(t, cv.Folds, 3)
}

func TestNewCategoryPredictor_Vocabulary(t *testing.T) {
	p, err := NewCategoryPredictor(testConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, finance.DefaultCategories, p.Categories())

	for name, cats := range map[string][]string{
		"duplicate": {"Food", "Food"},
		"empty":     {"Food", ""},
		"reserved":  {"Food", finance.ColumnIncome},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewCategoryPredictor(testConfig(), cats)
			assert.ErrorIs(t, err, finance.ErrInvalidParameter)
		})
	}
}

func TestCategoryPredictor_ForecastCategories(t *testing.T) {
	p, err := NewCategoryPredictor(testConfig(), nil)
	require.NoError(t, err)
	records := seasonalHistory(24)
	require.NoError(t, p.Train(context.Background(), records))

	fcs, err := p.ForecastCategories(records, 0.95)
	require.NoError(t, err)
	require.Len(t, fcs, len(finance.DefaultCategories))
	for i, fc := range fcs {
		assert.Equal(t, finance.DefaultCategories[i], fc.Category)
		assert.LessOrEqual(t, fc.Interval.Lower, fc.Point)
		assert.LessOrEqual(t, fc.Point, fc.Interval.Upper)
	}
	// Constant categories forecast their constant.
	assert.InDelta(t, 100, fcs[6].Point, 1e-6)
}

func TestCategoryPredictor_DetectOverspendingRisk(t *testing.T) {
	records := flatHistory(24)
	for i := 18; i < 24; i++ {
		records[i].Categories["Food"] = 3000
		records[i].TotalExpense += 1800
	}
	p, err := NewCategoryPredictor(testConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Train(context.Background(), records))

	risks, err := p.DetectOverspendingRisk(records, 0)
	require.NoError(t, err)
	require.Len(t, risks, len(finance.DefaultCategories))

	assert.Equal(t, "Food", risks[0].Category)
	assert.True(t, risks[0].AtRisk)
	assert.Greater(t, risks[0].Excess, 0.0)
	for _, r := range risks[1:] {
		assert.False(t, r.AtRisk, r.Category)
		assert.InDelta(t, 1, r.Ratio, 1e-6)
	}

	_, err = p.DetectOverspendingRisk(records, -1)
	assert.ErrorIs(t, err, finance.ErrInvalidParameter)
}

func TestCategoryPredictor_OverspendingBaselineIsTrailing(t *testing.T) {
	// A year of heavy Food spend followed by a calm year: the stale months
	// must not inflate the baseline.
	records := flatHistory(30)
	for i := 0; i < 18; i++ {
		records[i].Categories["Food"] = 3000
		records[i].TotalExpense += 1800
	}
	p, err := NewCategoryPredictor(testConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Train(context.Background(), records))

	risks, err := p.DetectOverspendingRisk(records, 0)
	require.NoError(t, err)
	var food *OverspendingRisk
	for i := range risks {
		if risks[i].Category == "Food" {
			food = &risks[i]
		}
	}
	require.NotNil(t, food)
	assert.Equal(t, 1200.0, food.HistoricalAverage)
	assert.False(t, food.AtRisk)
}

func TestCategoryPredictor_RecommendBudget(t *testing.T) {
	p, err := NewCategoryPredictor(testConfig(), nil)
	require.NoError(t, err)

	t.Run("allocations sum to budget less margin", func(t *testing.T) {
		rec, err := p.RecommendBudget(seasonalHistory(12), 5000, 0.1)
		require.NoError(t, err)
		sum := decimal.Zero
		for _, a := range rec.Allocations {
			sum = sum.Add(a.Amount)
		}
		assert.True(t, sum.Equal(decimal.NewFromInt(4500)), "sum %s", sum)
		assert.True(t, rec.Allocated.Equal(decimal.NewFromInt(4500)))
		assert.True(t, rec.Reserve.Equal(decimal.NewFromInt(500)))
	})

	t.Run("shares follow history", func(t *testing.T) {
		rec, err := p.RecommendBudget(flatHistory(6), 4000, 0)
		require.NoError(t, err)
		assert.True(t, rec.Amount("Food").Equal(decimal.NewFromInt(1200)))
		assert.True(t, rec.Amount("Education").Equal(decimal.NewFromInt(100)))
		assert.True(t, rec.Amount("Unknown").IsZero())
	})

	t.Run("no spend splits evenly", func(t *testing.T) {
		records := flatHistory(3)
		for i := range records {
			records[i].Categories = nil
		}
		rec, err := p.RecommendBudget(records, 800, 0)
		require.NoError(t, err)
		for _, a := range rec.Allocations {
			assert.True(t, a.Amount.Equal(decimal.NewFromInt(100)))
		}
	})

	t.Run("invalid parameters", func(t *testing.T) {
		_, err := p.RecommendBudget(flatHistory(3), -1, 0.1)
		assert.ErrorIs(t, err, finance.ErrInvalidParameter)
		_, err = p.RecommendBudget(flatHistory(3), 1000, 1)
		assert.ErrorIs(t, err, finance.ErrInvalidParameter)
		_, err = p.RecommendBudget(nil, 1000, 0.1)
		assert.ErrorIs(t, err, finance.ErrInsufficientHistory)
	})
}

func TestSplitCents(t *testing.T) {
	assert.Equal(t, []int64{34, 33, 33}, splitCents(100, []float64{1, 1, 1}, 3))
	assert.Equal(t, []int64{67, 33}, splitCents(100, []float64{2, 1}, 3))
	assert.Equal(t, []int64{0, 0}, splitCents(0, []float64{1, 1}, 2))
}

func TestSavingsForecaster_FlatTrajectory(t *testing.T) {
	s := NewSavingsForecaster(testConfig())
	records := flatHistory(12)
	require.NoError(t, s.Train(context.Background(), records))

	traj, err := s.ForecastTrajectory(records, nil, 0.95)
	require.NoError(t, err)
	assert.Equal(t, 12000.0, traj.CurrentSavings)
	require.Len(t, traj.Points, 3)

	p12, ok := traj.At(12)
	require.True(t, ok)
	assert.InDelta(t, 24000, p12.ProjectedSavings, 1)
	assert.InDelta(t, 12000, p12.GrowthFromCurrent, 1)
	assert.InDelta(t, 1000, p12.MonthlySavingsRate, 0.1)
	assert.Equal(t, start.Add(23), p12.Period)

	p3, _ := traj.At(3)
	assert.InDelta(t, 15000, p3.ProjectedSavings, 1)
}

func TestSavingsForecaster_TrajectoryIntervalsWiden(t *testing.T) {
	s := NewSavingsForecaster(testConfig())
	records := seasonalHistory(24)
	require.NoError(t, s.Train(context.Background(), records))

	traj, err := s.ForecastTrajectory(records, []int{1, 6, 12}, 0.95)
	require.NoError(t, err)
	var prev float64
	for _, p := range traj.Points {
		assert.LessOrEqual(t, p.Interval.Lower, p.ProjectedSavings)
		assert.LessOrEqual(t, p.ProjectedSavings, p.Interval.Upper)
		assert.GreaterOrEqual(t, p.Interval.Width(), prev)
		prev = p.Interval.Width()
	}

	_, err = s.ForecastTrajectory(records, []int{0}, 0.95)
	assert.ErrorIs(t, err, finance.ErrInvalidParameter)
	_, err = s.ForecastTrajectory(records, []int{25}, 0.95)
	assert.ErrorIs(t, err, finance.ErrInvalidParameter)
}

func TestCalculateSavingsMetrics(t *testing.T) {
	records := []finance.MonthlyRecord{
		{Period: start, TotalIncome: 5000, TotalExpense: 4000},
		{Period: start.Add(1), TotalIncome: 5000, TotalExpense: 5500},
		{Period: start.Add(2), TotalIncome: 5000, TotalExpense: 3500},
		{Period: start.Add(3), TotalIncome: 5000, TotalExpense: 3000},
	}
	m, err := CalculateSavingsMetrics(records)
	require.NoError(t, err)
	assert.Equal(t, 4, m.Months)
	assert.Equal(t, 1000.0, m.AvgMonthlySavings)
	assert.Equal(t, 20.0, m.SavingsRate)
	assert.Equal(t, 4000.0, m.TotalCumulative)
	assert.Equal(t, 2000.0, m.MaxMonthlySavings)
	assert.Equal(t, -500.0, m.MinMonthlySavings)
	assert.Equal(t, 3, m.MonthsPositive)
	assert.Equal(t, 1, m.MonthsNegative)
	assert.Greater(t, m.Trend, 0.0)

	_, err = CalculateSavingsMetrics(nil)
	assert.ErrorIs(t, err, finance.ErrInsufficientHistory)
}

func TestClassifySavings(t *testing.T) {
	tests := []struct {
		name     string
		metrics  SavingsMetrics
		want     HealthTier
		volatile bool
	}{
		{"excellent", SavingsMetrics{Months: 6, SavingsRate: 25, AvgMonthlySavings: 1000, Volatility: 100}, TierExcellent, false},
		{"good", SavingsMetrics{Months: 6, SavingsRate: 12, AvgMonthlySavings: 600, Volatility: 100}, TierGood, false},
		{"fair", SavingsMetrics{Months: 6, SavingsRate: 7, AvgMonthlySavings: 300, Volatility: 100}, TierFair, false},
		{"poor", SavingsMetrics{Months: 6, SavingsRate: 2, AvgMonthlySavings: 100, Volatility: 10}, TierPoor, false},
		{"volatile excellent demoted", SavingsMetrics{Months: 6, SavingsRate: 25, AvgMonthlySavings: 1000, Volatility: 1500}, TierGood, true},
		{"volatile poor stays poor", SavingsMetrics{Months: 6, SavingsRate: 2, AvgMonthlySavings: 100, Volatility: 500}, TierPoor, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier, volatile := ClassifySavings(tt.metrics)
			assert.Equal(t, tt.want, tier)
			assert.Equal(t, tt.volatile, volatile)
		})
	}
}

func TestSavingsForecaster_AssessFinancialHealth(t *testing.T) {
	s := NewSavingsForecaster(testConfig())
	records := flatHistory(12)
	require.NoError(t, s.Train(context.Background(), records))

	a, err := s.AssessFinancialHealth(records)
	require.NoError(t, err)
	assert.Equal(t, TierExcellent, a.Tier)
	assert.Equal(t, tierMessages[TierExcellent], a.Message)
	assert.Empty(t, a.Recommendations)
	require.NotNil(t, a.Trajectory)
	assert.Len(t, a.Trajectory.Points, 3)

	records[11].TotalExpense = 6000
	require.NoError(t, s.Train(context.Background(), records))
	a, err = s.AssessFinancialHealth(records)
	require.NoError(t, err)
	assert.Contains(t, a.Recommendations, "You had 1 month(s) with negative savings. Focus on building an emergency fund.")
}

func TestForecastersSatisfyCapabilities(t *testing.T) {
	cat, err := NewCategoryPredictor(testConfig(), nil)
	require.NoError(t, err)
	for _, f := range []predictor.Forecaster{
		NewExpenseForecaster(testConfig()),
		cat,
		NewSavingsForecaster(testConfig()),
	} {
		_, err := f.Predict([][]float64{{1}}, []string{"x"})
		assert.ErrorIs(t, err, finance.ErrNotTrained, f.Kind())
	}
}
