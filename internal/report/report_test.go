package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlemilk/pfinance/analytics/internal/budget"
	"github.com/castlemilk/pfinance/analytics/internal/finance"
	"github.com/castlemilk/pfinance/analytics/internal/forecast"
	"github.com/castlemilk/pfinance/analytics/internal/goals"
	"github.com/castlemilk/pfinance/analytics/internal/health"
	"github.com/castlemilk/pfinance/analytics/internal/predictor"
	"github.com/castlemilk/pfinance/analytics/internal/recommend"
	"github.com/castlemilk/pfinance/analytics/internal/service"
)

func TestMoney(t *testing.T) {
	assert.Equal(t, "1,234.50", money(1234.5))
	assert.Equal(t, "-12.00", money(-12))
	assert.Equal(t, "12.5%", percent(12.5))
}

func TestWriteEvaluation(t *testing.T) {
	evals := []service.ModelEvaluation{
		{
			Kind:     forecast.KindExpense,
			Info:     predictor.Info{ID: "m-1"},
			InSample: predictor.Metrics{N: 20, MAE: 120.5, RMSE: 150, MAPE: 4.2, R2: 0.81},
			CrossValidation: &predictor.CVResult{
				Mean: predictor.Metrics{MAE: 210, R2: 0.55},
			},
			Importance: []predictor.Importance{
				{Feature: "lag_1", Value: 0.4},
				{Feature: "month_sin", Value: 0.2},
			},
		},
		{
			Kind:     forecast.KindSavings,
			InSample: predictor.Metrics{N: 4},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteEvaluation(&buf, evals))
	out := buf.String()

	assert.Contains(t, out, "MODEL")
	assert.Contains(t, out, forecast.KindExpense)
	assert.Contains(t, out, "120.50")
	assert.Contains(t, out, "0.550")
	assert.Contains(t, out, "n/a")
	assert.Contains(t, out, "Top features (expense, model m-1)")
	assert.Contains(t, out, "lag_1")
	assert.NotContains(t, out, "Top features (savings")
}

func TestWriteInsights(t *testing.T) {
	period := finance.Period{Year: 2025, Month: 7}
	in := &service.Insights{
		UserID:       "u1",
		GeneratedAt:  time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
		MonthsOfData: 24,
		Expense: &forecast.ExpenseForecast{
			Forecast: finance.Forecast{
				Period:   period,
				Point:    4210,
				Interval: finance.Interval{Lower: 3900, Upper: 4520, Confidence: 0.95},
			},
			HistoricalAverage: 4000,
			PercentChange:     5.25,
			Trend:             "increasing",
		},
		Categories: &service.CategoryOutlook{
			Forecasts: []forecast.CategoryForecast{
				{Category: "Food", Forecast: finance.Forecast{Point: 820}},
				{Category: "Shopping", Forecast: finance.Forecast{Point: 610}},
			},
			Risks: []forecast.OverspendingRisk{
				{Category: "Shopping", Ratio: 1.45, AtRisk: true},
				{Category: "Food", Ratio: 1.01},
			},
		},
		Health: &health.Result{
			Score: 72,
			Grade: "B",
			Components: []health.Component{
				{Name: "savings_rate", Score: 80, Status: "good"},
			},
			Recommendations: []health.Recommendation{
				{Component: "emergency_fund", Priority: "high", Message: "Build an emergency fund"},
			},
		},
		Budget: &service.BudgetOutlook{
			Plan: &budget.Plan{
				MonthlyIncome: 6000,
				Recommended:   budget.Allocation{Needs: 3000, Wants: 1800, Savings: 1200},
			},
			Categories: &forecast.BudgetRecommendation{
				Reserve: decimal.NewFromInt(480),
				Allocations: []forecast.Allocation{
					{Category: "Food", Share: 0.25, Amount: decimal.NewFromInt(1080)},
				},
			},
		},
		Alerts: []budget.Alert{{Severity: "warning", Message: "Food is at 90% of budget"}},
		Recommendations: &recommend.Recommendations{
			Subscriptions: []recommend.Subscription{
				{Payee: "Netflix", Amount: 15.99, Frequency: "monthly", EstimatedAnnualCost: 191.88},
			},
			TotalPotentialSavings: 250,
		},
		Goals: []goals.GoalPlan{
			{Name: "Holiday", Timeline: &goals.Timeline{MonthsNeeded: 10, MonthlySavings: 500, Feasibility: goals.Feasibility{Rating: "achievable"}}},
		},
		Unavailable: map[string]string{
			service.SectionSavings: "insufficient history",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteInsights(&buf, in))
	out := buf.String()

	for _, want := range []string{
		"Insights for u1 (24 months of data",
		"2025-07: 4,210.00",
		"increasing",
		"x1.45",
		"Score 72 (B)",
		"[high] Build an emergency fund",
		"Monthly income 6,000.00",
		"1,080.00",
		"reserve",
		"[warning] Food is at 90% of budget",
		"Netflix",
		"191.88",
		"Holiday",
		"achievable",
		"savings: insufficient history",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "x1.01")
	assert.NotContains(t, out, "Average monthly savings")
}

func TestWriteInsights_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteInsights(&buf, &service.Insights{UserID: "u2"}))
	assert.Contains(t, buf.String(), "Insights for u2 (0 months of data")
	assert.NotContains(t, buf.String(), "Unavailable")
}
