package forecast

import (
	"math"

	"github.com/castlemilk/pfinance/analytics/internal/features"
	"github.com/castlemilk/pfinance/analytics/internal/finance"
	"github.com/castlemilk/pfinance/analytics/internal/predictor"
)

// Trend labels comparing a forecast with the trailing average.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// stableBand is the relative change below which a forecast counts as stable.
const stableBand = 0.05

// ExpenseForecaster predicts next month's total expense.
type ExpenseForecaster struct {
	base
}

var _ predictor.Forecaster = (*ExpenseForecaster)(nil)

// NewExpenseForecaster returns an untrained expense forecaster.
func NewExpenseForecaster(cfg predictor.Config) *ExpenseForecaster {
	spec := features.SingleTarget(finance.ColumnExpense, finance.ColumnIncome, finance.ColumnSavings)
	return &ExpenseForecaster{base: newBase(KindExpense, spec, cfg)}
}

// ExpenseForecast is a next-month expense forecast compared with recent
// history.
type ExpenseForecast struct {
	finance.Forecast
	HistoricalAverage float64 `json:"historical_average"`
	Difference        float64 `json:"difference"`
	PercentChange     float64 `json:"percent_change"`
	Trend             string  `json:"trend"`
}

// ForecastNextMonth predicts total expense for the month after the last
// record.
func (f *ExpenseForecaster) ForecastNextMonth(records []finance.MonthlyRecord, confidence float64) (*ExpenseForecast, error) {
	confidence, err := confidenceOrDefault(confidence)
	if err != nil {
		return nil, err
	}
	t, pred, m, err := f.predictNext(records, confidence)
	if err != nil {
		return nil, err
	}

	out := &ExpenseForecast{Forecast: forecastAt(t, m, pred, 0)}
	avg := trailingMean(finance.Series(records, finance.ColumnExpense), TrailingWindow)
	out.HistoricalAverage = finance.Round2(avg)
	out.Difference = finance.Round2(out.Point - avg)

	caveats := append(finance.Caveats(nil), out.Caveats...)
	if avg == 0 {
		if out.Point != 0 {
			caveats.Add(finance.CaveatZeroBaseline, "trailing expense average is zero; percent change reported as 0")
		}
	} else {
		out.PercentChange = finance.Round2((out.Point - avg) / avg * 100)
	}
	out.Caveats = caveats

	switch {
	case avg != 0 && math.Abs(out.Point-avg)/avg <= stableBand:
		out.Trend = TrendStable
	case out.Point > avg:
		out.Trend = TrendIncreasing
	case out.Point < avg:
		out.Trend = TrendDecreasing
	default:
		out.Trend = TrendStable
	}
	return out, nil
}
