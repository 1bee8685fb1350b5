package forecast

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/castlemilk/pfinance/analytics/internal/features"
	"github.com/castlemilk/pfinance/analytics/internal/finance"
	"github.com/castlemilk/pfinance/analytics/internal/predictor"
)

// DefaultOverspendThreshold flags a category forecast 20% above its average.
const DefaultOverspendThreshold = 1.2

// riskWindow is the trailing window, in months, a category forecast is
// compared against. A year keeps one seasonal cycle in the baseline.
const riskWindow = 12

// Recent months weigh 60% against 40% for the whole history when computing a
// category's share of the budget.
const (
	recentMonths = 3
	recentWeight = 0.6
)

// CategoryPredictor forecasts every category of a fixed vocabulary jointly.
type CategoryPredictor struct {
	base
	categories []string
}

var _ predictor.Forecaster = (*CategoryPredictor)(nil)

// NewCategoryPredictor returns an untrained predictor over categories, or
// finance.DefaultCategories when categories is empty.
func NewCategoryPredictor(cfg predictor.Config, categories []string) (*CategoryPredictor, error) {
	if len(categories) == 0 {
		categories = finance.DefaultCategories
	}
	seen := make(map[string]bool, len(categories))
	for _, c := range categories {
		switch {
		case c == "":
			return nil, finance.InvalidParameter("categories", categories, "empty category name")
		case c == finance.ColumnIncome || c == finance.ColumnExpense || c == finance.ColumnSavings:
			return nil, finance.InvalidParameter("categories", categories, fmt.Sprintf("%q is a reserved column", c))
		case seen[c]:
			return nil, finance.InvalidParameter("categories", categories, fmt.Sprintf("duplicate category %q", c))
		}
		seen[c] = true
	}
	cats := append([]string(nil), categories...)
	spec := features.TargetSpec{
		Targets: cats,
		Drivers: []string{finance.ColumnIncome, finance.ColumnExpense},
	}
	return &CategoryPredictor{base: newBase(KindCategory, spec, cfg), categories: cats}, nil
}

// Categories returns the predicted vocabulary in model order.
func (c *CategoryPredictor) Categories() []string {
	return append([]string(nil), c.categories...)
}

// CategoryForecast is the next-month forecast for one category.
type CategoryForecast struct {
	Category string `json:"category"`
	finance.Forecast
}

// ForecastCategories predicts next month's spend for every category.
func (c *CategoryPredictor) ForecastCategories(records []finance.MonthlyRecord, confidence float64) ([]CategoryForecast, error) {
	confidence, err := confidenceOrDefault(confidence)
	if err != nil {
		return nil, err
	}
	t, pred, m, err := c.predictNext(records, confidence)
	if err != nil {
		return nil, err
	}
	out := make([]CategoryForecast, len(c.categories))
	for k, name := range c.categories {
		out[k] = CategoryForecast{Category: name, Forecast: forecastAt(t, m, pred, k)}
	}
	return out, nil
}

// OverspendingRisk compares a category forecast with its historical average.
type OverspendingRisk struct {
	Category          string  `json:"category"`
	Predicted         float64 `json:"predicted"`
	HistoricalAverage float64 `json:"historical_average"`
	Ratio             float64 `json:"ratio"`
	AtRisk            bool    `json:"at_risk"`
	Excess            float64 `json:"excess_amount"`
}

// DetectOverspendingRisk flags categories whose forecast reaches threshold
// times their trailing twelve-month average. A threshold of 0 uses
// DefaultOverspendThreshold. Results are ordered by ratio, highest first.
func (c *CategoryPredictor) DetectOverspendingRisk(records []finance.MonthlyRecord, threshold float64) ([]OverspendingRisk, error) {
	if threshold == 0 {
		threshold = DefaultOverspendThreshold
	}
	if threshold < 0 || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, finance.InvalidParameter("threshold", threshold, "must be a positive finite multiple")
	}
	forecasts, err := c.ForecastCategories(records, DefaultConfidence)
	if err != nil {
		return nil, err
	}
	out := make([]OverspendingRisk, 0, len(forecasts))
	for _, f := range forecasts {
		avg := trailingMean(finance.Series(records, f.Category), riskWindow)
		ratio, excess := predictor.OverspendingRatio(f.Point, avg, threshold)
		out = append(out, OverspendingRisk{
			Category:          f.Category,
			Predicted:         f.Point,
			HistoricalAverage: finance.Round2(avg),
			Ratio:             ratio,
			AtRisk:            ratio >= threshold,
			Excess:            finance.Round2(excess),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ratio > out[j].Ratio })
	return out, nil
}

// Allocation is one category's share of a budget.
type Allocation struct {
	Category string          `json:"category"`
	Share    float64         `json:"share"`
	Amount   decimal.Decimal `json:"amount"`
}

// BudgetRecommendation splits a budget across categories and holds back a
// reserve.
type BudgetRecommendation struct {
	TotalBudget  decimal.Decimal `json:"total_budget"`
	SafetyMargin float64         `json:"safety_margin"`
	Allocated    decimal.Decimal `json:"allocated"`
	Reserve      decimal.Decimal `json:"reserve"`
	Allocations  []Allocation    `json:"allocations"`
}

// Amount returns the allocation for category, zero when absent.
func (b *BudgetRecommendation) Amount(category string) decimal.Decimal {
	for _, a := range b.Allocations {
		if a.Category == category {
			return a.Amount
		}
	}
	return decimal.Zero
}

// RecommendBudget allocates totalBudget x (1 - safetyMargin) across the
// vocabulary in proportion to each category's historical share, blending the
// last three months with the full history. Amounts are whole cents and always
// sum exactly to the allocated total. No trained model is required.
func (c *CategoryPredictor) RecommendBudget(records []finance.MonthlyRecord, totalBudget, safetyMargin float64) (*BudgetRecommendation, error) {
	if totalBudget < 0 || math.IsNaN(totalBudget) || math.IsInf(totalBudget, 0) {
		return nil, finance.InvalidParameter("total_budget", totalBudget, "must be a non-negative amount")
	}
	if safetyMargin < 0 || safetyMargin >= 1 || math.IsNaN(safetyMargin) {
		return nil, finance.InvalidParameter("safety_margin", safetyMargin, "must be in [0, 1)")
	}
	if len(records) == 0 {
		return nil, finance.InsufficientHistory("budget recommendation", 0, 1)
	}

	total := decimal.NewFromFloat(totalBudget).Round(2)
	allocated := total.Mul(decimal.NewFromFloat(1 - safetyMargin)).Round(2)

	weights := make([]float64, len(c.categories))
	var sum float64
	for k, name := range c.categories {
		s := finance.Series(records, name)
		w := recentWeight*trailingMean(s, recentMonths) + (1-recentWeight)*mean(s)
		if w < 0 || math.IsNaN(w) {
			w = 0
		}
		weights[k] = w
		sum += w
	}
	if sum == 0 {
		for k := range weights {
			weights[k] = 1
		}
		sum = float64(len(weights))
	}

	cents := splitCents(allocated.Shift(2).IntPart(), weights, sum)
	rec := &BudgetRecommendation{
		TotalBudget:  total,
		SafetyMargin: safetyMargin,
		Allocated:    allocated,
		Reserve:      total.Sub(allocated),
	}
	for k, name := range c.categories {
		rec.Allocations = append(rec.Allocations, Allocation{
			Category: name,
			Share:    weights[k] / sum,
			Amount:   decimal.New(cents[k], -2),
		})
	}
	return rec, nil
}

// splitCents divides total across weights by largest remainder.
func splitCents(total int64, weights []float64, sum float64) []int64 {
	out := make([]int64, len(weights))
	rem := make([]float64, len(weights))
	var given int64
	for k, w := range weights {
		exact := float64(total) * w / sum
		out[k] = int64(math.Floor(exact))
		rem[k] = exact - float64(out[k])
		given += out[k]
	}
	order := make([]int, len(weights))
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(i, j int) bool { return rem[order[i]] > rem[order[j]] })
	for i := 0; given < total; i++ {
		out[order[i%len(order)]]++
		given++
	}
	return out
}
