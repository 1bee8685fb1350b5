package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

var now = time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)

func testOptimizer() *Optimizer {
	return &Optimizer{AnalysisMonths: 3, Now: func() time.Time { return now }}
}

func txn(daysAgo int, typ finance.TransactionType, category string, amount float64) finance.Transaction {
	return finance.Transaction{
		UserID:   "u1",
		Date:     now.AddDate(0, 0, -daysAgo),
		Type:     typ,
		Category: category,
		Amount:   amount,
	}
}

// history is three months of 6000 income with steady rent and varied wants.
func history() []finance.Transaction {
	var out []finance.Transaction
	for m := 0; m < 3; m++ {
		base := m*30 + 5
		out = append(out,
			txn(base, finance.TransactionIncome, "Salary", 6000),
			txn(base, finance.TransactionExpense, "Rent", 2000),
			txn(base+1, finance.TransactionExpense, "Groceries", 500),
			txn(base+2, finance.TransactionExpense, "Dining Out", 300+float64(m)*400),
			txn(base+3, finance.TransactionExpense, "Entertainment", 200),
			txn(base+4, finance.TransactionSavings, "Savings Transfer", 500),
		)
	}
	return out
}

func TestClassifyCategory(t *testing.T) {
	tests := map[string]Bucket{
		"Rent":               Needs,
		"groceries":          Needs,
		"Car Insurance":      Needs,
		"Dining Out":         Wants,
		"Food Delivery":      Wants,
		"Netflix":            Needs,
		"Savings Transfer":   Savings,
		"Investment Account": Savings,
		"":                   Needs,
	}
	for category, want := range tests {
		assert.Equal(t, want, ClassifyCategory(category), category)
	}
}

func TestAllocate(t *testing.T) {
	t.Run("baseline", func(t *testing.T) {
		a, err := Allocate(5000, nil)
		require.NoError(t, err)
		assert.Equal(t, 2500.0, a.Needs)
		assert.Equal(t, 1500.0, a.Wants)
		assert.Equal(t, 1000.0, a.Savings)
		assert.Equal(t, 20.0, a.SavingsPercent)
	})

	t.Run("goals take from wants first", func(t *testing.T) {
		goals := []finance.Goal{{TargetAmount: 10000, MonthlyContribution: 1500, Status: finance.GoalActive}}
		a, err := Allocate(5000, goals)
		require.NoError(t, err)
		assert.Equal(t, 1500.0, a.Savings)
		assert.Equal(t, 1000.0, a.Wants)
		assert.Equal(t, 2500.0, a.Needs)
		assert.InDelta(t, 5000, a.Total(), 1e-9)
	})

	t.Run("then from needs", func(t *testing.T) {
		goals := []finance.Goal{{TargetAmount: 100000, MonthlyContribution: 5000, Status: finance.GoalActive}}
		a, err := Allocate(5000, goals)
		require.NoError(t, err)
		// Capped at 40% of income; wants floor at 15%.
		assert.Equal(t, 2000.0, a.Savings)
		assert.Equal(t, 750.0, a.Wants)
		assert.Equal(t, 2250.0, a.Needs)
		assert.InDelta(t, 5000, a.Total(), 1e-9)
	})

	t.Run("inactive goals ignored and remaining spread over a year", func(t *testing.T) {
		goals := []finance.Goal{
			{TargetAmount: 24000, CurrentAmount: 0, Status: finance.GoalActive},
			{TargetAmount: 99999, MonthlyContribution: 9999, Status: finance.GoalPaused},
		}
		assert.Equal(t, 2000.0, GoalRequirement(goals, 10000))
	})

	_, err := Allocate(0, nil)
	assert.ErrorIs(t, err, finance.ErrInvalidParameter)
}

func TestAnalyzeSpendingPatterns(t *testing.T) {
	o := testOptimizer()
	txns := append(history(), txn(200, finance.TransactionExpense, "Rent", 9999))
	a := o.AnalyzeSpendingPatterns(txns, 0)

	assert.Equal(t, 3, a.MonthsAnalyzed)
	assert.Equal(t, 18000.0, a.TotalIncome)
	assert.Equal(t, 1500.0, a.TotalSavings)
	assert.Equal(t, 7500.0, a.TotalNeeds)
	assert.Equal(t, 2700.0, a.TotalWants)

	rent, ok := a.Category("Rent")
	require.True(t, ok)
	assert.Equal(t, 6000.0, rent.Total)
	assert.Equal(t, 2000.0, rent.MonthlyAverage)
	assert.Equal(t, 3, rent.TransactionCount)
	assert.Equal(t, "Rent", a.Categories[0].Category)

	dining, _ := a.Category("Dining Out")
	assert.Equal(t, Wants, dining.Bucket)
	assert.Greater(t, dining.Variance, 0.0)
}

func TestGenerateRecommendations(t *testing.T) {
	o := testOptimizer()
	plan, err := o.GenerateRecommendations(history(), nil)
	require.NoError(t, err)

	assert.Equal(t, 6000.0, plan.MonthlyIncome)
	assert.Equal(t, 3000.0, plan.Recommended.Needs)
	assert.Equal(t, 2500.0, plan.Current.Needs)
	assert.Equal(t, 900.0, plan.Current.Wants)
	assert.Equal(t, 2600.0, plan.Current.Savings)
	assert.Equal(t, 500.0, plan.Adjustments.Needs)

	kinds := map[string]string{}
	for _, r := range plan.CategoryRecommendations {
		kinds[r.Category+"/"+r.Kind] = r.Message
	}
	assert.Contains(t, kinds, "Dining Out/"+KindLeakage)
	assert.Contains(t, kinds, "Dining Out/"+KindReduction)
	assert.NotContains(t, kinds, "Rent/"+KindLeakage)

	_, err = o.GenerateRecommendations(nil, nil)
	assert.ErrorIs(t, err, finance.ErrInsufficientHistory)
}

func TestGenerateAlerts(t *testing.T) {
	o := testOptimizer()
	// June has 30 days; on the 10th, 20 remain.
	txns := []finance.Transaction{
		{Date: now.AddDate(0, 0, -5), Type: finance.TransactionExpense, Category: "Dining Out", Amount: 400},
		{Date: now.AddDate(0, 0, -2), Type: finance.TransactionExpense, Category: "Shopping", Amount: 200},
		{Date: now.AddDate(0, 0, -1), Type: finance.TransactionExpense, Category: "Rent", Amount: 2000},
		{Date: now.AddDate(0, -1, 0), Type: finance.TransactionExpense, Category: "Shopping", Amount: 5000},
	}
	alerts := o.GenerateAlerts(txns, map[string]float64{
		"wants":     1500,
		"Rent":      2000,
		"Groceries": 300,
	})

	require.Len(t, alerts, 2)
	assert.Equal(t, "Rent", alerts[0].Category)
	assert.Equal(t, AlertProjected, alerts[0].Kind)
	assert.Equal(t, 20, alerts[0].DaysRemaining)
	assert.Equal(t, 6000.0, alerts[0].ProjectedSpending)
	assert.Equal(t, 4000.0, alerts[0].AmountOver)

	assert.Equal(t, "wants", alerts[1].Category)
	assert.Equal(t, AlertProjected, alerts[1].Kind)
	assert.Equal(t, 1800.0, alerts[1].ProjectedSpending)
	assert.Equal(t, 300.0, alerts[1].AmountOver)
	assert.Contains(t, alerts[1].Message, "20%")

	exceeded := o.GenerateAlerts(txns, map[string]float64{"Rent": 1500})
	require.Len(t, exceeded, 2)
	assert.Equal(t, AlertExceeded, exceeded[1].Kind)
	assert.Equal(t, 500.0, exceeded[1].AmountOver)
}

func TestOptimizeForSavingsRate(t *testing.T) {
	o := testOptimizer()

	met, err := o.OptimizeForSavingsRate(history(), 0.2)
	require.NoError(t, err)
	assert.Equal(t, StatusTargetMet, met.Status)

	res, err := o.OptimizeForSavingsRate(history(), 0.5)
	require.NoError(t, err)
	assert.Equal(t, StatusGap, res.Status)
	assert.InDelta(t, 43.33, res.CurrentSavingsRate, 0.01)
	assert.Equal(t, 400.0, res.MonthlySavingsGap)
	require.Len(t, res.Opportunities, 2)
	assert.Equal(t, "Dining Out", res.Opportunities[0].Category)
	assert.Equal(t, 210.0, res.Opportunities[0].SuggestedReduction)
	assert.Equal(t, "Entertainment", res.Opportunities[1].Category)
	assert.Equal(t, 60.0, res.Opportunities[1].SuggestedReduction)
	assert.Greater(t, res.ProjectedSavingsRate, res.CurrentSavingsRate)

	_, err = o.OptimizeForSavingsRate(history(), 1.5)
	assert.ErrorIs(t, err, finance.ErrInvalidParameter)
}
