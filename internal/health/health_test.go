package health

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

var fixedNow = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

func testScorer() *Scorer {
	return &Scorer{Window: DefaultWindow, Now: func() time.Time { return fixedNow }}
}

func months(n int, income, expense float64) []finance.MonthlyRecord {
	start := finance.Period{Year: 2024, Month: time.January}
	out := make([]finance.MonthlyRecord, n)
	for i := range out {
		out[i] = finance.MonthlyRecord{Period: start.Add(i), TotalIncome: income, TotalExpense: expense}
	}
	return out
}

func TestSavingsRateScore(t *testing.T) {
	tests := []struct {
		income, expense float64
		score           float64
		status          string
	}{
		{1000, 600, 100, StatusExcellent},
		{1000, 750, 80, StatusGood},
		{1000, 850, 60, StatusFair},
		{1000, 920, 42, StatusNeedsImprovement},
		{1000, 980, 12, StatusCritical},
		{1000, 1500, 0, StatusCritical},
		{0, 100, 0, StatusInsufficientIncome},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v/%v", tt.income, tt.expense), func(t *testing.T) {
			c := savingsRateScore(tt.income, tt.expense)
			assert.InDelta(t, tt.score, c.Score, 1e-9)
			assert.Equal(t, tt.status, c.Status)
		})
	}
}

func TestExpenseConsistencyScore(t *testing.T) {
	c := expenseConsistencyScore([]float64{1000, 1000, 1000})
	assert.Equal(t, 100.0, c.Score)
	assert.Equal(t, StatusExcellent, c.Status)

	// Population std of {500, 1500} is 500, cv 50%.
	c = expenseConsistencyScore([]float64{500, 1500})
	assert.InDelta(t, 30, c.Score, 1e-9)
	assert.Equal(t, StatusVeryPoor, c.Status)

	c = expenseConsistencyScore([]float64{1000})
	assert.Equal(t, 50.0, c.Score)
	assert.Equal(t, StatusInsufficientData, c.Status)
}

func TestEmergencyFundScore(t *testing.T) {
	tests := []struct {
		fund   float64
		score  float64
		status string
	}{
		{0, 0, StatusCritical},
		{1000, 30, StatusNeedsImprovement},
		{2000, 50, StatusFair},
		{3000, 70, StatusGood},
		{4500, 90, StatusGood},
		{6000, 100, StatusExcellent},
		{60000, 100, StatusExcellent},
	}
	for _, tt := range tests {
		c := emergencyFundScore(tt.fund, 1000)
		assert.InDelta(t, tt.score, c.Score, 1e-9, "fund %v", tt.fund)
		assert.Equal(t, tt.status, c.Status, "fund %v", tt.fund)
	}
	assert.Equal(t, StatusNoData, emergencyFundScore(1000, 0).Status)
}

func TestDebtToIncomeScore(t *testing.T) {
	assert.InDelta(t, 100, debtToIncomeScore(0, 5000).Score, 1e-9)
	assert.InDelta(t, 90, debtToIncomeScore(500, 5000).Score, 1e-9)
	assert.InDelta(t, 70, debtToIncomeScore(1000, 5000).Score, 1e-9)
	assert.Equal(t, StatusPoor, debtToIncomeScore(2000, 5000).Status)
	assert.Equal(t, StatusCritical, debtToIncomeScore(3000, 5000).Status)
	assert.Equal(t, 0.0, debtToIncomeScore(100, 0).Score)
}

func TestGoalProgressScore(t *testing.T) {
	t.Run("no goals", func(t *testing.T) {
		c := goalProgressScore(nil, fixedNow)
		assert.Equal(t, 50.0, c.Score)
		assert.Equal(t, StatusNoGoals, c.Status)
	})
	t.Run("undated goals use plain progress", func(t *testing.T) {
		goals := []finance.Goal{
			{TargetAmount: 1000, CurrentAmount: 500, Status: finance.GoalActive},
			{TargetAmount: 1000, CurrentAmount: 100, Status: finance.GoalActive},
			{TargetAmount: 1000, CurrentAmount: 1000, Status: finance.GoalCompleted},
		}
		c := goalProgressScore(goals, fixedNow)
		// avg 30, one of two on track: 30*0.6 + 50*0.4.
		assert.InDelta(t, 38, c.Score, 1e-9)
		assert.Equal(t, StatusFair, c.Status)
	})
	t.Run("dated goals are weighted by elapsed time", func(t *testing.T) {
		g := finance.Goal{
			TargetAmount:  1200,
			CurrentAmount: 300,
			StartDate:     fixedNow.AddDate(0, -3, 0),
			TargetDate:    fixedNow.AddDate(0, 9, 0),
			Status:        finance.GoalActive,
		}
		c := goalProgressScore([]finance.Goal{g}, fixedNow)
		// 25% saved with roughly 25% of the timeline elapsed is on schedule.
		assert.Greater(t, c.Score, 95.0)
		assert.Equal(t, StatusExcellent, c.Status)
	})
}

func TestScore_Composite(t *testing.T) {
	s := testScorer()
	res, err := s.Score(Input{
		UserID:             "u1",
		Records:            months(12, 5000, 3000),
		EmergencySavings:   18000,
		MonthlyDebtPayment: 0,
	})
	require.NoError(t, err)
	// All components 100 except goals at 50: 90 + 5.
	assert.Equal(t, 95, res.Score)
	assert.Equal(t, "A", res.Grade)
	assert.Len(t, res.Components, 5)
	assert.Empty(t, res.Recommendations)
	assert.Equal(t, fixedNow, res.CalculatedAt)
	assert.NotEmpty(t, res.ID)

	var weights float64
	for _, c := range res.Components {
		weights += c.Weight
	}
	assert.InDelta(t, 1, weights, 1e-12)
}

func TestScore_Recommendations(t *testing.T) {
	s := testScorer()
	records := months(6, 5000, 1500)
	for i := 1; i < len(records); i += 2 {
		records[i].TotalExpense = 8000
	}
	res, err := s.Score(Input{
		UserID:             "u1",
		Records:            records,
		EmergencySavings:   500,
		MonthlyDebtPayment: 3000,
		Goals:              []finance.Goal{{TargetAmount: 10000, CurrentAmount: 100, Status: finance.GoalActive}},
	})
	require.NoError(t, err)

	var triggered []string
	for _, r := range res.Recommendations {
		triggered = append(triggered, r.Component)
	}
	assert.Equal(t, []string{SavingsRate, ExpenseConsistency, EmergencyFund, DebtToIncome, GoalProgress}, triggered)
	assert.Contains(t, res.Recommendations[3].Message, "Consider debt reduction strategies")
}

func TestScore_Deterministic(t *testing.T) {
	s := testScorer()
	in := Input{UserID: "u1", Records: months(8, 4000, 3500), EmergencySavings: 7000, MonthlyDebtPayment: 600}
	a, err := s.Score(in)
	require.NoError(t, err)
	b, err := s.Score(in)
	require.NoError(t, err)
	a.ID, b.ID = "", ""
	assert.Equal(t, a, b)
}

func TestScore_MonotoneInSavingsRate(t *testing.T) {
	s := testScorer()
	prev := -1
	for expense := 5000.0; expense > 0; expense -= 100 {
		res, err := s.Score(Input{UserID: "u1", Records: months(6, 5000, expense), EmergencySavings: 10000})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Score, prev, "expense %v", expense)
		prev = res.Score
	}
}

func TestScore_Errors(t *testing.T) {
	s := testScorer()
	_, err := s.Score(Input{})
	assert.ErrorIs(t, err, finance.ErrInsufficientHistory)
	_, err = s.Score(Input{Records: months(3, 1, 1), EmergencySavings: -1})
	assert.ErrorIs(t, err, finance.ErrInvalidParameter)
}

func TestGrade(t *testing.T) {
	for score, want := range map[int]string{100: "A", 90: "A", 89: "B", 75: "B", 74: "C", 60: "C", 59: "D", 40: "D", 39: "F", 0: "F"} {
		assert.Equal(t, want, Grade(score), "score %d", score)
	}
}

func TestHistory(t *testing.T) {
	h := NewHistory()
	s := testScorer()
	first, err := s.Score(Input{UserID: "u1", Records: months(6, 5000, 4500)})
	require.NoError(t, err)
	require.NoError(t, h.Append(*first))

	s.Now = func() time.Time { return fixedNow.Add(time.Hour) }
	second, err := s.Score(Input{UserID: "u1", Records: months(6, 5000, 3000), EmergencySavings: 20000})
	require.NoError(t, err)
	require.NoError(t, h.Append(*second))

	assert.Len(t, h.List("u1", 0), 2)
	assert.Len(t, h.List("u1", 1), 1)
	assert.Empty(t, h.List("other", 0))

	latest, ok := h.Latest("u1")
	require.True(t, ok)
	assert.Equal(t, second.ID, latest.ID)

	delta, ok := h.Trend("u1")
	require.True(t, ok)
	assert.Equal(t, second.Score-first.Score, delta)
	assert.Positive(t, delta)

	// Snapshots are immutable once recorded.
	latest.Components[0].Score = -1
	again, _ := h.Latest("u1")
	assert.NotEqual(t, -1.0, again.Components[0].Score)

	assert.ErrorIs(t, h.Append(*first), finance.ErrInvalidParameter, "out of order")
	assert.ErrorIs(t, h.Append(*second), finance.ErrInvalidParameter, "duplicate")
	assert.ErrorIs(t, h.Append(Result{}), finance.ErrInvalidParameter)
}

func TestFromTransactions(t *testing.T) {
	var txns []finance.Transaction
	for m := time.January; m <= time.March; m++ {
		txns = append(txns,
			finance.Transaction{UserID: "u1", Date: time.Date(2024, m, 1, 0, 0, 0, 0, time.UTC), Type: finance.TransactionIncome, Amount: 5000},
			finance.Transaction{UserID: "u1", Date: time.Date(2024, m, 9, 0, 0, 0, 0, time.UTC), Type: finance.TransactionExpense, Category: "Food", Amount: 3000},
		)
	}
	in := FromTransactions("u1", txns, 9000, 0, nil)
	require.Len(t, in.Records, 3)
	assert.Equal(t, 2000.0, in.Records[0].Savings)

	fromRecords, err := testScorer().Score(Input{UserID: "u1", Records: months(3, 5000, 3000), EmergencySavings: 9000})
	require.NoError(t, err)
	fromTxns, err := testScorer().Score(in)
	require.NoError(t, err)
	assert.Equal(t, fromRecords.Score, fromTxns.Score)
	assert.Equal(t, fromRecords.Components, fromTxns.Components)
}
