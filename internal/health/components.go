package health

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// Component names.
const (
	SavingsRate        = "savings_rate"
	ExpenseConsistency = "expense_consistency"
	EmergencyFund      = "emergency_fund"
	DebtToIncome       = "debt_to_income"
	GoalProgress       = "goal_progress"
)

// Weights of each component in the composite score.
var Weights = map[string]float64{
	SavingsRate:        0.30,
	ExpenseConsistency: 0.25,
	EmergencyFund:      0.20,
	DebtToIncome:       0.15,
	GoalProgress:       0.10,
}

// componentOrder fixes the order components are reported in.
var componentOrder = []string{SavingsRate, ExpenseConsistency, EmergencyFund, DebtToIncome, GoalProgress}

// Status labels.
const (
	StatusExcellent          = "excellent"
	StatusGood               = "good"
	StatusFair               = "fair"
	StatusNeedsImprovement   = "needs_improvement"
	StatusCritical           = "critical"
	StatusPoor               = "poor"
	StatusVeryPoor           = "very_poor"
	StatusInsufficientIncome = "insufficient_income"
	StatusInsufficientData   = "insufficient_data"
	StatusNoData             = "no_data"
	StatusNoIncome           = "no_income"
	StatusNoGoals            = "no_goals"
)

// Component is one scored dimension of financial health.
type Component struct {
	Name    string             `json:"name" firestore:"name"`
	Score   float64            `json:"score" firestore:"score"`
	Weight  float64            `json:"weight" firestore:"weight"`
	Status  string             `json:"status" firestore:"status"`
	Details map[string]float64 `json:"details,omitempty" firestore:"details"`
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

func round2(v float64) float64 { return finance.Round2(v) }

// savingsRateScore scores savings as a share of income. Negative savings
// count as zero.
func savingsRateScore(income, expense float64) Component {
	c := Component{Name: SavingsRate, Weight: Weights[SavingsRate]}
	if income <= 0 {
		c.Status = StatusInsufficientIncome
		c.Details = map[string]float64{"savings_rate": 0}
		return c
	}
	savings := math.Max(0, income-expense)
	rate := savings / income * 100

	var score float64
	switch {
	case rate >= 30:
		score = 100
	case rate >= 20:
		score = 70 + (rate-20)*2
	case rate >= 10:
		score = 50 + (rate-10)*2
	case rate >= 5:
		score = 30 + (rate-5)*4
	default:
		score = rate * 6
	}

	switch {
	case rate >= 30:
		c.Status = StatusExcellent
	case rate >= 20:
		c.Status = StatusGood
	case rate >= 10:
		c.Status = StatusFair
	case rate >= 5:
		c.Status = StatusNeedsImprovement
	default:
		c.Status = StatusCritical
	}
	c.Score = round2(clamp(score))
	c.Details = map[string]float64{"savings_rate": round2(rate), "savings": round2(savings)}
	return c
}

// expenseConsistencyScore scores the coefficient of variation of monthly
// expense; steadier spending scores higher.
func expenseConsistencyScore(expenses []float64) Component {
	c := Component{Name: ExpenseConsistency, Weight: Weights[ExpenseConsistency]}
	if len(expenses) < 2 {
		c.Score = 50
		c.Status = StatusInsufficientData
		return c
	}
	mean := stat.Mean(expenses, nil)
	if mean == 0 {
		c.Score = 100
		c.Status = StatusExcellent
		c.Details = map[string]float64{"coefficient_of_variation": 0}
		return c
	}
	std := stat.PopStdDev(expenses, nil)
	cv := std / mean * 100

	var score float64
	switch {
	case cv < 10:
		score = 100 - cv
		c.Status = StatusExcellent
	case cv < 20:
		score = 90 - (cv-10)*2
		c.Status = StatusGood
	case cv < 30:
		score = 70 - (cv-20)*2
		c.Status = StatusFair
	case cv < 50:
		score = 50 - (cv - 30)
		c.Status = StatusPoor
	default:
		score = math.Max(0, 30-(cv-50)*0.5)
		c.Status = StatusVeryPoor
	}
	c.Score = round2(clamp(score))
	c.Details = map[string]float64{
		"coefficient_of_variation": round2(cv),
		"mean_expense":             round2(mean),
		"std_deviation":            round2(std),
	}
	return c
}

// emergencyFundScore scores months of expenses covered by liquid savings
// against a three to six month target.
func emergencyFundScore(fund, monthlyExpense float64) Component {
	c := Component{Name: EmergencyFund, Weight: Weights[EmergencyFund]}
	if monthlyExpense <= 0 {
		c.Status = StatusNoData
		return c
	}
	months := math.Max(0, fund/monthlyExpense)

	var score float64
	switch {
	case months >= 6:
		score = 100
	case months >= 5:
		score = 95 + (months-5)*5
	case months >= 4:
		score = 85 + (months-4)*10
	case months >= 3:
		score = 70 + (months-3)*15
	case months >= 2:
		score = 50 + (months-2)*20
	case months >= 1:
		score = 30 + (months-1)*20
	default:
		score = months * 30
	}

	switch {
	case months >= 6:
		c.Status = StatusExcellent
	case months >= 3:
		c.Status = StatusGood
	case months >= 2:
		c.Status = StatusFair
	case months >= 1:
		c.Status = StatusNeedsImprovement
	default:
		c.Status = StatusCritical
	}
	c.Score = round2(clamp(score))
	c.Details = map[string]float64{
		"months_covered":   round2(months),
		"emergency_fund":   round2(fund),
		"monthly_expenses": round2(monthlyExpense),
		"target_fund":      round2(monthlyExpense * 6),
	}
	return c
}

// debtToIncomeScore scores monthly debt service as a share of income.
func debtToIncomeScore(debt, income float64) Component {
	c := Component{Name: DebtToIncome, Weight: Weights[DebtToIncome]}
	if income <= 0 {
		c.Status = StatusNoIncome
		return c
	}
	ratio := math.Max(0, debt/income*100)

	var score float64
	switch {
	case ratio <= 10:
		score = 100 - ratio
		c.Status = StatusExcellent
	case ratio <= 20:
		score = 90 - (ratio-10)*2
		c.Status = StatusGood
	case ratio <= 35:
		score = 70 - (ratio-20)*1.33
		c.Status = StatusFair
	case ratio <= 50:
		score = 50 - (ratio-35)*1.33
		c.Status = StatusPoor
	default:
		score = math.Max(0, 30-(ratio-50)*0.6)
		c.Status = StatusCritical
	}
	c.Score = round2(clamp(score))
	c.Details = map[string]float64{
		"debt_to_income_ratio": round2(ratio),
		"monthly_debt":         round2(debt),
		"monthly_income":       round2(income),
	}
	return c
}
