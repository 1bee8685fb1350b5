// Package health computes a weighted 0-100 financial health score from
// monthly history, liquid savings, debt service and goals, and keeps an
// append-only history of score snapshots.
package health

import (
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// DefaultWindow is the number of trailing months scored.
const DefaultWindow = 12

// onTrackProgress is the weighted progress above which a goal counts as on
// track.
const onTrackProgress = 25

// Input is everything the scorer looks at.
type Input struct {
	UserID             string
	Records            []finance.MonthlyRecord
	EmergencySavings   float64
	MonthlyDebtPayment float64
	Goals              []finance.Goal
}

// FromTransactions builds an Input by rolling txns up into monthly records.
func FromTransactions(userID string, txns []finance.Transaction, emergencySavings, monthlyDebt float64, goals []finance.Goal) Input {
	return Input{
		UserID:             userID,
		Records:            finance.AggregateMonthly(txns),
		EmergencySavings:   emergencySavings,
		MonthlyDebtPayment: monthlyDebt,
		Goals:              goals,
	}
}

// Recommendation is an action tied to the component that triggered it.
type Recommendation struct {
	Component string `json:"component" firestore:"component"`
	Priority  string `json:"priority" firestore:"priority"`
	Message   string `json:"message" firestore:"message"`
}

// Result is an immutable score snapshot.
type Result struct {
	ID              string           `json:"id" firestore:"id"`
	UserID          string           `json:"user_id" firestore:"userId"`
	Score           int              `json:"score" firestore:"score"`
	Grade           string           `json:"grade" firestore:"grade"`
	Components      []Component      `json:"components" firestore:"components"`
	Recommendations []Recommendation `json:"recommendations" firestore:"recommendations"`
	MonthsScored    int              `json:"months_scored" firestore:"monthsScored"`
	CalculatedAt    time.Time        `json:"calculated_at" firestore:"calculatedAt"`
}

// Component returns the named component.
func (r *Result) Component(name string) (Component, bool) {
	for _, c := range r.Components {
		if c.Name == name {
			return c, true
		}
	}
	return Component{}, false
}

// Scorer computes health scores.
type Scorer struct {
	Window int
	Now    func() time.Time
}

// NewScorer returns a Scorer over DefaultWindow months.
func NewScorer() *Scorer {
	return &Scorer{Window: DefaultWindow, Now: time.Now}
}

// Score computes a snapshot. Identical inputs at the same instant produce
// identical scores, grades and recommendations.
func (s *Scorer) Score(in Input) (*Result, error) {
	if len(in.Records) == 0 {
		return nil, finance.InsufficientHistory("health score", 0, 1)
	}
	if in.EmergencySavings < 0 || math.IsNaN(in.EmergencySavings) {
		return nil, finance.InvalidParameter("emergency_savings", in.EmergencySavings, "must be non-negative")
	}
	if in.MonthlyDebtPayment < 0 || math.IsNaN(in.MonthlyDebtPayment) {
		return nil, finance.InvalidParameter("monthly_debt_payment", in.MonthlyDebtPayment, "must be non-negative")
	}

	records := append([]finance.MonthlyRecord(nil), in.Records...)
	finance.SortRecords(records)
	window := s.Window
	if window <= 0 {
		window = DefaultWindow
	}
	if len(records) > window {
		records = records[len(records)-window:]
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	at := now().UTC()

	income := finance.Series(records, finance.ColumnIncome)
	expense := finance.Series(records, finance.ColumnExpense)
	var totalIncome, totalExpense float64
	for i := range records {
		totalIncome += income[i]
		totalExpense += expense[i]
	}
	n := float64(len(records))

	components := map[string]Component{
		SavingsRate:        savingsRateScore(totalIncome, totalExpense),
		ExpenseConsistency: expenseConsistencyScore(expense),
		EmergencyFund:      emergencyFundScore(in.EmergencySavings, totalExpense/n),
		DebtToIncome:       debtToIncomeScore(in.MonthlyDebtPayment, totalIncome/n),
		GoalProgress:       goalProgressScore(in.Goals, at),
	}

	res := &Result{
		ID:           uuid.New().String(),
		UserID:       in.UserID,
		MonthsScored: len(records),
		CalculatedAt: at,
	}
	var composite float64
	for _, name := range componentOrder {
		c := components[name]
		composite += c.Score * c.Weight
		res.Components = append(res.Components, c)
	}
	res.Score = int(math.Round(clamp(composite)))
	res.Grade = Grade(res.Score)
	res.Recommendations = recommendations(components)
	return res, nil
}

// Grade maps a composite score to a letter.
func Grade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 75:
		return "B"
	case score >= 60:
		return "C"
	case score >= 40:
		return "D"
	default:
		return "F"
	}
}

// goalProgressScore blends average weighted progress (60%) with the share of
// goals on track (40%). A goal with start and target dates is measured
// against the fraction of its timeline already elapsed; undated goals use
// plain progress towards the target.
func goalProgressScore(goals []finance.Goal, now time.Time) Component {
	c := Component{Name: GoalProgress, Weight: Weights[GoalProgress], Score: 50}
	var active []finance.Goal
	for _, g := range goals {
		if g.IsActive() {
			active = append(active, g)
		}
	}
	if len(active) == 0 {
		c.Status = StatusNoGoals
		return c
	}

	var total float64
	onTrack := 0
	for _, g := range active {
		p := weightedProgress(g, now)
		total += p
		if p > onTrackProgress {
			onTrack++
		}
	}
	avg := total / float64(len(active))
	ratio := float64(onTrack) / float64(len(active))
	c.Score = round2(clamp(avg*0.6 + ratio*100*0.4))

	switch {
	case avg >= 75:
		c.Status = StatusExcellent
	case avg >= 50:
		c.Status = StatusGood
	case avg >= 25:
		c.Status = StatusFair
	default:
		c.Status = StatusNeedsImprovement
	}
	c.Details = map[string]float64{
		"active_goals":     float64(len(active)),
		"goals_on_track":   float64(onTrack),
		"average_progress": round2(avg),
	}
	return c
}

// weightedProgress returns progress as a percentage of what should have been
// saved by now, capped at 100.
func weightedProgress(g finance.Goal, now time.Time) float64 {
	progress := g.Progress()
	if g.StartDate.IsZero() || g.TargetDate.IsZero() || !g.TargetDate.After(g.StartDate) {
		return clamp(progress)
	}
	elapsed := now.Sub(g.StartDate).Seconds() / g.TargetDate.Sub(g.StartDate).Seconds()
	if elapsed <= 0 {
		// Not started yet: anything saved is ahead of schedule.
		if progress > 0 {
			return 100
		}
		return 0
	}
	if elapsed > 1 {
		elapsed = 1
	}
	return clamp(progress / elapsed)
}

var printer = message.NewPrinter(language.English)

func recommendations(c map[string]Component) []Recommendation {
	out := []Recommendation{}
	switch c[SavingsRate].Status {
	case StatusNeedsImprovement, StatusCritical:
		out = append(out, Recommendation{
			Component: SavingsRate,
			Priority:  "high",
			Message:   printer.Sprintf("Your savings rate is %.1f%%. Try to save at least 20%% of your income.", c[SavingsRate].Details["savings_rate"]),
		})
	}
	switch c[ExpenseConsistency].Status {
	case StatusPoor, StatusVeryPoor:
		out = append(out, Recommendation{
			Component: ExpenseConsistency,
			Priority:  "medium",
			Message:   "Your spending varies significantly month-to-month. Create a budget to stabilize expenses.",
		})
	}
	switch e := c[EmergencyFund]; e.Status {
	case StatusNeedsImprovement, StatusCritical:
		more := math.Max(0, 6-e.Details["months_covered"])
		out = append(out, Recommendation{
			Component: EmergencyFund,
			Priority:  "high",
			Message:   printer.Sprintf("Build your emergency fund to cover %.1f more months of expenses (target: %.0f).", more, e.Details["target_fund"]),
		})
	}
	switch d := c[DebtToIncome]; d.Status {
	case StatusPoor, StatusCritical:
		out = append(out, Recommendation{
			Component: DebtToIncome,
			Priority:  "high",
			Message:   printer.Sprintf("Your debt-to-income ratio is %.1f%%. Consider debt reduction strategies.", d.Details["debt_to_income_ratio"]),
		})
	}
	if c[GoalProgress].Status == StatusNeedsImprovement {
		out = append(out, Recommendation{
			Component: GoalProgress,
			Priority:  "medium",
			Message:   "Review your financial goals and increase contributions to stay on track.",
		})
	}
	return out
}
