// Package recommend mines raw transactions for spending habits, recurring
// charges, savings opportunities and behaviour nudges. Nothing here depends
// on a trained model.
package recommend

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// DefaultAnalysisMonths is the history window used for habits and
// opportunities.
const DefaultAnalysisMonths = 3

// Result caps.
const (
	maxHabits        = 10
	maxSubscriptions = 15
	maxOpportunities = 10
	maxNudges        = 10
)

var printer = message.NewPrinter(language.English)

// Engine produces recommendations from transactions.
type Engine struct {
	AnalysisMonths int
	Now            func() time.Time
}

// NewEngine returns an Engine over DefaultAnalysisMonths.
func NewEngine() *Engine {
	return &Engine{AnalysisMonths: DefaultAnalysisMonths, Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) months(months int) int {
	if months > 0 {
		return months
	}
	if e.AnalysisMonths > 0 {
		return e.AnalysisMonths
	}
	return DefaultAnalysisMonths
}

// expensesSince returns expense transactions dated on or after cutoff.
func expensesSince(txns []finance.Transaction, cutoff time.Time) []finance.Transaction {
	var out []finance.Transaction
	for _, t := range txns {
		if t.IsExpense() && !t.Date.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

func (e *Engine) recentExpenses(txns []finance.Transaction, months int) []finance.Transaction {
	return expensesSince(txns, e.now().AddDate(0, 0, -30*months))
}

// Recommendations bundles every recommendation kind.
type Recommendations struct {
	Habits                []Habit        `json:"habits"`
	Subscriptions         []Subscription `json:"subscriptions"`
	Opportunities         []Opportunity  `json:"opportunities"`
	Nudges                []Nudge        `json:"nudges"`
	TotalPotentialSavings float64        `json:"total_potential_savings"`
	GeneratedAt           time.Time      `json:"generated_at"`
}

// GetAllRecommendations runs every detector. months <= 0 uses the engine's
// analysis window.
func (e *Engine) GetAllRecommendations(txns []finance.Transaction, goals []finance.Goal, months int) *Recommendations {
	out := &Recommendations{
		Habits:        e.AnalyzeSpendingHabits(txns, months),
		Subscriptions: e.DetectSubscriptions(txns),
		Opportunities: e.IdentifySavingsOpportunities(txns, months),
		Nudges:        e.GenerateBehaviorNudges(txns, goals),
		GeneratedAt:   e.now(),
	}
	var total float64
	for _, h := range out.Habits {
		total += h.PotentialSavings
	}
	for _, o := range out.Opportunities {
		total += o.PotentialSavings
	}
	out.TotalPotentialSavings = finance.Round2(total)
	return out
}
