package budget

import (
	"sort"
	"strings"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// Alert kinds.
const (
	AlertProjected = "projected_overspending"
	AlertExceeded  = "exceeded"
)

// Alert flags a budget line that is over, or on pace to go over, its limit.
type Alert struct {
	Kind              string  `json:"type"`
	Category          string  `json:"category"`
	Severity          string  `json:"severity"`
	Message           string  `json:"message"`
	CurrentSpending   float64 `json:"current_spending"`
	ProjectedSpending float64 `json:"projected_spending,omitempty"`
	Budget            float64 `json:"budget"`
	AmountOver        float64 `json:"amount_over"`
	DaysRemaining     int     `json:"days_remaining"`
}

// GenerateAlerts checks month-to-date spending against budget. Keys of budget
// are either bucket names (needs, wants, savings), which match every
// category in that bucket, or category names. Spending is projected to month
// end from the daily run rate so far.
func (o *Optimizer) GenerateAlerts(txns []finance.Transaction, budget map[string]float64) []Alert {
	now := o.now()
	period := finance.PeriodOf(now)
	day := now.Day()
	remaining := period.Days() - day

	spent := make(map[string]float64, len(budget))
	for _, t := range txns {
		if !t.IsExpense() || finance.PeriodOf(t.Date) != period || t.Date.After(now) {
			continue
		}
		bucket := string(ClassifyCategory(t.Category))
		for key := range budget {
			if strings.EqualFold(key, bucket) || key == t.Category {
				spent[key] += t.Amount
			}
		}
	}

	keys := make([]string, 0, len(budget))
	for k := range budget {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	alerts := []Alert{}
	for _, key := range keys {
		limit, current := budget[key], spent[key]
		if current == 0 {
			continue
		}
		projected := current + current/float64(day)*float64(remaining)
		if projected > limit {
			over := projected - limit
			a := Alert{
				Kind:              AlertProjected,
				Category:          key,
				Severity:          "warning",
				CurrentSpending:   finance.Round2(current),
				ProjectedSpending: finance.Round2(projected),
				Budget:            limit,
				AmountOver:        finance.Round2(over),
				DaysRemaining:     remaining,
			}
			if limit > 0 {
				a.Message = printer.Sprintf("At current rate, you'll exceed %s budget by %.0f%% (%.0f).", key, over/limit*100, over)
			} else {
				a.Message = printer.Sprintf("At current rate, you'll spend %.0f on %s with no budget set.", projected, key)
			}
			alerts = append(alerts, a)
		}
		if current > limit {
			alerts = append(alerts, Alert{
				Kind:            AlertExceeded,
				Category:        key,
				Severity:        "alert",
				Message:         printer.Sprintf("You've exceeded your %s budget by %.0f.", key, current-limit),
				CurrentSpending: finance.Round2(current),
				Budget:          limit,
				AmountOver:      finance.Round2(current - limit),
				DaysRemaining:   remaining,
			})
		}
	}
	return alerts
}
