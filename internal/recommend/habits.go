package recommend

import (
	"regexp"
	"sort"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// Habit kinds.
const (
	HabitHighFrequency = "high_frequency"
	HabitFoodDelivery  = "food_delivery"
	HabitEntertainment = "entertainment"
)

var (
	foodPattern          = regexp.MustCompile(`(?i)food|delivery|restaurant|dining`)
	entertainmentPattern = regexp.MustCompile(`(?i)entertainment|movie|game|streaming`)
)

const (
	minWeeklyFrequency    = 2.0
	minHabitTotal         = 100.0
	minFoodOrders         = 5
	foodSavingsShare      = 0.6
	minEntertainmentTotal = 500.0
)

// Habit is a repeated spending pattern.
type Habit struct {
	Kind             string  `json:"type"`
	Category         string  `json:"category"`
	AmountBucket     string  `json:"amount_bucket,omitempty"`
	Message          string  `json:"message"`
	FrequencyPerWeek float64 `json:"frequency_per_week,omitempty"`
	TotalAmount      float64 `json:"total_amount"`
	AverageAmount    float64 `json:"average_transaction,omitempty"`
	AverageMonthly   float64 `json:"average_monthly,omitempty"`
	Count            int     `json:"transaction_count,omitempty"`
	PotentialSavings float64 `json:"potential_savings,omitempty"`
}

// AmountBucket names the size class of a single purchase.
func AmountBucket(amount float64) string {
	switch {
	case amount < 20:
		return "small"
	case amount < 100:
		return "medium"
	default:
		return "large"
	}
}

type habitKey struct {
	category string
	bucket   string
}

// AnalyzeSpendingHabits groups recent expenses by category and purchase size
// and reports groups bought at least twice a week, followed by the named
// food-delivery and entertainment patterns.
func (e *Engine) AnalyzeSpendingHabits(txns []finance.Transaction, months int) []Habit {
	months = e.months(months)
	expenses := e.recentExpenses(txns, months)
	if len(expenses) == 0 {
		return nil
	}

	groups := make(map[habitKey][]finance.Transaction)
	for _, t := range expenses {
		k := habitKey{category: t.Category, bucket: AmountBucket(t.Amount)}
		groups[k] = append(groups[k], t)
	}

	var habits []Habit
	for k, group := range groups {
		first, last := group[0].Date, group[0].Date
		var total float64
		for _, t := range group {
			total += t.Amount
			if t.Date.Before(first) {
				first = t.Date
			}
			if t.Date.After(last) {
				last = t.Date
			}
		}
		days := last.Sub(first).Hours()/24 + 1
		weeks := days / 7
		if weeks < 1 {
			weeks = 1
		}
		perWeek := float64(len(group)) / weeks
		if perWeek < minWeeklyFrequency || total <= minHabitTotal {
			continue
		}
		habits = append(habits, Habit{
			Kind:             HabitHighFrequency,
			Category:         k.category,
			AmountBucket:     k.bucket,
			Message:          printer.Sprintf("You make %s %s purchases %.1f times per week, totalling %.0f over %d months.", k.bucket, k.category, perWeek, total, months),
			FrequencyPerWeek: finance.Round2(perWeek),
			TotalAmount:      finance.Round2(total),
			AverageAmount:    finance.Round2(total / float64(len(group))),
			Count:            len(group),
		})
	}
	sort.Slice(habits, func(i, j int) bool {
		if habits[i].TotalAmount != habits[j].TotalAmount {
			return habits[i].TotalAmount > habits[j].TotalAmount
		}
		if habits[i].Category != habits[j].Category {
			return habits[i].Category < habits[j].Category
		}
		return habits[i].AmountBucket < habits[j].AmountBucket
	})

	var foodCount int
	var foodTotal, entertainmentTotal float64
	for _, t := range expenses {
		if foodPattern.MatchString(t.Category) {
			foodCount++
			foodTotal += t.Amount
		}
		if entertainmentPattern.MatchString(t.Category) {
			entertainmentTotal += t.Amount
		}
	}
	if foodCount > minFoodOrders {
		perWeek := float64(foodCount) / float64(months*4)
		habits = append(habits, Habit{
			Kind:             HabitFoodDelivery,
			Category:         "Food Delivery",
			Message:          printer.Sprintf("You order food %.1f times per week, costing %.0f over %d months. Cooking at home could save 50-70%%.", perWeek, foodTotal, months),
			FrequencyPerWeek: finance.Round2(perWeek),
			TotalAmount:      finance.Round2(foodTotal),
			Count:            foodCount,
			PotentialSavings: finance.Round2(foodTotal * foodSavingsShare),
		})
	}
	if entertainmentTotal > minEntertainmentTotal {
		habits = append(habits, Habit{
			Kind:           HabitEntertainment,
			Category:       "Entertainment",
			Message:        printer.Sprintf("Entertainment spending: %.0f over %d months.", entertainmentTotal, months),
			TotalAmount:    finance.Round2(entertainmentTotal),
			AverageMonthly: finance.Round2(entertainmentTotal / float64(months)),
		})
	}

	if len(habits) > maxHabits {
		habits = habits[:maxHabits]
	}
	return habits
}
