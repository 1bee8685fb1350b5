package recommend

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// Opportunity kinds.
const (
	OpportunityHiddenFees   = "hidden_fees"
	OpportunityImpulse      = "impulse_purchases"
	OpportunityWeekend      = "weekend_spending"
	OpportunityInconsistent = "inconsistent_spending"
)

const (
	smallChargeLimit    = 50.0
	minSmallChargeTotal = 200.0
	impulsePerDay       = 3
	weekendSkew         = 1.5
	minVariableCount    = 5
	minVariableTotal    = 1000.0
	variableCVThreshold = 1.0
)

// Opportunity is a concrete place to cut spending.
type Opportunity struct {
	Kind             string  `json:"type"`
	Category         string  `json:"category,omitempty"`
	Message          string  `json:"message"`
	TotalAmount      float64 `json:"total_amount,omitempty"`
	Count            int     `json:"transaction_count,omitempty"`
	Occurrences      int     `json:"occurrences,omitempty"`
	WeekendAverage   float64 `json:"weekend_average,omitempty"`
	WeekdayAverage   float64 `json:"weekday_average,omitempty"`
	CV               float64 `json:"coefficient_of_variation,omitempty"`
	AverageAmount    float64 `json:"average_amount,omitempty"`
	PotentialSavings float64 `json:"potential_savings,omitempty"`
}

type dayCategory struct {
	day      string
	category string
}

// IdentifySavingsOpportunities looks for small-fee leakage, impulse days,
// weekend skew and categories with highly variable purchase sizes.
func (e *Engine) IdentifySavingsOpportunities(txns []finance.Transaction, months int) []Opportunity {
	expenses := e.recentExpenses(txns, e.months(months))
	if len(expenses) == 0 {
		return nil
	}
	var out []Opportunity

	var smallTotal float64
	var smallCount int
	for _, t := range expenses {
		if t.Amount < smallChargeLimit {
			smallTotal += t.Amount
			smallCount++
		}
	}
	if smallTotal > minSmallChargeTotal {
		out = append(out, Opportunity{
			Kind:             OpportunityHiddenFees,
			Category:         "Small Charges",
			Message:          printer.Sprintf("Multiple small charges totalling %.0f. Review for unnecessary fees.", smallTotal),
			TotalAmount:      finance.Round2(smallTotal),
			Count:            smallCount,
			PotentialSavings: finance.Round2(smallTotal * 0.5),
		})
	}

	sameDay := make(map[dayCategory]int)
	for _, t := range expenses {
		sameDay[dayCategory{day: t.Date.Format(time.DateOnly), category: t.Category}]++
	}
	impulseDays := 0
	for _, n := range sameDay {
		if n >= impulsePerDay {
			impulseDays++
		}
	}
	if impulseDays > 0 {
		out = append(out, Opportunity{
			Kind:        OpportunityImpulse,
			Message:     printer.Sprintf("Detected %d days with multiple purchases in the same category. Plan purchases to reduce impulse buying.", impulseDays),
			Occurrences: impulseDays,
		})
	}

	if o, ok := weekendOpportunity(expenses); ok {
		out = append(out, o)
	}

	out = append(out, variableCategories(expenses)...)

	if len(out) > maxOpportunities {
		out = out[:maxOpportunities]
	}
	return out
}

func weekendOpportunity(expenses []finance.Transaction) (Opportunity, bool) {
	var weekendTotal, weekdayTotal float64
	weekendDays := make(map[string]bool)
	weekdayDays := make(map[string]bool)
	for _, t := range expenses {
		day := t.Date.Format(time.DateOnly)
		switch t.Date.Weekday() {
		case time.Saturday, time.Sunday:
			weekendTotal += t.Amount
			weekendDays[day] = true
		default:
			weekdayTotal += t.Amount
			weekdayDays[day] = true
		}
	}
	if len(weekendDays) == 0 || len(weekdayDays) == 0 {
		return Opportunity{}, false
	}
	weekendAvg := weekendTotal / float64(len(weekendDays))
	weekdayAvg := weekdayTotal / float64(len(weekdayDays))
	if weekendAvg <= weekdayAvg*weekendSkew {
		return Opportunity{}, false
	}
	return Opportunity{
		Kind:             OpportunityWeekend,
		Message:          printer.Sprintf("Weekend spending is %.1fx higher than weekdays. Plan weekend activities to reduce costs.", weekendAvg/weekdayAvg),
		WeekendAverage:   finance.Round2(weekendAvg),
		WeekdayAverage:   finance.Round2(weekdayAvg),
		PotentialSavings: finance.Round2((weekendAvg - weekdayAvg) * float64(len(weekendDays)) * 0.5),
	}, true
}

func variableCategories(expenses []finance.Transaction) []Opportunity {
	amounts := make(map[string][]float64)
	for _, t := range expenses {
		amounts[t.Category] = append(amounts[t.Category], t.Amount)
	}
	var out []Opportunity
	for cat, a := range amounts {
		if len(a) < minVariableCount {
			continue
		}
		avg, std := stat.MeanStdDev(a, nil)
		if avg <= 0 {
			continue
		}
		total := avg * float64(len(a))
		cv := std / avg
		if cv <= variableCVThreshold || total <= minVariableTotal {
			continue
		}
		out = append(out, Opportunity{
			Kind:          OpportunityInconsistent,
			Category:      cat,
			Message:       printer.Sprintf("%s spending is highly variable. Set a monthly budget to control costs.", cat),
			TotalAmount:   finance.Round2(total),
			Count:         len(a),
			CV:            finance.Round2(cv * 100),
			AverageAmount: finance.Round2(avg),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalAmount > out[j].TotalAmount })
	return out
}
