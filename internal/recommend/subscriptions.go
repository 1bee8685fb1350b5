package recommend

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// Frequency is the billing interval of a recurring charge.
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

const (
	minOccurrences = 3
	minConfidence  = 0.5
)

type frequencyPattern struct {
	freq     Frequency
	min, max float64
}

var frequencyPatterns = []frequencyPattern{
	{FrequencyWeekly, 5, 9},
	{FrequencyMonthly, 25, 35},
	{FrequencyQuarterly, 85, 95},
}

// Subscription is a charge repeating at a fixed interval.
type Subscription struct {
	Payee               string    `json:"description"`
	NormalizedName      string    `json:"normalized_name"`
	Category            string    `json:"category"`
	Amount              float64   `json:"amount"`
	Frequency           Frequency `json:"frequency"`
	Occurrences         int       `json:"occurrences"`
	AverageIntervalDays float64   `json:"average_interval_days"`
	EstimatedAnnualCost float64   `json:"estimated_annual_cost"`
	Confidence          float64   `json:"confidence"`
	FirstSeen           time.Time `json:"first_seen"`
	LastSeen            time.Time `json:"last_seen"`
	ExpectedNext        time.Time `json:"expected_next"`
	Message             string    `json:"message"`
	TransactionIDs      []string  `json:"transaction_ids,omitempty"`
}

type subscriptionKey struct {
	payee string
	cents int64
}

// DetectSubscriptions finds expenses charged by the same payee for the same
// amount at least three times, classifying the interval from the modal gap
// between consecutive charges. Results are ordered by annual cost.
func (e *Engine) DetectSubscriptions(txns []finance.Transaction) []Subscription {
	groups := make(map[subscriptionKey][]finance.Transaction)
	for _, t := range txns {
		if !t.IsExpense() {
			continue
		}
		name := normalizeMerchant(payeeOf(t))
		if len(name) < 3 {
			continue
		}
		k := subscriptionKey{payee: name, cents: int64(math.Round(t.Amount * 100))}
		groups[k] = append(groups[k], t)
	}

	var subs []Subscription
	for k, group := range groups {
		if len(group) < minOccurrences {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Date.Before(group[j].Date) })

		var gaps []float64
		for i := 1; i < len(group); i++ {
			days := group[i].Date.Sub(group[i-1].Date).Hours() / 24
			if days > 0 {
				gaps = append(gaps, days)
			}
		}
		if len(gaps) < minOccurrences-1 {
			continue
		}

		freq, matchRatio := detectFrequency(gaps)
		if freq == "" {
			continue
		}
		occurrenceBoost := math.Min(float64(len(group))/5.0, 1.0)
		confidence := matchRatio * (0.5 + 0.5*occurrenceBoost)
		if confidence < minConfidence {
			continue
		}

		avgGap := mean(gaps)
		amount := float64(k.cents) / 100
		last := group[len(group)-1]
		ids := make([]string, 0, len(group))
		for _, t := range group {
			ids = append(ids, t.ID)
		}
		payee := payeeOf(group[0])
		subs = append(subs, Subscription{
			Payee:               truncate(payee, 50),
			NormalizedName:      k.payee,
			Category:            mostCommonCategory(group),
			Amount:              amount,
			Frequency:           freq,
			Occurrences:         len(group),
			AverageIntervalDays: math.Round(avgGap*10) / 10,
			EstimatedAnnualCost: finance.Round2(amount * 365 / avgGap),
			Confidence:          finance.Round2(confidence),
			FirstSeen:           group[0].Date,
			LastSeen:            last.Date,
			ExpectedNext:        nextDate(last.Date, freq),
			Message:             printer.Sprintf("Recurring %s charge: %s - %.0f", freq, truncate(payee, 30), amount),
			TransactionIDs:      ids,
		})
	}

	sort.Slice(subs, func(i, j int) bool {
		if subs[i].EstimatedAnnualCost != subs[j].EstimatedAnnualCost {
			return subs[i].EstimatedAnnualCost > subs[j].EstimatedAnnualCost
		}
		return subs[i].NormalizedName < subs[j].NormalizedName
	})
	if len(subs) > maxSubscriptions {
		subs = subs[:maxSubscriptions]
	}
	return subs
}

func payeeOf(t finance.Transaction) string {
	if strings.TrimSpace(t.Payee) != "" {
		return t.Payee
	}
	return t.Description
}

func normalizeMerchant(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// modalGap returns the most common whole-day gap. When no gap repeats the
// median is used; ties prefer the shorter gap.
func modalGap(gaps []float64) float64 {
	counts := make(map[int]int, len(gaps))
	for _, g := range gaps {
		counts[int(math.Round(g))]++
	}
	best, bestCount := 0, 0
	for d, c := range counts {
		if c > bestCount || (c == bestCount && d < best) {
			best, bestCount = d, c
		}
	}
	if bestCount > 1 {
		return float64(best)
	}
	sorted := append([]float64(nil), gaps...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// detectFrequency classifies gaps by their modal value and returns the share
// of gaps that fall inside the chosen band.
func detectFrequency(gaps []float64) (Frequency, float64) {
	if len(gaps) == 0 {
		return "", 0
	}
	mode := modalGap(gaps)
	for _, p := range frequencyPatterns {
		if mode < p.min || mode > p.max {
			continue
		}
		match := 0
		for _, d := range gaps {
			if d >= p.min && d <= p.max {
				match++
			}
		}
		return p.freq, float64(match) / float64(len(gaps))
	}
	return "", 0
}

func nextDate(last time.Time, freq Frequency) time.Time {
	switch freq {
	case FrequencyWeekly:
		return last.AddDate(0, 0, 7)
	case FrequencyQuarterly:
		return last.AddDate(0, 3, 0)
	default:
		return last.AddDate(0, 1, 0)
	}
}

func mostCommonCategory(txns []finance.Transaction) string {
	counts := make(map[string]int)
	for _, t := range txns {
		counts[t.Category]++
	}
	best, bestCount := "", 0
	for c, n := range counts {
		if n > bestCount || (n == bestCount && c < best) {
			best, bestCount = c, n
		}
	}
	return best
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}
