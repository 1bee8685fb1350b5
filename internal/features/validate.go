package features

import (
	"fmt"
	"math"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// Validate checks that records are strictly increasing by period with finite,
// non-negative income and expense. Savings are recomputed from income and
// expense when they disagree. Gaps between periods are allowed and reported
// as caveats; the sequence is then treated positionally.
func Validate(records []finance.MonthlyRecord) (finance.Caveats, error) {
	var caveats finance.Caveats
	for i := range records {
		r := &records[i]
		if i > 0 {
			prev := records[i-1].Period
			if !prev.Before(r.Period) {
				return nil, finance.InvalidParameter("records", r.Period.String(),
					fmt.Sprintf("periods must be strictly increasing (previous %s)", prev))
			}
			if gap := r.Period.Index() - prev.Index(); gap > 1 {
				caveats.Add(finance.CaveatHistoryGap, fmt.Sprintf("%d missing month(s) before %s", gap-1, r.Period))
			}
		}
		for name, v := range map[string]float64{finance.ColumnIncome: r.TotalIncome, finance.ColumnExpense: r.TotalExpense} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, finance.InvalidParameter(name, v, "must be finite at "+r.Period.String())
			}
			if v < 0 {
				return nil, finance.InvalidParameter(name, v, "must be non-negative at "+r.Period.String())
			}
		}
		for cat, v := range r.Categories {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, finance.InvalidParameter("category "+cat, v, "must be finite at "+r.Period.String())
			}
		}
		if want := r.TotalIncome - r.TotalExpense; math.Abs(r.Savings-want) > 1e-6 {
			r.Savings = want
		}
	}
	return caveats, nil
}
