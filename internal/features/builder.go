// Package features turns ordered monthly records into model-ready tables.
//
// Row r of a Table describes the period it predicts. Every feature on that row
// is computed from periods strictly before it, so targets never leak into
// their own features. The final row describes the first unobserved period and
// is what forecasters predict from.
package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// GrowthCap bounds month-over-month and year-over-year growth. A growth ratio
// over a zero prior value is replaced by +/-GrowthCap (0 when both values are
// zero) and a caveat is recorded.
const GrowthCap = 10.0

// MinRows is the smallest table Build will return.
const MinRows = 3

// TargetSpec names the predicted columns and the columns whose history feeds
// the features. Targets are always included among the drivers.
type TargetSpec struct {
	Targets []string
	Drivers []string
}

// SingleTarget builds a spec predicting one column from its own history plus
// the given extra drivers.
func SingleTarget(target string, extra ...string) TargetSpec {
	return TargetSpec{Targets: []string{target}, Drivers: extra}
}

// MultiTarget builds a spec over a fixed ordered set of category columns.
func MultiTarget(categories []string) TargetSpec {
	return TargetSpec{Targets: append([]string(nil), categories...)}
}

func (s TargetSpec) drivers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range append(append([]string(nil), s.Targets...), s.Drivers...) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func (s TargetSpec) validate() error {
	if len(s.Targets) == 0 {
		return finance.InvalidParameter("targets", s.Targets, "at least one target column is required")
	}
	seen := make(map[string]bool)
	for _, t := range s.Targets {
		if t == "" {
			return finance.InvalidParameter("targets", s.Targets, "empty column name")
		}
		if seen[t] {
			return finance.InvalidParameter("targets", s.Targets, fmt.Sprintf("duplicate column %q", t))
		}
		seen[t] = true
	}
	return nil
}

// Builder derives lag, rolling, growth and calendar features.
type Builder struct {
	Lags    []int
	Windows []int
}

// NewBuilder returns a Builder with lags 1-3 and rolling windows 3 and 6.
func NewBuilder() *Builder {
	return &Builder{Lags: []int{1, 2, 3}, Windows: []int{3, 6}}
}

func (b *Builder) maxLag() int {
	m := 1
	for _, l := range b.Lags {
		if l > m {
			m = l
		}
	}
	return m
}

// Columns returns the feature column ordering produced for spec.
func (b *Builder) Columns(spec TargetSpec) []string {
	cols := []string{"month", "quarter", "month_sin", "month_cos"}
	for _, d := range spec.drivers() {
		for _, l := range b.Lags {
			cols = append(cols, fmt.Sprintf("%s_lag_%d", d, l))
		}
		for _, w := range b.Windows {
			cols = append(cols,
				fmt.Sprintf("%s_rolling_mean_%d", d, w),
				fmt.Sprintf("%s_rolling_std_%d", d, w),
				fmt.Sprintf("%s_trend_%d", d, w),
			)
		}
		cols = append(cols, d+"_mom_growth", d+"_yoy_growth")
	}
	return cols
}

// Build produces the feature table for records, which must be ordered by
// period. The table has len(records)-(maxLag-1) rows; the last one is the
// forecast row for the period after the final record.
func (b *Builder) Build(records []finance.MonthlyRecord, spec TargetSpec) (*Table, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	if len(b.Lags) == 0 {
		return nil, finance.InvalidParameter("lags", b.Lags, "at least one lag is required")
	}
	for _, l := range b.Lags {
		if l < 1 {
			return nil, finance.InvalidParameter("lags", b.Lags, "lags must be positive")
		}
	}
	for _, w := range b.Windows {
		if w < 1 {
			return nil, finance.InvalidParameter("windows", b.Windows, "windows must be positive")
		}
	}

	records = append([]finance.MonthlyRecord(nil), records...)
	caveats, err := Validate(records)
	if err != nil {
		return nil, err
	}

	maxLag := b.maxLag()
	rows := len(records) - (maxLag - 1)
	if rows < MinRows {
		return nil, finance.InsufficientHistory("feature build", len(records), MinRows+maxLag-1)
	}

	drivers := spec.drivers()
	series := make(map[string][]float64, len(drivers))
	for _, d := range drivers {
		series[d] = finance.Series(records, d)
	}

	t := &Table{
		Columns: b.Columns(spec),
		Targets: append([]string(nil), spec.Targets...),
		Caveats: caveats,
	}

	// i is the index of the period being described; i == len(records) is the
	// unobserved next period.
	for i := maxLag; i <= len(records); i++ {
		var period finance.Period
		if i < len(records) {
			period = records[i].Period
		} else {
			period = records[len(records)-1].Period.Next()
		}

		row := make([]float64, 0, len(t.Columns))
		angle := 2 * math.Pi * float64(period.Month) / 12
		row = append(row, float64(period.Month), float64(period.Quarter()), math.Sin(angle), math.Cos(angle))

		for _, d := range drivers {
			s := series[d]
			for _, l := range b.Lags {
				row = append(row, s[i-l])
			}
			for _, w := range b.Windows {
				mean, std := rolling(s, i, w)
				row = append(row, mean, std, s[i-1]-mean)
			}
			row = append(row,
				growth(s, i-1, 1, d+"_mom_growth", &t.Caveats),
				growth(s, i-1, 12, d+"_yoy_growth", &t.Caveats),
			)
		}

		t.Periods = append(t.Periods, period)
		t.X = append(t.X, row)
		if i < len(records) {
			y := make([]float64, len(spec.Targets))
			for k, target := range spec.Targets {
				y[k] = series[target][i]
			}
			t.Y = append(t.Y, y)
		}
	}

	return t, nil
}

// rolling returns the mean and sample std of the trailing window of size w
// ending just before index end. Short windows use what is available.
func rolling(s []float64, end, w int) (mean, std float64) {
	start := end - w
	if start < 0 {
		start = 0
	}
	window := s[start:end]
	mean = stat.Mean(window, nil)
	if len(window) > 1 {
		std = stat.StdDev(window, nil)
	}
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}

// growth returns (s[at]-s[at-lag])/s[at-lag], bounded by GrowthCap.
func growth(s []float64, at, lag int, column string, caveats *finance.Caveats) float64 {
	if at-lag < 0 || at < 0 {
		return 0
	}
	prev, cur := s[at-lag], s[at]
	if prev == 0 {
		if cur == 0 {
			return 0
		}
		caveats.Add(finance.CaveatZeroBaseline, fmt.Sprintf("%s has a zero baseline; substituted %+.0f", column, math.Copysign(GrowthCap, cur)))
		return math.Copysign(GrowthCap, cur)
	}
	g := (cur - prev) / math.Abs(prev)
	switch {
	case math.IsNaN(g):
		caveats.Add(finance.CaveatNonFinite, column+" is undefined; substituted 0")
		return 0
	case g > GrowthCap:
		return GrowthCap
	case g < -GrowthCap:
		return -GrowthCap
	}
	return g
}
