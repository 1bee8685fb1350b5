package forecast

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/castlemilk/pfinance/analytics/internal/features"
	"github.com/castlemilk/pfinance/analytics/internal/finance"
	"github.com/castlemilk/pfinance/analytics/internal/predictor"
	"github.com/castlemilk/pfinance/analytics/internal/timeseries"
)

// DefaultTrajectoryPeriods are the horizons reported when none are requested.
var DefaultTrajectoryPeriods = []int{3, 6, 12}

// SavingsForecaster predicts monthly savings and compounds them into a
// cumulative trajectory.
type SavingsForecaster struct {
	base
}

var _ predictor.Forecaster = (*SavingsForecaster)(nil)

// NewSavingsForecaster returns an untrained savings forecaster.
func NewSavingsForecaster(cfg predictor.Config) *SavingsForecaster {
	spec := features.SingleTarget(finance.ColumnSavings, finance.ColumnIncome, finance.ColumnExpense)
	return &SavingsForecaster{base: newBase(KindSavings, spec, cfg)}
}

// TrajectoryPoint is the projected cumulative balance after Months months.
type TrajectoryPoint struct {
	Months             int              `json:"months"`
	Period             finance.Period   `json:"period"`
	ProjectedSavings   float64          `json:"projected_savings"`
	GrowthFromCurrent  float64          `json:"growth_from_current"`
	MonthlySavingsRate float64          `json:"monthly_savings_rate"`
	Interval           finance.Interval `json:"interval"`
}

// Trajectory is a cumulative savings projection.
type Trajectory struct {
	CurrentSavings float64                `json:"current_savings"`
	Points         []TrajectoryPoint      `json:"points"`
	Method         finance.ForecastMethod `json:"method"`
	Model          string                 `json:"model"`
	Caveats        []finance.Caveat       `json:"caveats,omitempty"`
}

// At returns the point for months, if requested.
func (t *Trajectory) At(months int) (TrajectoryPoint, bool) {
	for _, p := range t.Points {
		if p.Months == months {
			return p, true
		}
	}
	return TrajectoryPoint{}, false
}

// ForecastTrajectory projects cumulative savings for each horizon in periods
// (DefaultTrajectoryPeriods when empty). Months are forecast one at a time;
// each forecast is appended to the history as a synthetic month whose income
// is the mean of the last three months, and the next month is predicted from
// the extended history. Per-month interval half-widths combine in quadrature.
func (s *SavingsForecaster) ForecastTrajectory(records []finance.MonthlyRecord, periods []int, confidence float64) (*Trajectory, error) {
	confidence, err := confidenceOrDefault(confidence)
	if err != nil {
		return nil, err
	}
	if len(periods) == 0 {
		periods = DefaultTrajectoryPeriods
	}
	for _, p := range periods {
		if err := finance.ValidateHorizon(p); err != nil {
			return nil, err
		}
	}
	m, err := s.Model()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, finance.InsufficientHistory("savings trajectory", 0, features.MinRows)
	}

	history := append([]finance.MonthlyRecord(nil), records...)
	current := 0.0
	for _, r := range history {
		current += r.TotalIncome - r.TotalExpense
	}

	traj := &Trajectory{
		CurrentSavings: finance.Round2(current),
		Method:         finance.MethodEnsemble,
		Model:          m.ID(),
	}
	var caveats finance.Caveats
	wanted := make(map[int]bool, len(periods))
	maxH := 0
	for _, p := range periods {
		wanted[p] = true
		maxH = max(maxH, p)
	}

	cumulative, variance := current, 0.0
	step := make(map[int]TrajectoryPoint, len(periods))
	for h := 1; h <= maxH; h++ {
		t, err := s.builder.Build(history, s.spec)
		if err != nil {
			return nil, fmt.Errorf("trajectory month %d: %w", h, err)
		}
		for _, c := range t.Caveats {
			caveats.Add(c.Code, c.Message)
		}
		preds, err := m.PredictWithInterval([][]float64{t.Latest()}, t.Columns, confidence)
		if err != nil {
			return nil, err
		}
		point := preds[0].Point[0]
		half := (preds[0].Upper[0] - preds[0].Lower[0]) / 2
		cumulative += point
		variance += half * half

		if wanted[h] {
			spread := math.Sqrt(variance)
			step[h] = TrajectoryPoint{
				Months:             h,
				Period:             t.NextPeriod(),
				ProjectedSavings:   finance.Round2(cumulative),
				GrowthFromCurrent:  finance.Round2(cumulative - current),
				MonthlySavingsRate: finance.Round2((cumulative - current) / float64(h)),
				Interval: finance.Interval{
					Lower:      finance.Round2(cumulative - spread),
					Upper:      finance.Round2(cumulative + spread),
					Confidence: confidence,
				},
			}
		}
		history = append(history, syntheticMonth(history, t.NextPeriod(), point))
	}

	for _, p := range periods {
		traj.Points = append(traj.Points, step[p])
	}
	traj.Caveats = caveats
	return traj, nil
}

// syntheticMonth builds the record assumed for a forecast month.
func syntheticMonth(history []finance.MonthlyRecord, period finance.Period, savings float64) finance.MonthlyRecord {
	income := trailingMean(finance.Series(history, finance.ColumnIncome), recentMonths)
	if income < savings {
		income = savings
	}
	expense := income - savings
	if expense < 0 {
		expense = 0
	}
	last := history[len(history)-1]
	return finance.MonthlyRecord{
		UserID:       last.UserID,
		Period:       period,
		TotalIncome:  income,
		TotalExpense: expense,
		Savings:      income - expense,
	}
}

// SavingsMetrics summarises historical savings.
type SavingsMetrics struct {
	Months            int     `json:"months"`
	AvgMonthlySavings float64 `json:"avg_monthly_savings"`
	SavingsRate       float64 `json:"savings_rate"`
	Volatility        float64 `json:"savings_volatility"`
	TotalCumulative   float64 `json:"total_cumulative_savings"`
	MaxMonthlySavings float64 `json:"max_monthly_savings"`
	MinMonthlySavings float64 `json:"min_monthly_savings"`
	MonthsPositive    int     `json:"months_positive_savings"`
	MonthsNegative    int     `json:"months_negative_savings"`
	Trend             float64 `json:"savings_trend"`
}

// CalculateSavingsMetrics summarises the savings column of records. The
// savings rate is average savings over average income, as a percentage.
func CalculateSavingsMetrics(records []finance.MonthlyRecord) (SavingsMetrics, error) {
	if len(records) == 0 {
		return SavingsMetrics{}, finance.InsufficientHistory("savings metrics", 0, 1)
	}
	savings := make([]float64, len(records))
	for i, r := range records {
		savings[i] = r.TotalIncome - r.TotalExpense
	}
	income := finance.Series(records, finance.ColumnIncome)

	m := SavingsMetrics{
		Months:            len(records),
		AvgMonthlySavings: finance.Round2(stat.Mean(savings, nil)),
		MaxMonthlySavings: finance.Round2(slices.Max(savings)),
		MinMonthlySavings: finance.Round2(slices.Min(savings)),
	}
	if avgIncome := stat.Mean(income, nil); avgIncome > 0 {
		m.SavingsRate = finance.Round2(stat.Mean(savings, nil) / avgIncome * 100)
	}
	if len(savings) > 1 {
		m.Volatility = finance.Round2(stat.StdDev(savings, nil))
		slope, _, _ := timeseries.LinearRegression(savings)
		m.Trend = finance.Round2(slope)
	}
	var total float64
	for _, v := range savings {
		total += v
		switch {
		case v > 0:
			m.MonthsPositive++
		case v < 0:
			m.MonthsNegative++
		}
	}
	m.TotalCumulative = finance.Round2(total)
	return m, nil
}

// HealthTier is a coarse savings-health classification.
type HealthTier string

const (
	TierExcellent HealthTier = "Excellent"
	TierGood      HealthTier = "Good"
	TierFair      HealthTier = "Fair"
	TierPoor      HealthTier = "Poor"
)

var tierMessages = map[HealthTier]string{
	TierExcellent: "You are saving a healthy percentage of your income.",
	TierGood:      "Your savings rate is reasonable. Consider increasing it if possible.",
	TierFair:      "Your savings rate is low. Try to reduce expenses or increase income.",
	TierPoor:      "Your savings rate is very low. Urgent attention needed to improve financial health.",
}

// HealthAssessment is the savings-based health classification.
type HealthAssessment struct {
	Tier            HealthTier     `json:"status"`
	Message         string         `json:"message"`
	Volatile        bool           `json:"volatile"`
	Metrics         SavingsMetrics `json:"current_metrics"`
	Trajectory      *Trajectory    `json:"projected_trajectory"`
	Recommendations []string       `json:"recommendations"`
}

// ClassifySavings maps a savings rate to a tier, demoted one step when
// volatility exceeds the magnitude of average savings.
func ClassifySavings(m SavingsMetrics) (HealthTier, bool) {
	var tier HealthTier
	switch {
	case m.SavingsRate >= 20:
		tier = TierExcellent
	case m.SavingsRate >= 10:
		tier = TierGood
	case m.SavingsRate >= 5:
		tier = TierFair
	default:
		tier = TierPoor
	}
	volatile := m.Months > 1 && m.Volatility > math.Abs(m.AvgMonthlySavings)
	if volatile {
		switch tier {
		case TierExcellent:
			tier = TierGood
		case TierGood:
			tier = TierFair
		case TierFair:
			tier = TierPoor
		}
	}
	return tier, volatile
}

// AssessFinancialHealth classifies savings health from records and attaches
// the default trajectory.
func (s *SavingsForecaster) AssessFinancialHealth(records []finance.MonthlyRecord) (*HealthAssessment, error) {
	metrics, err := CalculateSavingsMetrics(records)
	if err != nil {
		return nil, err
	}
	traj, err := s.ForecastTrajectory(records, nil, DefaultConfidence)
	if err != nil {
		return nil, err
	}
	tier, volatile := ClassifySavings(metrics)
	a := &HealthAssessment{
		Tier:            tier,
		Message:         tierMessages[tier],
		Volatile:        volatile,
		Metrics:         metrics,
		Trajectory:      traj,
		Recommendations: []string{},
	}
	if metrics.SavingsRate < 15 {
		a.Recommendations = append(a.Recommendations, "Aim to save at least 15-20% of your income")
	}
	if metrics.Volatility > metrics.AvgMonthlySavings*0.5 {
		a.Recommendations = append(a.Recommendations, "Work on stabilizing your monthly savings")
	}
	if metrics.MonthsNegative > 0 {
		a.Recommendations = append(a.Recommendations, fmt.Sprintf(
			"You had %d month(s) with negative savings. Focus on building an emergency fund.", metrics.MonthsNegative))
	}
	return a, nil
}
