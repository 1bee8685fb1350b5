package service

import (
	"context"
	"slices"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
	"github.com/castlemilk/pfinance/analytics/internal/forecast"
	"github.com/castlemilk/pfinance/analytics/internal/predictor"
	"github.com/castlemilk/pfinance/analytics/internal/timeseries"
)

// ForecastExpenses predicts next month's total expense.
func (s *InsightService) ForecastExpenses(ctx context.Context, userID string, confidence float64) (*forecast.ExpenseForecast, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	records, err := s.records(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.forecastExpenses(ctx, userID, records, s.confidence(confidence))
}

func (s *InsightService) forecastExpenses(ctx context.Context, userID string, records []finance.MonthlyRecord, confidence float64) (*forecast.ExpenseForecast, error) {
	if err := finance.ValidateConfidence(confidence); err != nil {
		return nil, err
	}
	live, err := s.forecaster(ctx, userID, forecast.KindExpense, records)
	if err != nil {
		return nil, err
	}
	f := live.(*forecast.ExpenseForecaster)
	m, err := f.Model()
	if err != nil {
		return nil, err
	}
	return cached(s, forecast.KindExpense, m.ID(), func() (*forecast.ExpenseForecast, error) {
		return f.ForecastNextMonth(records, confidence)
	}, records, confidence)
}

// CategoryOutlook is next month's per-category forecast with overspending
// risks.
type CategoryOutlook struct {
	Forecasts []forecast.CategoryForecast `json:"forecasts"`
	Risks     []forecast.OverspendingRisk `json:"overspending_risks"`
	AtRisk    []string                    `json:"at_risk_categories"`
}

// ForecastCategories predicts next month's spend for each of the user's
// categories and flags the ones on course to overspend.
func (s *InsightService) ForecastCategories(ctx context.Context, userID string, confidence float64) (*CategoryOutlook, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	records, err := s.records(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.forecastCategories(ctx, userID, records, s.confidence(confidence))
}

func (s *InsightService) forecastCategories(ctx context.Context, userID string, records []finance.MonthlyRecord, confidence float64) (*CategoryOutlook, error) {
	if err := finance.ValidateConfidence(confidence); err != nil {
		return nil, err
	}
	live, err := s.forecaster(ctx, userID, forecast.KindCategory, records)
	if err != nil {
		return nil, err
	}
	p := live.(*forecast.CategoryPredictor)
	m, err := p.Model()
	if err != nil {
		return nil, err
	}
	threshold := s.opts.OverspendThreshold
	return cached(s, forecast.KindCategory, m.ID(), func() (*CategoryOutlook, error) {
		forecasts, err := p.ForecastCategories(records, confidence)
		if err != nil {
			return nil, err
		}
		risks, err := p.DetectOverspendingRisk(records, threshold)
		if err != nil {
			return nil, err
		}
		out := &CategoryOutlook{Forecasts: forecasts, Risks: risks, AtRisk: []string{}}
		for _, r := range risks {
			if r.AtRisk {
				out.AtRisk = append(out.AtRisk, r.Category)
			}
		}
		return out, nil
	}, records, confidence, threshold)
}

// ForecastSavings projects cumulative savings over periods months
// (forecast.DefaultTrajectoryPeriods when empty).
func (s *InsightService) ForecastSavings(ctx context.Context, userID string, periods []int, confidence float64) (*forecast.Trajectory, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	records, err := s.records(ctx, userID)
	if err != nil {
		return nil, err
	}
	confidence = s.confidence(confidence)
	if err := finance.ValidateConfidence(confidence); err != nil {
		return nil, err
	}
	f, err := s.savingsForecaster(ctx, userID, records)
	if err != nil {
		return nil, err
	}
	m, err := f.Model()
	if err != nil {
		return nil, err
	}
	if len(periods) == 0 {
		periods = slices.Clone(forecast.DefaultTrajectoryPeriods)
	}
	return cached(s, "savings_trajectory", m.ID(), func() (*forecast.Trajectory, error) {
		return f.ForecastTrajectory(records, periods, confidence)
	}, records, periods, confidence)
}

// SavingsHealth classifies the user's savings and attaches the default
// trajectory.
func (s *InsightService) SavingsHealth(ctx context.Context, userID string) (*forecast.HealthAssessment, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	records, err := s.records(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.savingsHealth(ctx, userID, records)
}

func (s *InsightService) savingsHealth(ctx context.Context, userID string, records []finance.MonthlyRecord) (*forecast.HealthAssessment, error) {
	f, err := s.savingsForecaster(ctx, userID, records)
	if err != nil {
		return nil, err
	}
	m, err := f.Model()
	if err != nil {
		return nil, err
	}
	return cached(s, "savings_health", m.ID(), func() (*forecast.HealthAssessment, error) {
		return f.AssessFinancialHealth(records)
	}, records)
}

func (s *InsightService) savingsForecaster(ctx context.Context, userID string, records []finance.MonthlyRecord) (*forecast.SavingsForecaster, error) {
	live, err := s.forecaster(ctx, userID, forecast.KindSavings, records)
	if err != nil {
		return nil, err
	}
	return live.(*forecast.SavingsForecaster), nil
}

// AdvancedForecast forecasts one column of the user's monthly records over
// horizon months with an automatically selected statistical model. column
// defaults to total expense and horizon to the configured default.
func (s *InsightService) AdvancedForecast(ctx context.Context, userID, column string, horizon int, confidence float64) (*timeseries.Result, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if column == "" {
		column = finance.ColumnExpense
	}
	if horizon == 0 {
		horizon = s.opts.Horizon
	}
	confidence = s.confidence(confidence)
	records, err := s.records(ctx, userID)
	if err != nil {
		return nil, err
	}
	return cached(s, "advanced", "v1", func() (*timeseries.Result, error) {
		return timeseries.NewForecaster().ForecastRecords(records, column, horizon, confidence)
	}, records, column, horizon, confidence)
}

// ModelEvaluation is the in-sample fit and forward-chaining validation of
// one live model.
type ModelEvaluation struct {
	Kind            string                 `json:"kind"`
	Info            predictor.Info         `json:"info"`
	InSample        predictor.Metrics      `json:"in_sample"`
	CrossValidation *predictor.CVResult    `json:"cross_validation,omitempty"`
	Importance      []predictor.Importance `json:"feature_importance"`
}

// DefaultCVSplits is the number of forward-chaining folds used by
// EvaluateModels when none is requested.
const DefaultCVSplits = 3

// EvaluateModels scores every forecaster of the user. Cross-validation is
// omitted for a kind whose history is too short to split.
func (s *InsightService) EvaluateModels(ctx context.Context, userID string, nSplits int) ([]ModelEvaluation, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if nSplits <= 0 {
		nSplits = DefaultCVSplits
	}
	records, err := s.records(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []ModelEvaluation
	for _, kind := range []string{forecast.KindExpense, forecast.KindCategory, forecast.KindSavings} {
		f, err := s.forecaster(ctx, userID, kind, records)
		if err != nil {
			return nil, err
		}
		m, err := f.Model()
		if err != nil {
			return nil, err
		}
		metrics, err := f.Evaluate(records)
		if err != nil {
			return nil, err
		}
		ev := ModelEvaluation{
			Kind:       kind,
			Info:       m.Info(),
			InSample:   metrics,
			Importance: m.FeatureImportance(),
		}
		cv, err := f.CrossValidate(ctx, records, nSplits)
		switch {
		case err == nil:
			ev.CrossValidation = cv
		case finance.CodeOf(err) != finance.CodeInsufficientHistory:
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}
