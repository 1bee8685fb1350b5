// Package timeseries forecasts a single monthly series, picking the model
// family from the length of the available history: additive Holt-Winters for
// a year or more, a grid-searched ARIMA for six to eleven months, and a linear
// trend whenever either of those cannot be fitted.
package timeseries

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// History thresholds for model selection.
const (
	MinTrendHistory    = 6
	MinSeasonalHistory = 12
)

// fit is the common output of every model family.
type fit struct {
	method      finance.ForecastMethod
	label       string
	points      []float64
	stdErr      []float64
	residualStd float64
	params      map[string]float64
	caveats     finance.Caveats
}

type fitFunc func(y []float64, horizon int) (*fit, error)

// Result is the outcome of an automatic forecast.
type Result struct {
	Method        finance.ForecastMethod `json:"method"`
	Model         string                 `json:"model"`
	Forecasts     []finance.Forecast     `json:"forecasts"`
	MonthsOfData  int                    `json:"months_of_data"`
	ResidualStd   float64                `json:"residual_std"`
	LastValue     float64                `json:"last_value"`
	Average       float64                `json:"average"`
	Params        map[string]float64     `json:"params,omitempty"`
	Caveats       []finance.Caveat       `json:"caveats,omitempty"`
	FallbackCause string                 `json:"fallback_cause,omitempty"`
}

// Forecaster selects and fits a model for one monthly series.
type Forecaster struct {
	seasonal fitFunc
	trend    fitFunc
	linear   fitFunc
}

// NewForecaster returns a Forecaster with the standard model families.
func NewForecaster() *Forecaster {
	return &Forecaster{
		seasonal: fitHoltWinters,
		trend:    fitARIMA,
		linear:   fitLinear,
	}
}

// SelectMethod returns the model family that history of length n calls for.
func SelectMethod(n int) (finance.ForecastMethod, error) {
	switch {
	case n < MinTrendHistory:
		return "", finance.InsufficientHistory("time-series forecast", n, MinTrendHistory)
	case n < MinSeasonalHistory:
		return finance.MethodTrendOnly, nil
	default:
		return finance.MethodSeasonal, nil
	}
}

// Forecast projects series (ordered, one value per month, last observed in
// period last) horizon months ahead. Once the minimum history is met a
// forecast is always returned; a failed seasonal or ARIMA fit is replaced by
// the linear trend and reported through Method and Caveats.
func (f *Forecaster) Forecast(series []float64, last finance.Period, horizon int, confidence float64) (*Result, error) {
	if err := finance.ValidateHorizon(horizon); err != nil {
		return nil, err
	}
	if err := finance.ValidateConfidence(confidence); err != nil {
		return nil, err
	}
	method, err := SelectMethod(len(series))
	if err != nil {
		return nil, err
	}

	primary := f.trend
	if method == finance.MethodSeasonal {
		primary = f.seasonal
	}

	var fallbackCause string
	ft, err := primary(series, horizon)
	if err != nil {
		fallbackCause = err.Error()
		ft, err = f.linear(series, horizon)
		if err != nil {
			return nil, fmt.Errorf("linear fallback: %w", err)
		}
		ft.caveats.Add(finance.CaveatConvergence, fmt.Sprintf("%s model failed (%s); used linear trend", method, fallbackCause))
	}

	z := distuv.UnitNormal.Quantile((1 + confidence) / 2)
	res := &Result{
		Method:        ft.method,
		Model:         ft.label,
		MonthsOfData:  len(series),
		ResidualStd:   ft.residualStd,
		LastValue:     series[len(series)-1],
		Average:       stat.Mean(series, nil),
		Params:        ft.params,
		Caveats:       ft.caveats,
		FallbackCause: fallbackCause,
	}
	for h := 0; h < horizon; h++ {
		half := z * ft.stdErr[h]
		res.Forecasts = append(res.Forecasts, finance.Forecast{
			Period: last.Add(h + 1),
			Point:  ft.points[h],
			Interval: finance.Interval{
				Lower:      ft.points[h] - half,
				Upper:      ft.points[h] + half,
				Confidence: confidence,
			},
			Method:  ft.method,
			Model:   ft.label,
			Caveats: ft.caveats,
		})
	}
	return res, nil
}

// ForecastRecords forecasts one column of monthly records.
func (f *Forecaster) ForecastRecords(records []finance.MonthlyRecord, column string, horizon int, confidence float64) (*Result, error) {
	if len(records) == 0 {
		return nil, finance.InsufficientHistory("time-series forecast", 0, MinTrendHistory)
	}
	return f.Forecast(finance.Series(records, column), records[len(records)-1].Period, horizon, confidence)
}
