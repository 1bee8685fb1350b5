// Package forecast holds the monthly forecasters built on the shared tree
// ensemble: total expense, per-category spend and savings. Each one owns its
// target specification and exposes the Trainable, Predictable and Persistable
// capabilities through an embedded predictor.Handle.
package forecast

import (
	"context"
	"fmt"

	"github.com/castlemilk/pfinance/analytics/internal/features"
	"github.com/castlemilk/pfinance/analytics/internal/finance"
	"github.com/castlemilk/pfinance/analytics/internal/predictor"
)

// Forecaster kinds, also used as model-store keys.
const (
	KindExpense  = "expense"
	KindCategory = "category"
	KindSavings  = "savings"
)

// DefaultConfidence is used when callers pass 0.
const DefaultConfidence = 0.95

// TrailingWindow is the number of months averaged for historical comparisons.
const TrailingWindow = 6

// base wires a target spec to a model handle.
type base struct {
	*predictor.Handle
	builder *features.Builder
	spec    features.TargetSpec
	cfg     predictor.Config
}

func newBase(kind string, spec features.TargetSpec, cfg predictor.Config) base {
	return base{
		Handle:  predictor.NewHandle(kind, spec.Targets),
		builder: features.NewBuilder(),
		spec:    spec,
		cfg:     cfg,
	}
}

// Train fits a new model on records and installs it.
func (b *base) Train(ctx context.Context, records []finance.MonthlyRecord) error {
	t, err := b.builder.Build(records, b.spec)
	if err != nil {
		return fmt.Errorf("build %s features: %w", b.Kind(), err)
	}
	x, y := t.Labeled()
	m, err := predictor.Train(ctx, b.cfg, b.Kind(), t.Columns, t.Targets, x, y)
	if err != nil {
		return fmt.Errorf("train %s: %w", b.Kind(), err)
	}
	return b.Install(m)
}

// Evaluate scores the live model against the labelled rows of records.
func (b *base) Evaluate(records []finance.MonthlyRecord) (predictor.Metrics, error) {
	m, err := b.Model()
	if err != nil {
		return predictor.Metrics{}, err
	}
	t, err := b.builder.Build(records, b.spec)
	if err != nil {
		return predictor.Metrics{}, err
	}
	x, y := t.Labeled()
	return m.Evaluate(x, t.Columns, y)
}

// CrossValidate runs forward-chaining validation over records with the
// forecaster's configuration. The live model is untouched.
func (b *base) CrossValidate(ctx context.Context, records []finance.MonthlyRecord, nSplits int) (*predictor.CVResult, error) {
	t, err := b.builder.Build(records, b.spec)
	if err != nil {
		return nil, err
	}
	x, y := t.Labeled()
	return predictor.CrossValidate(ctx, b.cfg, t.Columns, t.Targets, x, y, nSplits)
}

// predictNext predicts the period after the last record.
func (b *base) predictNext(records []finance.MonthlyRecord, confidence float64) (*features.Table, predictor.Prediction, *predictor.Model, error) {
	m, err := b.Model()
	if err != nil {
		return nil, predictor.Prediction{}, nil, err
	}
	t, err := b.builder.Build(records, b.spec)
	if err != nil {
		return nil, predictor.Prediction{}, nil, err
	}
	preds, err := m.PredictWithInterval([][]float64{t.Latest()}, t.Columns, confidence)
	if err != nil {
		return nil, predictor.Prediction{}, nil, err
	}
	return t, preds[0], m, nil
}

func confidenceOrDefault(c float64) (float64, error) {
	if c == 0 {
		return DefaultConfidence, nil
	}
	return c, finance.ValidateConfidence(c)
}

func trailingMean(s []float64, window int) float64 {
	if len(s) == 0 {
		return 0
	}
	if len(s) > window {
		s = s[len(s)-window:]
	}
	var sum float64
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s))
}

func mean(s []float64) float64 {
	return trailingMean(s, len(s))
}

func forecastAt(t *features.Table, m *predictor.Model, p predictor.Prediction, k int) finance.Forecast {
	return finance.Forecast{
		Period: t.NextPeriod(),
		Point:  finance.Round2(p.Point[k]),
		Interval: finance.Interval{
			Lower:      finance.Round2(p.Lower[k]),
			Upper:      finance.Round2(p.Upper[k]),
			Confidence: p.Confidence,
		},
		Method:  finance.MethodEnsemble,
		Model:   m.ID(),
		Caveats: t.Caveats,
	}
}
