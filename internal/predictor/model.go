// Package predictor implements the bagged regression-tree engine shared by the
// monthly forecasters: training, point and interval prediction, evaluation,
// forward-chaining cross-validation, feature importance and persistence.
package predictor

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// Config controls forest training.
type Config struct {
	Estimators      int     `json:"estimators"`
	MaxDepth        int     `json:"max_depth"`
	MinSamplesSplit int     `json:"min_samples_split"`
	MinSamplesLeaf  int     `json:"min_samples_leaf"`
	MaxFeatures     float64 `json:"max_features"` // fraction of columns tried per split
	Bootstrap       bool    `json:"bootstrap"`
	Seed            int64   `json:"seed"`
	Workers         int     `json:"-"` // 0 means GOMAXPROCS
}

// DefaultConfig mirrors a conventional random forest regressor.
func DefaultConfig() Config {
	return Config{
		Estimators:      100,
		MaxDepth:        10,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     1.0,
		Bootstrap:       true,
		Seed:            42,
	}
}

// Validate rejects configurations that cannot train.
func (c Config) Validate() error {
	if c.Estimators < 1 {
		return finance.InvalidParameter("estimators", c.Estimators, "must be at least 1")
	}
	if c.MaxDepth < 1 {
		return finance.InvalidParameter("max_depth", c.MaxDepth, "must be at least 1")
	}
	if !(c.MaxFeatures > 0 && c.MaxFeatures <= 1) {
		return finance.InvalidParameter("max_features", c.MaxFeatures, "must be in (0, 1]")
	}
	return nil
}

// Model is a trained, immutable regression model. Retraining produces a new
// Model; nothing mutates a Model after Train returns it.
type Model struct {
	id           string
	kind         string
	config       Config
	columns      []string
	targets      []string
	forest       *forest
	residualStd  []float64
	trainMetrics Metrics
	trainedAt    time.Time
}

// Info describes a trained model.
type Info struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	TrainedAt    time.Time `json:"trained_at"`
	Columns      []string  `json:"columns"`
	Targets      []string  `json:"targets"`
	Estimators   int       `json:"estimators"`
	MaxDepth     int       `json:"max_depth"`
	ResidualStd  []float64 `json:"residual_std"`
	TrainMetrics Metrics   `json:"train_metrics"`
}

// Prediction is a point estimate per target with a symmetric interval.
type Prediction struct {
	Point      []float64 `json:"point"`
	Lower      []float64 `json:"lower"`
	Upper      []float64 `json:"upper"`
	Confidence float64   `json:"confidence"`
}

// Importance is one feature's normalised contribution.
type Importance struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// Train fits a forest on x/y. columns names the feature ordering of x and is
// stored with the model; targets names the columns of y.
func Train(ctx context.Context, cfg Config, kind string, columns, targets []string, x, y [][]float64) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(x) == 0 || len(x) != len(y) {
		return nil, finance.InvalidParameter("training rows", len(x), fmt.Sprintf("features and targets must be non-empty and aligned (targets %d)", len(y)))
	}
	for i := range x {
		if len(x[i]) != len(columns) {
			return nil, finance.SchemaMismatch(columns, []string{fmt.Sprintf("row %d has %d values", i, len(x[i]))})
		}
		if len(y[i]) != len(targets) {
			return nil, finance.InvalidParameter("targets", len(y[i]), fmt.Sprintf("row %d must have %d targets", i, len(targets)))
		}
	}

	f, oob, err := fitForest(ctx, x, y, cfg)
	if err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}

	m := &Model{
		id:        uuid.New().String(),
		kind:      kind,
		config:    cfg,
		columns:   slices.Clone(columns),
		targets:   slices.Clone(targets),
		forest:    f,
		trainedAt: time.Now().UTC(),
	}

	// Interval widths come from out-of-bag residuals where available, which
	// behave like held-out errors; in-sample residuals fill the gaps.
	m.residualStd = make([]float64, len(targets))
	for j := range targets {
		var res []float64
		for i := range x {
			pred := oob[i][j]
			if math.IsNaN(pred) {
				pred = f.predict(x[i])[j]
			}
			res = append(res, y[i][j]-pred)
		}
		sd := 0.0
		if len(res) > 1 {
			sd = stat.StdDev(res, nil)
		}
		if math.IsNaN(sd) || math.IsInf(sd, 0) {
			sd = 0
		}
		m.residualStd[j] = sd
	}

	preds := make([][]float64, len(x))
	for i := range x {
		preds[i] = f.predict(x[i])
	}
	m.trainMetrics = computeMetrics(y, preds)
	return m, nil
}

// ID returns the model's unique identifier.
func (m *Model) ID() string { return m.id }

// Kind returns the forecaster kind the model was trained for.
func (m *Model) Kind() string { return m.kind }

// Columns returns a copy of the trained feature ordering.
func (m *Model) Columns() []string { return slices.Clone(m.columns) }

// Targets returns a copy of the target ordering.
func (m *Model) Targets() []string { return slices.Clone(m.targets) }

// Info summarises the model.
func (m *Model) Info() Info {
	return Info{
		ID:           m.id,
		Kind:         m.kind,
		TrainedAt:    m.trainedAt,
		Columns:      m.Columns(),
		Targets:      m.Targets(),
		Estimators:   m.config.Estimators,
		MaxDepth:     m.config.MaxDepth,
		ResidualStd:  slices.Clone(m.residualStd),
		TrainMetrics: m.trainMetrics,
	}
}

func (m *Model) checkSchema(x [][]float64, columns []string) error {
	if !slices.Equal(columns, m.columns) {
		return finance.SchemaMismatch(m.columns, columns)
	}
	for i, row := range x {
		if len(row) != len(m.columns) {
			return finance.SchemaMismatch(m.columns, []string{fmt.Sprintf("row %d has %d values", i, len(row))})
		}
	}
	return nil
}

// Predict returns one point estimate per target for each row of x.
func (m *Model) Predict(x [][]float64, columns []string) ([][]float64, error) {
	if err := m.checkSchema(x, columns); err != nil {
		return nil, err
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = m.forest.predict(row)
	}
	return out, nil
}

// PredictWithInterval adds a symmetric Gaussian interval of
// z((1+confidence)/2) residual standard deviations around each point.
func (m *Model) PredictWithInterval(x [][]float64, columns []string, confidence float64) ([]Prediction, error) {
	if err := finance.ValidateConfidence(confidence); err != nil {
		return nil, err
	}
	points, err := m.Predict(x, columns)
	if err != nil {
		return nil, err
	}
	z := ZScore(confidence)
	out := make([]Prediction, len(points))
	for i, p := range points {
		pr := Prediction{
			Point:      p,
			Lower:      make([]float64, len(p)),
			Upper:      make([]float64, len(p)),
			Confidence: confidence,
		}
		for j, v := range p {
			half := z * m.residualStd[j]
			pr.Lower[j] = v - half
			pr.Upper[j] = v + half
		}
		out[i] = pr
	}
	return out, nil
}

// Evaluate scores the model against known targets.
func (m *Model) Evaluate(x [][]float64, columns []string, y [][]float64) (Metrics, error) {
	if len(x) != len(y) || len(x) == 0 {
		return Metrics{}, finance.InvalidParameter("evaluation rows", len(x), "features and targets must be non-empty and aligned")
	}
	preds, err := m.Predict(x, columns)
	if err != nil {
		return Metrics{}, err
	}
	return computeMetrics(y, preds), nil
}

// FeatureImportance returns mean-decrease-in-impurity importances normalised
// to sum to one, highest first.
func (m *Model) FeatureImportance() []Importance {
	out := make([]Importance, len(m.columns))
	var total float64
	for _, v := range m.forest.Importance {
		total += v
	}
	for i, c := range m.columns {
		v := 1 / float64(len(m.columns))
		if total > 0 {
			v = m.forest.Importance[i] / total
		}
		out[i] = Importance{Feature: c, Value: v}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Feature < out[j].Feature
	})
	return out
}

// ZScore returns the two-sided standard-normal quantile for confidence.
func ZScore(confidence float64) float64 {
	return distuv.UnitNormal.Quantile((1 + confidence) / 2)
}
