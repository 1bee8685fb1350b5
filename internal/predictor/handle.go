package predictor

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync/atomic"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// Trainable fits a new model from monthly history.
type Trainable interface {
	Train(ctx context.Context, records []finance.MonthlyRecord) error
}

// Predictable produces point and interval estimates from feature rows laid out
// in the given column order.
type Predictable interface {
	Predict(x [][]float64, columns []string) ([][]float64, error)
	PredictWithInterval(x [][]float64, columns []string, confidence float64) ([]Prediction, error)
}

// Persistable saves and restores model state through opaque byte streams.
type Persistable interface {
	Save(w io.Writer) error
	Load(r io.Reader) error
}

// Forecaster is the capability set every monthly forecaster offers.
type Forecaster interface {
	Trainable
	Predictable
	Persistable
	Kind() string
}

// Handle holds the live model of a forecaster. Installing a new model is
// atomic; callers that already fetched the previous model keep using it.
type Handle struct {
	kind    string
	targets []string
	current atomic.Pointer[Model]
}

// NewHandle creates an empty handle for kind. When targets is non-nil, loaded
// models must carry exactly that target ordering.
func NewHandle(kind string, targets []string) *Handle {
	return &Handle{kind: kind, targets: slices.Clone(targets)}
}

// Kind returns the forecaster kind.
func (h *Handle) Kind() string { return h.kind }

// Model returns the live model or a NOT_TRAINED error.
func (h *Handle) Model() (*Model, error) {
	m := h.current.Load()
	if m == nil {
		return nil, &finance.Error{Code: finance.CodeNotTrained, Message: h.kind + " has not been trained or loaded"}
	}
	return m, nil
}

// Install replaces the live model.
func (h *Handle) Install(m *Model) error {
	if m.Kind() != h.kind {
		return finance.InvalidParameter("model kind", m.Kind(), "expected "+h.kind)
	}
	if h.targets != nil && !slices.Equal(m.targets, h.targets) {
		return finance.SchemaMismatch(h.targets, m.targets)
	}
	h.current.Store(m)
	return nil
}

// Predict delegates to the live model.
func (h *Handle) Predict(x [][]float64, columns []string) ([][]float64, error) {
	m, err := h.Model()
	if err != nil {
		return nil, err
	}
	return m.Predict(x, columns)
}

// PredictWithInterval delegates to the live model.
func (h *Handle) PredictWithInterval(x [][]float64, columns []string, confidence float64) ([]Prediction, error) {
	m, err := h.Model()
	if err != nil {
		return nil, err
	}
	return m.PredictWithInterval(x, columns, confidence)
}

// FeatureImportance delegates to the live model.
func (h *Handle) FeatureImportance() ([]Importance, error) {
	m, err := h.Model()
	if err != nil {
		return nil, err
	}
	return m.FeatureImportance(), nil
}

// Save writes the live model.
func (h *Handle) Save(w io.Writer) error {
	m, err := h.Model()
	if err != nil {
		return err
	}
	return m.Save(w)
}

// Load reads a model and installs it.
func (h *Handle) Load(r io.Reader) error {
	m, err := Load(r)
	if err != nil {
		return fmt.Errorf("load %s: %w", h.kind, err)
	}
	return h.Install(m)
}
