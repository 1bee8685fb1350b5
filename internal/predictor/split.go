package predictor

import (
	"context"
	"fmt"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// Fold is one forward-chaining split. Every index in Train precedes every
// index in Test.
type Fold struct {
	Train []int `json:"train"`
	Test  []int `json:"test"`
}

// ForwardChainingSplits partitions n time-ordered rows into nSplits folds.
// Each fold trains on a prefix and tests on the block that immediately follows
// it; later folds grow the training prefix. Ordering is never shuffled.
func ForwardChainingSplits(n, nSplits int) ([]Fold, error) {
	if nSplits < 2 {
		return nil, finance.InvalidParameter("n_splits", nSplits, "must be at least 2")
	}
	testSize := n / (nSplits + 1)
	if testSize < 1 {
		return nil, finance.InsufficientHistory(fmt.Sprintf("%d-fold cross-validation", nSplits), n, nSplits+1)
	}
	folds := make([]Fold, 0, nSplits)
	for start := n - nSplits*testSize; start < n; start += testSize {
		f := Fold{}
		for i := 0; i < start; i++ {
			f.Train = append(f.Train, i)
		}
		for i := start; i < start+testSize; i++ {
			f.Test = append(f.Test, i)
		}
		folds = append(folds, f)
	}
	return folds, nil
}

// FoldResult is the held-out score of one fold.
type FoldResult struct {
	Fold    Fold    `json:"fold"`
	Metrics Metrics `json:"metrics"`
}

// CVResult aggregates fold scores.
type CVResult struct {
	Folds []FoldResult `json:"folds"`
	Mean  Metrics      `json:"mean"`
}

// CrossValidate trains one model per forward-chaining fold and scores it on
// the fold's test block.
func CrossValidate(ctx context.Context, cfg Config, columns, targets []string, x, y [][]float64, nSplits int) (*CVResult, error) {
	if len(x) != len(y) {
		return nil, finance.InvalidParameter("rows", len(x), "features and targets must be aligned")
	}
	folds, err := ForwardChainingSplits(len(x), nSplits)
	if err != nil {
		return nil, err
	}

	res := &CVResult{}
	for i, f := range folds {
		model, err := Train(ctx, cfg, "cv", columns, targets, pick(x, f.Train), pick(y, f.Train))
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", i, err)
		}
		m, err := model.Evaluate(pick(x, f.Test), columns, pick(y, f.Test))
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", i, err)
		}
		res.Folds = append(res.Folds, FoldResult{Fold: f, Metrics: m})
		k := float64(len(folds))
		res.Mean.N += m.N
		res.Mean.MAE += m.MAE / k
		res.Mean.RMSE += m.RMSE / k
		res.Mean.MAPE += m.MAPE / k
		res.Mean.R2 += m.R2 / k
	}
	return res, nil
}

// TrainTestSplit holds out the last testSize rows.
func TrainTestSplit(x, y [][]float64, testSize int) (xTrain, xTest, yTrain, yTest [][]float64, err error) {
	if testSize < 1 || testSize >= len(x) {
		return nil, nil, nil, nil, finance.InvalidParameter("test_size", testSize, fmt.Sprintf("must be between 1 and %d", len(x)-1))
	}
	cut := len(x) - testSize
	return x[:cut], x[cut:], y[:cut], y[cut:], nil
}

func pick(rows [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}
