package predictor

import (
	"math"
)

const epsilon = 1e-10

// Metrics are regression accuracy measures. MAPE is a percentage.
type Metrics struct {
	N    int     `json:"n"`
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	MAPE float64 `json:"mape"`
	R2   float64 `json:"r2"`
	// PerTarget is populated for multi-target models.
	PerTarget []Metrics `json:"per_target,omitempty"`
}

// Score computes metrics for a single target series.
func Score(actual, predicted []float64) Metrics {
	n := len(actual)
	if n == 0 || n != len(predicted) {
		return Metrics{}
	}
	var absSum, sqSum, pctSum, mean float64
	for _, a := range actual {
		mean += a
	}
	mean /= float64(n)

	var ssTot float64
	for i, a := range actual {
		d := a - predicted[i]
		absSum += math.Abs(d)
		sqSum += d * d
		pctSum += math.Abs(d) / (math.Abs(a) + epsilon)
		ssTot += (a - mean) * (a - mean)
	}

	m := Metrics{
		N:    n,
		MAE:  absSum / float64(n),
		RMSE: math.Sqrt(sqSum / float64(n)),
		MAPE: pctSum / float64(n) * 100,
	}
	switch {
	case ssTot > 0:
		m.R2 = 1 - sqSum/ssTot
	case sqSum <= epsilon:
		m.R2 = 1
	}
	return m
}

// computeMetrics scores every target column and averages them.
func computeMetrics(actual, predicted [][]float64) Metrics {
	if len(actual) == 0 {
		return Metrics{}
	}
	k := len(actual[0])
	if k == 1 {
		return Score(column(actual, 0), column(predicted, 0))
	}
	out := Metrics{N: len(actual)}
	for j := 0; j < k; j++ {
		s := Score(column(actual, j), column(predicted, j))
		out.PerTarget = append(out.PerTarget, s)
		out.MAE += s.MAE / float64(k)
		out.RMSE += s.RMSE / float64(k)
		out.MAPE += s.MAPE / float64(k)
		out.R2 += s.R2 / float64(k)
	}
	return out
}

func column(rows [][]float64, j int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r[j]
	}
	return out
}

// OverspendingRatio returns predicted/average and the amount by which
// predicted exceeds threshold*average (never negative).
func OverspendingRatio(predicted, average, threshold float64) (ratio, excess float64) {
	ratio = predicted / (average + epsilon)
	excess = math.Max(0, predicted-average*threshold)
	return ratio, excess
}
