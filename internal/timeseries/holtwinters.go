package timeseries

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// SeasonLength is the monthly seasonal cycle.
const SeasonLength = 12

type hwState struct {
	level, trend float64
	season       []float64
	residuals    []float64
	sse          float64
}

// runHoltWinters applies additive-trend, additive-season exponential
// smoothing and returns the final state and one-step-ahead residuals.
func runHoltWinters(y []float64, m int, alpha, beta, gamma float64) hwState {
	first := y[:m]
	level0 := stat.Mean(first, nil)
	var trend0 float64
	if len(y) >= 2*m {
		trend0 = (stat.Mean(y[m:2*m], nil) - level0) / float64(m)
	} else {
		trend0, _, _ = LinearRegression(first)
	}
	center := float64(m-1) / 2

	season := make([]float64, m)
	for i := 0; i < m; i++ {
		season[i] = y[i] - (level0 + trend0*(float64(i)-center))
	}

	st := hwState{
		level:  level0 - trend0*(center+1),
		trend:  trend0,
		season: season,
	}
	for t, v := range y {
		s := st.season[t%m]
		predicted := st.level + st.trend + s
		prevLevel := st.level
		st.level = alpha*(v-s) + (1-alpha)*(st.level+st.trend)
		st.trend = beta*(st.level-prevLevel) + (1-beta)*st.trend
		st.season[t%m] = gamma*(v-st.level) + (1-gamma)*s
		if t >= m || len(y) < m+3 {
			r := v - predicted
			st.residuals = append(st.residuals, r)
			st.sse += r * r
		}
	}
	return st
}

func logistic(u float64) float64 { return 1 / (1 + math.Exp(-u)) }

// fitHoltWinters chooses smoothing parameters by Nelder-Mead on the one-step
// squared error. Any numeric failure is returned as an error so the caller can
// fall back to a simpler model.
func fitHoltWinters(y []float64, horizon int) (*fit, error) {
	m := SeasonLength
	if len(y) < m {
		return nil, fmt.Errorf("seasonal model needs %d points, got %d", m, len(y))
	}

	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			st := runHoltWinters(y, m, logistic(u[0]), logistic(u[1]), logistic(u[2]))
			if math.IsNaN(st.sse) || math.IsInf(st.sse, 0) {
				return math.MaxFloat64
			}
			return st.sse
		},
	}
	settings := &optimize.Settings{FuncEvaluations: 3000}
	// Start near alpha=0.3, beta=0.1, gamma=0.1.
	res, err := optimize.Minimize(problem, []float64{-0.85, -2.2, -2.2}, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("optimise smoothing parameters: %w", err)
	}
	if res == nil || math.IsNaN(res.F) || res.F == math.MaxFloat64 {
		return nil, errors.New("smoothing parameters did not converge")
	}

	alpha, beta, gamma := logistic(res.X[0]), logistic(res.X[1]), logistic(res.X[2])
	st := runHoltWinters(y, m, alpha, beta, gamma)

	sd := 0.0
	if len(st.residuals) > 1 {
		sd = stat.StdDev(st.residuals, nil)
	}
	if math.IsNaN(sd) || math.IsInf(sd, 0) {
		return nil, errors.New("residual variance is not finite")
	}

	f := &fit{
		method:      finance.MethodSeasonal,
		label:       "holt_winters",
		residualStd: sd,
		params:      map[string]float64{"alpha": alpha, "beta": beta, "gamma": gamma},
	}
	if len(y) < 2*m {
		f.caveats.Add(finance.CaveatShortSeason, fmt.Sprintf("only %d months of history; seasonal indices rest on a single cycle", len(y)))
	}
	n := len(y)
	for h := 1; h <= horizon; h++ {
		s := st.season[(n+h-1)%m]
		p := st.level + float64(h)*st.trend + s
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, errors.New("seasonal forecast is not finite")
		}
		f.points = append(f.points, p)
		f.stdErr = append(f.stdErr, sd*math.Sqrt(float64(h)))
	}
	return f, nil
}
