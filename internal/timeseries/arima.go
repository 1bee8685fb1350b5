package timeseries

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// arimaOrder is (p, d, q).
type arimaOrder struct{ p, d, q int }

func (o arimaOrder) String() string { return fmt.Sprintf("ARIMA(%d,%d,%d)", o.p, o.d, o.q) }

type arimaModel struct {
	order arimaOrder
	c     float64
	phi   []float64
	theta []float64
	sigma float64
	aic   float64
	w     []float64 // differenced series
	eps   []float64 // residuals aligned with w
}

func difference(y []float64, d int) []float64 {
	w := append([]float64(nil), y...)
	for i := 0; i < d; i++ {
		next := make([]float64, len(w)-1)
		for t := 1; t < len(w); t++ {
			next[t-1] = w[t] - w[t-1]
		}
		w = next
	}
	return w
}

// stable reports whether the lag polynomial 1 - a1 B - a2 B^2 has its roots
// outside the unit circle (order <= 2).
func stable(a []float64) bool {
	switch len(a) {
	case 0:
		return true
	case 1:
		return math.Abs(a[0]) < 1
	default:
		return a[1]+a[0] < 1 && a[1]-a[0] < 1 && math.Abs(a[1]) < 1
	}
}

// css returns the conditional sum of squares and residuals of an ARMA(p,q)
// with constant c on w, conditioning on the first p observations.
func css(w []float64, c float64, phi, theta []float64) (float64, []float64) {
	p := len(phi)
	eps := make([]float64, len(w))
	var sse float64
	for t := p; t < len(w); t++ {
		pred := c
		for i, ph := range phi {
			pred += ph * w[t-1-i]
		}
		for j, th := range theta {
			if t-1-j >= p {
				pred += th * eps[t-1-j]
			}
		}
		eps[t] = w[t] - pred
		sse += eps[t] * eps[t]
	}
	return sse, eps
}

func fitARMA(y []float64, order arimaOrder) (*arimaModel, error) {
	w := difference(y, order.d)
	k := order.p + order.q + 1
	nEff := len(w) - order.p
	if nEff-k < 2 {
		return nil, fmt.Errorf("%s needs more observations", order)
	}

	unpack := func(x []float64) (float64, []float64, []float64) {
		return x[0], x[1 : 1+order.p], x[1+order.p:]
	}

	x0 := make([]float64, k)
	x0[0] = stat.Mean(w, nil)
	var x []float64
	if order.p == 0 && order.q == 0 {
		x = x0
	} else {
		problem := optimize.Problem{
			Func: func(x []float64) float64 {
				c, phi, theta := unpack(x)
				if !stable(phi) || !stable(negate(theta)) {
					return math.MaxFloat64
				}
				sse, _ := css(w, c, phi, theta)
				if math.IsNaN(sse) || math.IsInf(sse, 0) {
					return math.MaxFloat64
				}
				return sse
			},
		}
		res, err := optimize.Minimize(problem, x0, &optimize.Settings{FuncEvaluations: 2000}, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", order, err)
		}
		if res == nil || res.F == math.MaxFloat64 || math.IsNaN(res.F) {
			return nil, fmt.Errorf("%s did not converge", order)
		}
		x = res.X
	}

	c, phi, theta := unpack(x)
	sse, eps := css(w, c, phi, theta)
	sigma2 := sse / float64(nEff-k)
	aic := math.Inf(-1)
	if sse > 1e-12 {
		aic = float64(nEff)*math.Log(sse/float64(nEff)) + 2*float64(k)
	}
	return &arimaModel{
		order: order,
		c:     c,
		phi:   append([]float64(nil), phi...),
		theta: append([]float64(nil), theta...),
		sigma: math.Sqrt(sigma2),
		aic:   aic,
		w:     w,
		eps:   eps,
	}, nil
}

func negate(a []float64) []float64 {
	out := make([]float64, len(a))
	for i, v := range a {
		out[i] = -v
	}
	return out
}

// psiWeights expands the MA(infinity) representation of the integrated model
// for forecast-variance accumulation.
func (m *arimaModel) psiWeights(h int) []float64 {
	// AR polynomial including the differencing operator.
	ar := append([]float64(nil), m.phi...)
	for i := 0; i < m.order.d; i++ {
		next := make([]float64, len(ar)+1)
		// (1 - sum ar_i B^i)(1 - B) expands to coefficients on B^i.
		for j := range next {
			var v float64
			if j < len(ar) {
				v += ar[j]
			}
			if j == 0 {
				v += 1
			} else if j-1 < len(ar) {
				v -= ar[j-1]
			}
			next[j] = v
		}
		ar = next
	}
	psi := make([]float64, h)
	psi[0] = 1
	for j := 1; j < h; j++ {
		var v float64
		if j-1 < len(m.theta) {
			v = m.theta[j-1]
		}
		for i := 1; i <= len(ar) && i <= j; i++ {
			v += ar[i-1] * psi[j-i]
		}
		psi[j] = v
	}
	return psi
}

func (m *arimaModel) forecast(y []float64, horizon int) (points, stdErr []float64) {
	w := append([]float64(nil), m.w...)
	eps := append([]float64(nil), m.eps...)
	for h := 0; h < horizon; h++ {
		t := len(w)
		pred := m.c
		for i, ph := range m.phi {
			pred += ph * w[t-1-i]
		}
		for j, th := range m.theta {
			if t-1-j >= m.order.p {
				pred += th * eps[t-1-j]
			}
		}
		w = append(w, pred)
		eps = append(eps, 0)
	}

	future := w[len(m.w):]
	if m.order.d == 0 {
		points = future
	} else {
		last := y[len(y)-1]
		for _, v := range future {
			last += v
			points = append(points, last)
		}
	}

	psi := m.psiWeights(horizon)
	var acc float64
	for h := 0; h < horizon; h++ {
		acc += psi[h] * psi[h]
		stdErr = append(stdErr, m.sigma*math.Sqrt(acc))
	}
	return points, stdErr
}

// fitARIMA grid-searches p in 0..2, d in 0..1, q in 0..2 by AIC.
func fitARIMA(y []float64, horizon int) (*fit, error) {
	var best *arimaModel
	for p := 0; p <= 2; p++ {
		for d := 0; d <= 1; d++ {
			for q := 0; q <= 2; q++ {
				m, err := fitARMA(y, arimaOrder{p, d, q})
				if err != nil {
					continue
				}
				if best == nil || m.aic < best.aic {
					best = m
				}
			}
		}
	}
	if best == nil {
		return nil, errors.New("no ARIMA order could be fitted")
	}

	points, stdErr := best.forecast(y, horizon)
	for i := range points {
		if math.IsNaN(points[i]) || math.IsInf(points[i], 0) || math.IsNaN(stdErr[i]) {
			return nil, fmt.Errorf("%s forecast is not finite", best.order)
		}
	}
	f := &fit{
		method:      finance.MethodTrendOnly,
		label:       best.order.String(),
		points:      points,
		stdErr:      stdErr,
		residualStd: best.sigma,
		params:      map[string]float64{"c": best.c, "aic": best.aic},
	}
	for i, v := range best.phi {
		f.params[fmt.Sprintf("phi%d", i+1)] = v
	}
	for i, v := range best.theta {
		f.params[fmt.Sprintf("theta%d", i+1)] = v
	}
	return f, nil
}
