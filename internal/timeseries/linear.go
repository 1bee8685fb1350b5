package timeseries

import (
	"errors"
	"math"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// LinearRegression computes slope, intercept and R-squared for a series of
// y-values where x = 0, 1, 2, ... (the index).
func LinearRegression(points []float64) (slope, intercept, rSquared float64) {
	n := float64(len(points))
	if n < 2 {
		if n == 1 {
			return 0, points[0], 0
		}
		return 0, 0, 0
	}
	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range points {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0, sumY / n, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	meanY := sumY / n
	var ssRes, ssTot float64
	for i, y := range points {
		predicted := slope*float64(i) + intercept
		ssRes += (y - predicted) * (y - predicted)
		ssTot += (y - meanY) * (y - meanY)
	}
	if ssTot == 0 {
		return slope, intercept, 1
	}
	rSquared = 1 - ssRes/ssTot
	return slope, intercept, rSquared
}

// fitLinear extrapolates a least-squares trend line. Standard errors are the
// usual prediction-interval widths for a new observation at each horizon.
func fitLinear(y []float64, horizon int) (*fit, error) {
	n := len(y)
	if n < 2 {
		return nil, errors.New("linear trend needs at least two points")
	}
	slope, intercept, _ := LinearRegression(y)

	var ssRes float64
	for i, v := range y {
		r := v - (intercept + slope*float64(i))
		ssRes += r * r
	}
	dof := n - 2
	if dof < 1 {
		dof = 1
	}
	s := math.Sqrt(ssRes / float64(dof))

	xBar := float64(n-1) / 2
	var sxx float64
	for i := 0; i < n; i++ {
		sxx += (float64(i) - xBar) * (float64(i) - xBar)
	}

	f := &fit{method: finance.MethodLinearFallback, label: "linear", residualStd: s}
	for h := 1; h <= horizon; h++ {
		x0 := float64(n - 1 + h)
		f.points = append(f.points, intercept+slope*x0)
		f.stdErr = append(f.stdErr, s*math.Sqrt(1+1/float64(n)+(x0-xBar)*(x0-xBar)/sxx))
	}
	f.params = map[string]float64{"slope": slope, "intercept": intercept}
	return f, nil
}
