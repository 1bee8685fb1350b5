package finance

// ForecastMethod identifies which model family produced a Forecast.
type ForecastMethod string

const (
	// MethodSeasonal is additive Holt-Winters with a 12-period season.
	MethodSeasonal ForecastMethod = "seasonal"
	// MethodTrendOnly is a non-seasonal ARIMA fit.
	MethodTrendOnly ForecastMethod = "trend_only"
	// MethodLinearFallback is a least-squares trend line.
	MethodLinearFallback ForecastMethod = "linear_fallback"
	// MethodEnsemble is a bagged regression tree ensemble.
	MethodEnsemble ForecastMethod = "ensemble"
)

// Interval is a symmetric range around a point estimate.
type Interval struct {
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Confidence float64 `json:"confidence"`
}

// Width returns Upper-Lower.
func (i Interval) Width() float64 {
	return i.Upper - i.Lower
}

// Forecast is an immutable point estimate with its interval and provenance.
type Forecast struct {
	Period   Period         `json:"period"`
	Point    float64        `json:"point"`
	Interval Interval       `json:"interval"`
	Method   ForecastMethod `json:"method"`
	Model    string         `json:"model,omitempty"`
	Caveats  []Caveat       `json:"caveats,omitempty"`
}

// Caveat records a numeric hazard that was replaced with a sentinel.
type Caveat struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Caveat codes.
const (
	CaveatZeroBaseline = "zero_baseline"
	CaveatNonFinite    = "non_finite"
	CaveatHistoryGap   = "history_gap"
	CaveatConvergence  = "convergence"
	CaveatShortSeason  = "short_season"
	CaveatNegativeFlow = "negative_flow"
)

// Caveats accumulates caveats without duplicates.
type Caveats []Caveat

// Add appends a caveat unless an identical one is already present.
func (c *Caveats) Add(code, message string) {
	for _, existing := range *c {
		if existing.Code == code && existing.Message == message {
			return
		}
	}
	*c = append(*c, Caveat{Code: code, Message: message})
}
