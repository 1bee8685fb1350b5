package features

import "github.com/castlemilk/pfinance/analytics/internal/finance"

// Table is a feature matrix aligned with target rows. len(Y) == len(X)-1: the
// final X row is the forecast row and has no observed target.
type Table struct {
	Columns []string
	Targets []string
	Periods []finance.Period
	X       [][]float64
	Y       [][]float64
	Caveats finance.Caveats
}

// Len returns the number of feature rows including the forecast row.
func (t *Table) Len() int {
	return len(t.X)
}

// Labeled returns the rows that have observed targets.
func (t *Table) Labeled() (x, y [][]float64) {
	return t.X[:len(t.Y)], t.Y
}

// Latest returns the forecast row.
func (t *Table) Latest() []float64 {
	return t.X[len(t.X)-1]
}

// NextPeriod returns the period the forecast row describes.
func (t *Table) NextPeriod() finance.Period {
	return t.Periods[len(t.Periods)-1]
}

// TargetColumn returns observed values of one target by index.
func (t *Table) TargetColumn(k int) []float64 {
	out := make([]float64, len(t.Y))
	for i, y := range t.Y {
		out[i] = y[k]
	}
	return out
}

// ColumnIndex returns the position of name, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}
