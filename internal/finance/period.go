package finance

import (
	"fmt"
	"time"
)

// Period identifies a calendar month.
type Period struct {
	Year  int        `json:"year" firestore:"year"`
	Month time.Month `json:"month" firestore:"month"`
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod parses a "2006-01" string.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, InvalidParameter("period", s, "expected YYYY-MM")
	}
	return PeriodOf(t), nil
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Index is a monotonically increasing month counter, useful for gap arithmetic.
func (p Period) Index() int {
	return p.Year*12 + int(p.Month) - 1
}

// Add returns the period n months later (n may be negative).
func (p Period) Add(n int) Period {
	idx := p.Index() + n
	return Period{Year: idx / 12, Month: time.Month(idx%12 + 1)}
}

// Next returns the following month.
func (p Period) Next() Period {
	return p.Add(1)
}

// Before reports whether p is strictly earlier than o.
func (p Period) Before(o Period) bool {
	return p.Index() < o.Index()
}

// Start returns midnight UTC on the first day of the month.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Days returns the number of days in the month.
func (p Period) Days() int {
	return p.Start().AddDate(0, 1, -1).Day()
}

// Quarter returns 1-4.
func (p Period) Quarter() int {
	return (int(p.Month)-1)/3 + 1
}

func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Period) UnmarshalText(b []byte) error {
	parsed, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
