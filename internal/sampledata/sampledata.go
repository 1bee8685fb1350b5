// Package sampledata generates deterministic synthetic ledgers for demos,
// seeding and tests. The same Profile always yields the same transactions,
// IDs included.
package sampledata

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// Profile describes a synthetic user.
type Profile struct {
	UserID        string
	Start         finance.Period
	Months        int
	MonthlyIncome float64
	Seed          uint64
	// Growth is the monthly growth rate applied to discretionary spend.
	Growth float64
}

// DefaultProfile is two years of history for userID ending the month before
// now.
func DefaultProfile(userID string, now time.Time) Profile {
	return Profile{
		UserID:        userID,
		Start:         finance.PeriodOf(now).Add(-24),
		Months:        24,
		MonthlyIncome: 6000,
		Seed:          42,
		Growth:        0.005,
	}
}

var idSpace = uuid.MustParse("8f7c0d1e-5b0a-4c39-9a57-3c1f2f7b6a10")

type generator struct {
	p   Profile
	rng *rand.Rand
	out []finance.Transaction
}

func (g *generator) noisy(mean, spread float64) float64 {
	v := mean + spread*g.rng.NormFloat64()
	return finance.Round2(math.Max(1, v))
}

func (g *generator) add(period finance.Period, day int, typ finance.TransactionType, category, payee string, amount float64) {
	if day > period.Days() {
		day = period.Days()
	}
	n := len(g.out)
	g.out = append(g.out, finance.Transaction{
		ID:       uuid.NewSHA1(idSpace, []byte(fmt.Sprintf("%s/%d/%d", g.p.UserID, g.p.Seed, n))).String(),
		UserID:   g.p.UserID,
		Date:     time.Date(period.Year, period.Month, day, 12, 0, 0, 0, time.UTC),
		Type:     typ,
		Category: category,
		Payee:    payee,
		Amount:   amount,
	})
}

// Transactions generates the profile's ledger in date order within each
// month.
func Transactions(p Profile) []finance.Transaction {
	if p.Months <= 0 || p.UserID == "" {
		return nil
	}
	if p.MonthlyIncome <= 0 {
		p.MonthlyIncome = 6000
	}
	g := &generator{p: p, rng: rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))}

	for m := 0; m < p.Months; m++ {
		period := p.Start.Add(m)
		growth := math.Pow(1+p.Growth, float64(m))
		income := p.MonthlyIncome
		if period.Month == time.December {
			income *= 1.5
		}

		g.add(period, 1, finance.TransactionIncome, "Salary", "Acme Corp", finance.Round2(income))
		g.add(period, 1, finance.TransactionExpense, "Housing", "City Apartments", finance.Round2(p.MonthlyIncome*0.3))
		g.add(period, 2, finance.TransactionSavings, "Savings", "Savings Transfer", finance.Round2(p.MonthlyIncome*0.1))
		g.add(period, 5, finance.TransactionExpense, "Healthcare", "FitLife Gym", 49)
		g.add(period, 9, finance.TransactionExpense, "Entertainment", "Netflix", 15.99)

		utilities := 120.0
		switch period.Month {
		case time.December, time.January, time.February:
			utilities = 190
		}
		g.add(period, 15, finance.TransactionExpense, "Utilities", "Power & Light", g.noisy(utilities, 15))

		for _, day := range []int{3, 10, 17, 24} {
			g.add(period, day, finance.TransactionExpense, "Food", "FreshMart", g.noisy(110*growth, 20))
		}
		for i, n := 0, 2+g.rng.IntN(3); i < n; i++ {
			g.add(period, 6+7*i, finance.TransactionExpense, "Food", "Deliveroo", g.noisy(35*growth, 8))
		}

		trips := 8
		for i := 0; i < trips; i++ {
			g.add(period, 2+3*i, finance.TransactionExpense, "Transport", "Metro", g.noisy(12, 3))
		}
		if period.Month == time.July {
			g.add(period, 20, finance.TransactionExpense, "Transport", "SkyHigh Airlines", g.noisy(450, 60))
		}

		shopping := 160 * growth
		if period.Month == time.November || period.Month == time.December {
			shopping *= 2.5
		}
		for _, day := range []int{12, 26} {
			g.add(period, day, finance.TransactionExpense, "Shopping", "MegaStore", g.noisy(shopping/2, shopping/8))
		}
		if g.rng.Float64() < 0.3 {
			g.add(period, 19, finance.TransactionExpense, "Other", "Misc", g.noisy(60, 20))
		}
	}
	return g.out
}

// Records generates the profile's monthly aggregates.
func Records(p Profile) []finance.MonthlyRecord {
	return finance.AggregateMonthly(Transactions(p))
}

// Goals returns a deadline goal and a contribution goal for userID.
func Goals(userID string, now time.Time) []finance.Goal {
	return []finance.Goal{
		{
			ID:            uuid.NewSHA1(idSpace, []byte(userID+"/goal/emergency")).String(),
			UserID:        userID,
			Name:          "Emergency fund",
			TargetAmount:  18000,
			CurrentAmount: 6500,
			StartDate:     now.AddDate(-1, 0, 0),
			TargetDate:    now.AddDate(1, 0, 0),
			Status:        finance.GoalActive,
		},
		{
			ID:                  uuid.NewSHA1(idSpace, []byte(userID+"/goal/holiday")).String(),
			UserID:              userID,
			Name:                "Holiday",
			TargetAmount:        4000,
			CurrentAmount:       1500,
			MonthlyContribution: 250,
			StartDate:           now.AddDate(0, -6, 0),
			Status:              finance.GoalActive,
		},
	}
}
