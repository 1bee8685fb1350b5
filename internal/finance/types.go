package finance

import (
	"math"
	"sort"
	"strings"
	"time"
)

// DefaultCategories is the fixed category vocabulary used when none is supplied.
var DefaultCategories = []string{
	"Food",
	"Transport",
	"Shopping",
	"Entertainment",
	"Utilities",
	"Healthcare",
	"Education",
	"Other",
}

// MonthlyRecord is one month of aggregated activity for one user.
type MonthlyRecord struct {
	UserID       string             `json:"user_id,omitempty" firestore:"userId"`
	Period       Period             `json:"period" firestore:"period"`
	TotalIncome  float64            `json:"total_income" firestore:"totalIncome"`
	TotalExpense float64            `json:"total_expense" firestore:"totalExpense"`
	Savings      float64            `json:"savings" firestore:"savings"`
	Categories   map[string]float64 `json:"categories,omitempty" firestore:"categories"`
}

// Category returns spend for name, zero when absent.
func (r MonthlyRecord) Category(name string) float64 {
	if r.Categories == nil {
		return 0
	}
	return r.Categories[name]
}

// Column returns the named numeric column. Category columns are addressed by
// their category name.
func (r MonthlyRecord) Column(name string) float64 {
	switch name {
	case ColumnIncome:
		return r.TotalIncome
	case ColumnExpense:
		return r.TotalExpense
	case ColumnSavings:
		return r.Savings
	default:
		return r.Category(name)
	}
}

// Numeric column names on MonthlyRecord.
const (
	ColumnIncome  = "total_income"
	ColumnExpense = "total_expense"
	ColumnSavings = "savings"
)

// SortRecords orders records by period ascending, in place.
func SortRecords(records []MonthlyRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Period.Before(records[j].Period)
	})
}

// Series extracts one column across records.
func Series(records []MonthlyRecord, column string) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.Column(column)
	}
	return out
}

// TransactionType classifies a Transaction.
type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
	TransactionSavings TransactionType = "savings"
)

// Transaction is a single raw ledger entry.
type Transaction struct {
	ID          string          `json:"id" firestore:"id"`
	UserID      string          `json:"user_id" firestore:"userId"`
	Date        time.Time       `json:"date" firestore:"date"`
	Type        TransactionType `json:"type" firestore:"type"`
	Category    string          `json:"category" firestore:"category"`
	Payee       string          `json:"payee" firestore:"payee"`
	Description string          `json:"description,omitempty" firestore:"description"`
	Amount      float64         `json:"amount" firestore:"amount"`
}

// IsExpense reports whether the transaction is an expense.
func (t Transaction) IsExpense() bool {
	return strings.EqualFold(string(t.Type), string(TransactionExpense))
}

// AggregateMonthly rolls transactions up into contiguous monthly records.
// Months with no activity inside the observed range are emitted as zero rows.
func AggregateMonthly(txns []Transaction) []MonthlyRecord {
	if len(txns) == 0 {
		return nil
	}
	byPeriod := make(map[Period]*MonthlyRecord)
	first, last := PeriodOf(txns[0].Date), PeriodOf(txns[0].Date)
	for _, t := range txns {
		p := PeriodOf(t.Date)
		if p.Before(first) {
			first = p
		}
		if last.Before(p) {
			last = p
		}
		rec, ok := byPeriod[p]
		if !ok {
			rec = &MonthlyRecord{UserID: t.UserID, Period: p, Categories: map[string]float64{}}
			byPeriod[p] = rec
		}
		switch strings.ToLower(string(t.Type)) {
		case string(TransactionIncome):
			rec.TotalIncome += t.Amount
		case string(TransactionExpense):
			rec.TotalExpense += t.Amount
			rec.Categories[t.Category] += t.Amount
		}
	}

	var out []MonthlyRecord
	for p := first; !last.Before(p); p = p.Next() {
		rec, ok := byPeriod[p]
		if !ok {
			out = append(out, MonthlyRecord{UserID: txns[0].UserID, Period: p, Categories: map[string]float64{}})
			continue
		}
		rec.Savings = rec.TotalIncome - rec.TotalExpense
		out = append(out, *rec)
	}
	return out
}

// GoalStatus is the lifecycle state of a Goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalPaused    GoalStatus = "paused"
)

// Goal is a savings target.
type Goal struct {
	ID                  string     `json:"id" firestore:"id"`
	UserID              string     `json:"user_id" firestore:"userId"`
	Name                string     `json:"name" firestore:"name"`
	TargetAmount        float64    `json:"target_amount" firestore:"targetAmount"`
	CurrentAmount       float64    `json:"current_amount" firestore:"currentAmount"`
	MonthlyContribution float64    `json:"monthly_contribution,omitempty" firestore:"monthlyContribution"`
	StartDate           time.Time  `json:"start_date,omitempty" firestore:"startDate"`
	TargetDate          time.Time  `json:"target_date,omitempty" firestore:"targetDate"`
	Status              GoalStatus `json:"status" firestore:"status"`
}

// IsActive reports whether the goal is active.
func (g Goal) IsActive() bool {
	return strings.EqualFold(string(g.Status), string(GoalActive))
}

// Progress returns CurrentAmount/TargetAmount as a percentage.
func (g Goal) Progress() float64 {
	if g.TargetAmount <= 0 {
		return 0
	}
	return g.CurrentAmount / g.TargetAmount * 100
}

// Round2 rounds to cents.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
