// Package budget derives 50/30/20 budgets from income, goals and recent
// spending, and flags categories on pace to overspend.
package budget

import (
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// Baseline ratios.
const (
	NeedsRatio   = 0.50
	WantsRatio   = 0.30
	SavingsRatio = 0.20

	// Goals may claim at most this share of income.
	maxGoalShare = 0.40
	// Wants never drop below this share of income when goals need more.
	minWantsShare = 0.15
)

// DefaultAnalysisMonths is the history window analysed.
const DefaultAnalysisMonths = 3

var printer = message.NewPrinter(language.English)

// Optimizer builds budgets and alerts from transactions.
type Optimizer struct {
	AnalysisMonths int
	Now            func() time.Time
}

// NewOptimizer returns an Optimizer over DefaultAnalysisMonths.
func NewOptimizer() *Optimizer {
	return &Optimizer{AnalysisMonths: DefaultAnalysisMonths, Now: time.Now}
}

func (o *Optimizer) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Optimizer) months() int {
	if o.AnalysisMonths > 0 {
		return o.AnalysisMonths
	}
	return DefaultAnalysisMonths
}

// window returns transactions dated within the last months*30 days.
func (o *Optimizer) window(txns []finance.Transaction, months int) []finance.Transaction {
	cutoff := o.now().AddDate(0, 0, -30*months)
	var out []finance.Transaction
	for _, t := range txns {
		if !t.Date.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// CategorySpend summarises one category over the analysis window.
type CategorySpend struct {
	Category         string  `json:"category"`
	Bucket           Bucket  `json:"classification"`
	Total            float64 `json:"total"`
	MonthlyAverage   float64 `json:"average_monthly"`
	Variance         float64 `json:"variance"`
	TransactionCount int     `json:"transaction_count"`
}

// SpendingAnalysis is the bucketed view of recent spending.
type SpendingAnalysis struct {
	MonthsAnalyzed int             `json:"months_analyzed"`
	TotalNeeds     float64         `json:"total_needs"`
	TotalWants     float64         `json:"total_wants"`
	TotalSavings   float64         `json:"total_savings"`
	TotalIncome    float64         `json:"total_income"`
	Categories     []CategorySpend `json:"category_breakdown"`
}

// Category returns the named category summary.
func (a SpendingAnalysis) Category(name string) (CategorySpend, bool) {
	for _, c := range a.Categories {
		if c.Category == name {
			return c, true
		}
	}
	return CategorySpend{}, false
}

// AnalyzeSpendingPatterns buckets expense transactions from the last months
// months. Variance is the standard deviation of a category's monthly totals.
func (o *Optimizer) AnalyzeSpendingPatterns(txns []finance.Transaction, months int) SpendingAnalysis {
	if months <= 0 {
		months = o.months()
	}
	a := SpendingAnalysis{MonthsAnalyzed: months}
	recent := o.window(txns, months)

	first := finance.PeriodOf(o.now()).Add(-months)
	byCategory := make(map[string]*CategorySpend)
	monthly := make(map[string]map[finance.Period]float64)
	for _, t := range recent {
		switch strings.ToLower(string(t.Type)) {
		case string(finance.TransactionIncome):
			a.TotalIncome += t.Amount
			continue
		case string(finance.TransactionSavings):
			a.TotalSavings += t.Amount
			continue
		case string(finance.TransactionExpense):
		default:
			continue
		}
		c, ok := byCategory[t.Category]
		if !ok {
			c = &CategorySpend{Category: t.Category, Bucket: ClassifyCategory(t.Category)}
			byCategory[t.Category] = c
			monthly[t.Category] = make(map[finance.Period]float64)
		}
		c.Total += t.Amount
		c.TransactionCount++
		monthly[t.Category][finance.PeriodOf(t.Date)] += t.Amount
		switch c.Bucket {
		case Needs:
			a.TotalNeeds += t.Amount
		case Wants:
			a.TotalWants += t.Amount
		}
	}

	for name, c := range byCategory {
		c.MonthlyAverage = c.Total / float64(months)
		series := make([]float64, 0, months+1)
		for p := first; !finance.PeriodOf(o.now()).Before(p); p = p.Next() {
			series = append(series, monthly[name][p])
		}
		if len(series) > 1 {
			c.Variance = finance.Round2(stat.StdDev(series, nil))
		}
		c.Total = finance.Round2(c.Total)
		c.MonthlyAverage = finance.Round2(c.MonthlyAverage)
		a.Categories = append(a.Categories, *c)
	}
	sort.Slice(a.Categories, func(i, j int) bool {
		if a.Categories[i].Total != a.Categories[j].Total {
			return a.Categories[i].Total > a.Categories[j].Total
		}
		return a.Categories[i].Category < a.Categories[j].Category
	})
	a.TotalNeeds = finance.Round2(a.TotalNeeds)
	a.TotalWants = finance.Round2(a.TotalWants)
	a.TotalSavings = finance.Round2(a.TotalSavings)
	a.TotalIncome = finance.Round2(a.TotalIncome)
	return a
}

// Allocation is a needs/wants/savings split of monthly income.
type Allocation struct {
	Needs          float64 `json:"needs"`
	Wants          float64 `json:"wants"`
	Savings        float64 `json:"savings"`
	NeedsPercent   float64 `json:"needs_percentage"`
	WantsPercent   float64 `json:"wants_percentage"`
	SavingsPercent float64 `json:"savings_percentage"`
}

// Total returns the allocated amount.
func (a Allocation) Total() float64 {
	return a.Needs + a.Wants + a.Savings
}

func newAllocation(income, needs, wants, savings float64) Allocation {
	a := Allocation{Needs: finance.Round2(needs), Wants: finance.Round2(wants), Savings: finance.Round2(savings)}
	if income > 0 {
		a.NeedsPercent = math.Round(needs/income*1000) / 10
		a.WantsPercent = math.Round(wants/income*1000) / 10
		a.SavingsPercent = math.Round(savings/income*1000) / 10
	}
	return a
}

// GoalRequirement returns the monthly saving active goals call for: each
// goal's monthly contribution, or a twelfth of what remains when it has none,
// capped at 40% of income.
func GoalRequirement(goals []finance.Goal, income float64) float64 {
	var total float64
	for _, g := range goals {
		if !g.IsActive() {
			continue
		}
		if g.MonthlyContribution > 0 {
			total += g.MonthlyContribution
			continue
		}
		total += math.Max(0, g.TargetAmount-g.CurrentAmount) / 12
	}
	return math.Min(total, income*maxGoalShare)
}

// Allocate splits income 50/30/20, then raises savings to cover active goals.
// The extra comes out of wants down to 15% of income, then out of needs, so
// the buckets always sum to income.
func Allocate(income float64, goals []finance.Goal) (Allocation, error) {
	if income <= 0 || math.IsNaN(income) || math.IsInf(income, 0) {
		return Allocation{}, finance.InvalidParameter("monthly_income", income, "must be positive")
	}
	needs, wants, savings := income*NeedsRatio, income*WantsRatio, income*SavingsRatio

	if required := GoalRequirement(goals, income); required > savings {
		deficit := required - savings
		fromWants := math.Min(deficit, math.Max(0, wants-income*minWantsShare))
		wants -= fromWants
		needs -= deficit - fromWants
		savings = required
	}
	return newAllocation(income, needs, wants, savings), nil
}

// Recommendation kinds.
const (
	KindLeakage   = "leakage"
	KindReduction = "reduction"
)

// CategoryRecommendation is a suggested change to one category.
type CategoryRecommendation struct {
	Category          string  `json:"category"`
	Kind              string  `json:"type"`
	Message           string  `json:"message"`
	CurrentAmount     float64 `json:"current_amount"`
	RecommendedAmount float64 `json:"recommended_amount,omitempty"`
	PotentialSavings  float64 `json:"potential_savings,omitempty"`
	Variance          float64 `json:"variance,omitempty"`
}

// maxCategoryRecommendations bounds the per-category suggestions returned.
const maxCategoryRecommendations = 10

// Plan is a recommended budget compared with current spending.
type Plan struct {
	MonthlyIncome           float64                  `json:"monthly_income"`
	GoalRequirement         float64                  `json:"goal_requirement"`
	Recommended             Allocation               `json:"recommended_budget"`
	Current                 Allocation               `json:"current_spending"`
	Adjustments             Allocation               `json:"adjustments_needed"`
	CategoryRecommendations []CategoryRecommendation `json:"category_recommendations"`
	CalculatedAt            time.Time                `json:"calculated_at"`
}

// GenerateRecommendations builds a Plan from recent transactions and goals.
// Current savings are income less needs and wants spending.
func (o *Optimizer) GenerateRecommendations(txns []finance.Transaction, goals []finance.Goal) (*Plan, error) {
	months := o.months()
	analysis := o.AnalyzeSpendingPatterns(txns, months)
	income := analysis.TotalIncome / float64(months)
	if income <= 0 {
		return nil, finance.InsufficientHistory("budget plan: no income in window", 0, 1)
	}
	rec, err := Allocate(income, goals)
	if err != nil {
		return nil, err
	}

	curNeeds := analysis.TotalNeeds / float64(months)
	curWants := analysis.TotalWants / float64(months)
	curSavings := income - curNeeds - curWants

	plan := &Plan{
		MonthlyIncome:   finance.Round2(income),
		GoalRequirement: finance.Round2(GoalRequirement(goals, income)),
		Recommended:     rec,
		Current:         newAllocation(income, curNeeds, curWants, curSavings),
		Adjustments: Allocation{
			Needs:   finance.Round2(rec.Needs - curNeeds),
			Wants:   finance.Round2(rec.Wants - curWants),
			Savings: finance.Round2(rec.Savings - curSavings),
		},
		CategoryRecommendations: []CategoryRecommendation{},
		CalculatedAt:            o.now().UTC(),
	}

	for _, c := range analysis.Categories {
		avg := c.MonthlyAverage
		if c.Variance > avg*0.5 && avg > 100 {
			plan.CategoryRecommendations = append(plan.CategoryRecommendations, CategoryRecommendation{
				Category:      c.Category,
				Kind:          KindLeakage,
				Message:       "High variance in " + c.Category + " spending. Consider setting a fixed budget.",
				CurrentAmount: avg,
				Variance:      c.Variance,
			})
		}
		if c.Bucket == Wants && avg > rec.Wants*0.3 {
			cut := avg * 0.2
			plan.CategoryRecommendations = append(plan.CategoryRecommendations, CategoryRecommendation{
				Category:          c.Category,
				Kind:              KindReduction,
				Message:           "Consider reducing " + c.Category + " spending by 20%.",
				CurrentAmount:     avg,
				RecommendedAmount: finance.Round2(avg - cut),
				PotentialSavings:  finance.Round2(cut),
			})
		}
	}
	if len(plan.CategoryRecommendations) > maxCategoryRecommendations {
		plan.CategoryRecommendations = plan.CategoryRecommendations[:maxCategoryRecommendations]
	}
	return plan, nil
}

// Opportunity is a suggested cut to one wants category.
type Opportunity struct {
	Category           string  `json:"category"`
	CurrentSpending    float64 `json:"current_spending"`
	SuggestedReduction float64 `json:"suggested_reduction"`
	NewBudget          float64 `json:"new_budget"`
}

// Optimization statuses.
const (
	StatusTargetMet = "target_met"
	StatusGap       = "gap"
)

// Optimization describes how to reach a target savings rate.
type Optimization struct {
	Status               string        `json:"status"`
	Message              string        `json:"message,omitempty"`
	CurrentSavingsRate   float64       `json:"current_savings_rate"`
	TargetSavingsRate    float64       `json:"target_savings_rate"`
	MonthlySavingsGap    float64       `json:"monthly_savings_gap"`
	Opportunities        []Opportunity `json:"optimization_opportunities"`
	ProjectedSavingsRate float64       `json:"projected_savings_rate"`
}

// OptimizeForSavingsRate proposes up to five 30% cuts to wants categories,
// highest spend weighted by volatility first, until the gap to target (a
// fraction of income) is closed.
func (o *Optimizer) OptimizeForSavingsRate(txns []finance.Transaction, target float64) (*Optimization, error) {
	if target <= 0 || target >= 1 || math.IsNaN(target) {
		return nil, finance.InvalidParameter("target_savings_rate", target, "must be in (0, 1)")
	}
	months := o.months()
	analysis := o.AnalyzeSpendingPatterns(txns, months)
	income := analysis.TotalIncome / float64(months)
	if income <= 0 {
		return nil, finance.InsufficientHistory("savings optimisation: no income in window", 0, 1)
	}
	current := income - (analysis.TotalNeeds+analysis.TotalWants)/float64(months)
	rate := current / income
	gap := income*target - current

	out := &Optimization{
		CurrentSavingsRate: finance.Round2(rate * 100),
		TargetSavingsRate:  finance.Round2(target * 100),
		Opportunities:      []Opportunity{},
	}
	if gap <= 0 {
		out.Status = StatusTargetMet
		out.Message = printer.Sprintf("You're already saving %.1f%%, which meets or exceeds the target of %.0f%%.", rate*100, target*100)
		out.ProjectedSavingsRate = out.CurrentSavingsRate
		return out, nil
	}
	out.Status = StatusGap
	out.MonthlySavingsGap = finance.Round2(gap)

	type candidate struct {
		spend CategorySpend
		score float64
	}
	var cands []candidate
	for _, c := range analysis.Categories {
		if c.Bucket != Wants || c.MonthlyAverage <= 0 {
			continue
		}
		cands = append(cands, candidate{c, c.MonthlyAverage * (1 + c.Variance/c.MonthlyAverage)})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })
	if len(cands) > 5 {
		cands = cands[:5]
	}

	remaining, saved := gap, 0.0
	for _, c := range cands {
		if remaining <= 0 {
			break
		}
		cut := math.Min(c.spend.MonthlyAverage*0.3, remaining)
		out.Opportunities = append(out.Opportunities, Opportunity{
			Category:           c.spend.Category,
			CurrentSpending:    c.spend.MonthlyAverage,
			SuggestedReduction: finance.Round2(cut),
			NewBudget:          finance.Round2(c.spend.MonthlyAverage - cut),
		})
		remaining -= cut
		saved += cut
	}
	out.ProjectedSavingsRate = finance.Round2((current + saved) / income * 100)
	return out, nil
}
