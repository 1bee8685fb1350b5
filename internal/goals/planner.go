// Package goals plans savings goals: how long a goal takes at a given
// contribution, and what contribution a deadline requires.
package goals

import (
	"math"
	"time"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// Feasibility ratings.
const (
	RatingExcellent       = "Excellent"
	RatingGood            = "Good"
	RatingModerate        = "Moderate"
	RatingChallenging     = "Challenging"
	RatingVeryChallenging = "Very Challenging"
)

// Alternative scenario multipliers applied to the required contribution.
const (
	aggressiveFactor   = 1.5
	conservativeFactor = 0.75
)

var milestonePercents = []int{25, 50, 75, 100}

// Feasibility grades how realistic a plan is.
type Feasibility struct {
	Score   int    `json:"feasibility_score"`
	Rating  string `json:"feasibility_rating"`
	Message string `json:"feasibility_message"`
}

// Milestone is a checkpoint on the way to a goal.
type Milestone struct {
	Percent         int       `json:"percentage"`
	Amount          float64   `json:"amount"`
	MonthsFromStart int       `json:"months_from_start"`
	ExpectedDate    time.Time `json:"expected_date"`
}

// Alternative is a faster or slower variant of a plan.
type Alternative struct {
	Scenario       string    `json:"scenario"`
	MonthlySavings float64   `json:"monthly_savings"`
	MonthsNeeded   int       `json:"months_needed"`
	TargetDate     time.Time `json:"target_date"`
	Description    string    `json:"description"`
}

// Timeline is the result of CalculateTimeline.
type Timeline struct {
	Feasible       bool        `json:"feasible"`
	Message        string      `json:"message,omitempty"`
	TargetAmount   float64     `json:"target_amount"`
	CurrentSavings float64     `json:"current_savings"`
	AmountNeeded   float64     `json:"amount_needed"`
	MonthlySavings float64     `json:"monthly_savings"`
	MonthsNeeded   int         `json:"months_needed"`
	TargetDate     time.Time   `json:"target_date,omitempty"`
	Progress       float64     `json:"progress_percentage"`
	Feasibility    Feasibility `json:"feasibility"`
	Milestones     []Milestone `json:"milestones,omitempty"`
}

// ReversePlan is the result of Planner.ReversePlan.
type ReversePlan struct {
	Feasible        bool          `json:"feasible"`
	Message         string        `json:"message,omitempty"`
	TargetAmount    float64       `json:"target_amount"`
	CurrentSavings  float64       `json:"current_savings"`
	AmountNeeded    float64       `json:"amount_needed"`
	TargetDate      time.Time     `json:"target_date"`
	MonthsAvailable int           `json:"months_available"`
	RequiredMonthly float64       `json:"required_monthly_savings"`
	Feasibility     Feasibility   `json:"feasibility"`
	Alternatives    []Alternative `json:"alternatives,omitempty"`
	Milestones      []Milestone   `json:"milestones,omitempty"`
}

// Planner computes goal timelines.
type Planner struct {
	Now func() time.Time
}

// NewPlanner returns a Planner using the wall clock.
func NewPlanner() *Planner {
	return &Planner{Now: time.Now}
}

func (p *Planner) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func validateAmounts(target, current float64) error {
	if target <= 0 || math.IsNaN(target) || math.IsInf(target, 0) {
		return finance.InvalidParameter("target_amount", target, "must be a positive finite amount")
	}
	if current < 0 || math.IsNaN(current) || math.IsInf(current, 0) {
		return finance.InvalidParameter("current_savings", current, "must be a non-negative finite amount")
	}
	return nil
}

// CalculateTimeline returns how long reaching target takes when saving
// monthly per month from current. A non-positive contribution yields an
// infeasible timeline, not an error.
func (p *Planner) CalculateTimeline(target, current, monthly float64) (*Timeline, error) {
	if err := validateAmounts(target, current); err != nil {
		return nil, err
	}
	if math.IsNaN(monthly) || math.IsInf(monthly, 0) {
		return nil, finance.InvalidParameter("monthly_savings", monthly, "must be finite")
	}
	now := p.now()
	needed := math.Max(target-current, 0)
	t := &Timeline{
		TargetAmount:   target,
		CurrentSavings: current,
		AmountNeeded:   finance.Round2(needed),
		MonthlySavings: monthly,
		Progress:       finance.Round2(math.Min(current/target*100, 100)),
	}
	if needed == 0 {
		t.Feasible = true
		t.Message = "Goal already reached"
		t.TargetDate = now
		t.Feasibility = rate(0, monthly)
		return t, nil
	}
	if monthly <= 0 {
		t.Message = "Goal is not feasible with zero or negative monthly savings"
		return t, nil
	}

	months := int(math.Ceil(needed / monthly))
	t.Feasible = true
	t.MonthsNeeded = months
	t.TargetDate = addMonths(now, months)
	t.Feasibility = rate(months, monthly)
	t.Milestones = milestones(current, target, monthly, now)
	return t, nil
}

// ReversePlan returns the monthly contribution needed to reach target by
// targetDate, with aggressive and conservative alternatives. A deadline less
// than a month away yields an infeasible plan, not an error.
func (p *Planner) ReversePlan(target, current float64, targetDate time.Time) (*ReversePlan, error) {
	if err := validateAmounts(target, current); err != nil {
		return nil, err
	}
	if targetDate.IsZero() {
		return nil, finance.InvalidParameter("target_date", targetDate, "is required")
	}
	now := p.now()
	needed := math.Max(target-current, 0)
	plan := &ReversePlan{
		TargetAmount:   target,
		CurrentSavings: current,
		AmountNeeded:   finance.Round2(needed),
		TargetDate:     targetDate,
	}
	months := monthsBetween(now, targetDate)
	if months <= 0 {
		plan.Message = "Target date is in the past or too soon"
		return plan, nil
	}

	required := needed / float64(months)
	plan.Feasible = true
	plan.MonthsAvailable = months
	plan.RequiredMonthly = finance.Round2(required)
	plan.Feasibility = rate(months, required)
	if needed == 0 {
		plan.Message = "Goal already reached"
		return plan, nil
	}
	plan.Alternatives = []Alternative{
		alternative("Aggressive", "Reach your goal faster with increased savings", needed, required*aggressiveFactor, now),
		alternative("Conservative", "More flexible timeline with lower monthly commitment", needed, required*conservativeFactor, now),
	}
	plan.Milestones = milestones(current, target, required, now)
	return plan, nil
}

// GoalPlan holds whichever plan applies to a stored goal.
type GoalPlan struct {
	GoalID   string       `json:"goal_id"`
	Name     string       `json:"name"`
	Timeline *Timeline    `json:"timeline,omitempty"`
	Reverse  *ReversePlan `json:"reverse_plan,omitempty"`
}

// PlanGoal plans g by its deadline when it has one, otherwise by its
// monthly contribution.
func (p *Planner) PlanGoal(g finance.Goal) (*GoalPlan, error) {
	out := &GoalPlan{GoalID: g.ID, Name: g.Name}
	var err error
	if !g.TargetDate.IsZero() {
		out.Reverse, err = p.ReversePlan(g.TargetAmount, g.CurrentAmount, g.TargetDate)
	} else {
		out.Timeline, err = p.CalculateTimeline(g.TargetAmount, g.CurrentAmount, g.MonthlyContribution)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func rate(months int, monthly float64) Feasibility {
	switch {
	case months <= 12 && monthly < 1000:
		return Feasibility{85, RatingExcellent, "This goal is highly achievable with your current savings plan"}
	case months <= 24 && monthly < 2000:
		return Feasibility{70, RatingGood, "This goal is achievable with consistent savings"}
	case months <= 36:
		return Feasibility{55, RatingModerate, "This goal requires commitment but is achievable"}
	case months <= 60:
		return Feasibility{40, RatingChallenging, "This is an ambitious goal that will require dedication"}
	default:
		return Feasibility{25, RatingVeryChallenging, "Consider breaking this into smaller milestones"}
	}
}

func milestones(current, target, monthly float64, start time.Time) []Milestone {
	needed := target - current
	out := make([]Milestone, 0, len(milestonePercents))
	for _, pct := range milestonePercents {
		step := needed * float64(pct) / 100
		months := 0
		if monthly > 0 {
			months = int(math.Ceil(step / monthly))
		}
		out = append(out, Milestone{
			Percent:         pct,
			Amount:          finance.Round2(current + step),
			MonthsFromStart: months,
			ExpectedDate:    addMonths(start, months),
		})
	}
	return out
}

func alternative(scenario, description string, needed, monthly float64, start time.Time) Alternative {
	months := int(math.Ceil(needed / monthly))
	return Alternative{
		Scenario:       scenario,
		MonthlySavings: finance.Round2(monthly),
		MonthsNeeded:   months,
		TargetDate:     addMonths(start, months),
		Description:    description,
	}
}

// addMonths adds n calendar months, clamping to the last day of the month
// instead of overflowing into the next.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// monthsBetween counts whole calendar months from start to end.
func monthsBetween(start, end time.Time) int {
	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	months := (ey-sy)*12 + int(em-sm)
	if months > 0 && ed < sd {
		months--
	} else if months < 0 && ed > sd {
		months++
	}
	return months
}
