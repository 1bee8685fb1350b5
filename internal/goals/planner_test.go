package goals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

var now = time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testPlanner() *Planner {
	return &Planner{Now: func() time.Time { return now }}
}

func TestCalculateTimeline(t *testing.T) {
	tl, err := testPlanner().CalculateTimeline(10000, 2500, 500)
	require.NoError(t, err)

	assert.True(t, tl.Feasible)
	assert.Equal(t, 7500.0, tl.AmountNeeded)
	assert.Equal(t, 15, tl.MonthsNeeded)
	assert.Equal(t, date(2026, time.April, 30), tl.TargetDate)
	assert.Equal(t, 25.0, tl.Progress)
	assert.Equal(t, RatingGood, tl.Feasibility.Rating)
	assert.Equal(t, 70, tl.Feasibility.Score)

	require.Len(t, tl.Milestones, 4)
	want := []Milestone{
		{Percent: 25, Amount: 4375, MonthsFromStart: 4, ExpectedDate: date(2025, time.May, 31)},
		{Percent: 50, Amount: 6250, MonthsFromStart: 8, ExpectedDate: date(2025, time.September, 30)},
		{Percent: 75, Amount: 8125, MonthsFromStart: 12, ExpectedDate: date(2026, time.January, 31)},
		{Percent: 100, Amount: 10000, MonthsFromStart: 15, ExpectedDate: date(2026, time.April, 30)},
	}
	assert.Equal(t, want, tl.Milestones)
}

func TestCalculateTimelineEdgeCases(t *testing.T) {
	p := testPlanner()

	t.Run("no contribution", func(t *testing.T) {
		tl, err := p.CalculateTimeline(10000, 0, 0)
		require.NoError(t, err)
		assert.False(t, tl.Feasible)
		assert.NotEmpty(t, tl.Message)
		assert.Empty(t, tl.Milestones)
	})

	t.Run("already reached", func(t *testing.T) {
		tl, err := p.CalculateTimeline(1000, 1500, 100)
		require.NoError(t, err)
		assert.True(t, tl.Feasible)
		assert.Equal(t, 0, tl.MonthsNeeded)
		assert.Equal(t, 0.0, tl.AmountNeeded)
		assert.Equal(t, 100.0, tl.Progress)
	})

	t.Run("invalid amounts", func(t *testing.T) {
		_, err := p.CalculateTimeline(-1, 0, 100)
		assert.ErrorIs(t, err, finance.ErrInvalidParameter)
		_, err = p.CalculateTimeline(1000, -5, 100)
		assert.ErrorIs(t, err, finance.ErrInvalidParameter)
	})
}

func TestReversePlan(t *testing.T) {
	plan, err := testPlanner().ReversePlan(12000, 0, date(2026, time.January, 31))
	require.NoError(t, err)

	assert.True(t, plan.Feasible)
	assert.Equal(t, 12, plan.MonthsAvailable)
	assert.Equal(t, 1000.0, plan.RequiredMonthly)
	assert.Equal(t, RatingGood, plan.Feasibility.Rating)

	require.Len(t, plan.Alternatives, 2)
	assert.Equal(t, "Aggressive", plan.Alternatives[0].Scenario)
	assert.Equal(t, 1500.0, plan.Alternatives[0].MonthlySavings)
	assert.Equal(t, 8, plan.Alternatives[0].MonthsNeeded)
	assert.Equal(t, "Conservative", plan.Alternatives[1].Scenario)
	assert.Equal(t, 750.0, plan.Alternatives[1].MonthlySavings)
	assert.Equal(t, 16, plan.Alternatives[1].MonthsNeeded)
	assert.Equal(t, 12, plan.Milestones[3].MonthsFromStart)
}

func TestReversePlanInfeasible(t *testing.T) {
	p := testPlanner()
	for name, d := range map[string]time.Time{
		"past":     date(2024, time.June, 1),
		"too soon": date(2025, time.February, 15),
	} {
		t.Run(name, func(t *testing.T) {
			plan, err := p.ReversePlan(5000, 0, d)
			require.NoError(t, err)
			assert.False(t, plan.Feasible)
			assert.Empty(t, plan.Alternatives)
		})
	}

	_, err := p.ReversePlan(5000, 0, time.Time{})
	assert.ErrorIs(t, err, finance.ErrInvalidParameter)
}

func TestFeasibilityRatings(t *testing.T) {
	tests := []struct {
		months  int
		monthly float64
		score   int
	}{
		{6, 500, 85},
		{12, 1000, 70},
		{24, 2500, 55},
		{48, 100, 40},
		{61, 100, 25},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.score, rate(tt.months, tt.monthly).Score, "%d months at %.0f", tt.months, tt.monthly)
	}
}

func TestPlanGoal(t *testing.T) {
	p := testPlanner()

	byDate, err := p.PlanGoal(finance.Goal{ID: "g1", TargetAmount: 12000, TargetDate: date(2026, time.January, 31)})
	require.NoError(t, err)
	require.NotNil(t, byDate.Reverse)
	assert.Nil(t, byDate.Timeline)
	assert.Equal(t, "g1", byDate.GoalID)

	byContribution, err := p.PlanGoal(finance.Goal{ID: "g2", TargetAmount: 1000, MonthlyContribution: 100})
	require.NoError(t, err)
	require.NotNil(t, byContribution.Timeline)
	assert.Equal(t, 10, byContribution.Timeline.MonthsNeeded)
}

func TestCalendarArithmetic(t *testing.T) {
	assert.Equal(t, date(2025, time.February, 28), addMonths(date(2025, time.January, 31), 1))
	assert.Equal(t, date(2024, time.February, 29), addMonths(date(2024, time.January, 31), 1))
	assert.Equal(t, date(2026, time.March, 15), addMonths(date(2025, time.March, 15), 12))

	assert.Equal(t, 0, monthsBetween(date(2025, time.January, 31), date(2025, time.February, 28)))
	assert.Equal(t, 1, monthsBetween(date(2025, time.January, 15), date(2025, time.February, 15)))
	assert.Equal(t, 12, monthsBetween(date(2025, time.January, 31), date(2026, time.January, 31)))
	assert.Equal(t, -7, monthsBetween(date(2025, time.January, 31), date(2024, time.June, 1)))
}
