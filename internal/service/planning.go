package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/castlemilk/pfinance/analytics/internal/budget"
	"github.com/castlemilk/pfinance/analytics/internal/finance"
	"github.com/castlemilk/pfinance/analytics/internal/forecast"
	"github.com/castlemilk/pfinance/analytics/internal/goals"
	"github.com/castlemilk/pfinance/analytics/internal/health"
	"github.com/castlemilk/pfinance/analytics/internal/recommend"
)

// ============================================================================
// Health score
// ============================================================================

// HealthRequest carries the balances the store does not track.
type HealthRequest struct {
	EmergencySavings   float64 `json:"emergency_savings"`
	MonthlyDebtPayment float64 `json:"monthly_debt_payment"`
}

// HealthScore scores the user's finances and records the snapshot.
func (s *InsightService) HealthScore(ctx context.Context, userID string, req HealthRequest) (*health.Result, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	records, err := s.records(ctx, userID)
	if err != nil {
		return nil, err
	}
	active, err := s.activeGoals(ctx, userID)
	if err != nil {
		return nil, err
	}
	res, err := s.scoreHealth(userID, records, active, req)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateHealthSnapshot(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to save health snapshot: %w", err)
	}
	s.logger.Info("scored financial health",
		zap.String("user_id", userID),
		zap.Int("score", res.Score),
		zap.String("grade", res.Grade),
	)
	return res, nil
}

func (s *InsightService) scoreHealth(userID string, records []finance.MonthlyRecord, active []finance.Goal, req HealthRequest) (*health.Result, error) {
	scorer := health.NewScorer()
	scorer.Now = s.now
	return scorer.Score(health.Input{
		UserID:             userID,
		Records:            records,
		EmergencySavings:   req.EmergencySavings,
		MonthlyDebtPayment: req.MonthlyDebtPayment,
		Goals:              active,
	})
}

// HealthTrend is a user's snapshot history with the change between the two
// most recent scores.
type HealthTrend struct {
	Snapshots []health.Result `json:"snapshots"`
	Change    *int            `json:"change,omitempty"`
}

// HealthHistory returns up to limit of the user's snapshots, oldest first.
func (s *InsightService) HealthHistory(ctx context.Context, userID string, limit int) (*HealthTrend, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	snaps, err := s.store.ListHealthSnapshots(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list health snapshots: %w", err)
	}
	out := &HealthTrend{Snapshots: snaps}
	if n := len(snaps); n >= 2 {
		change := snaps[n-1].Score - snaps[n-2].Score
		out.Change = &change
	}
	return out, nil
}

// ============================================================================
// Budget
// ============================================================================

// BudgetOutlook pairs the needs/wants/savings plan with a per-category split
// of the recommended spending budget.
type BudgetOutlook struct {
	Plan       *budget.Plan                   `json:"plan"`
	Categories *forecast.BudgetRecommendation `json:"category_budget,omitempty"`
}

func (s *InsightService) optimizer() *budget.Optimizer {
	o := budget.NewOptimizer()
	o.Now = s.now
	return o
}

// Budget recommends a budget from recent transactions and active goals.
func (s *InsightService) Budget(ctx context.Context, userID string) (*BudgetOutlook, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	txns, err := s.recentTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	active, err := s.activeGoals(ctx, userID)
	if err != nil {
		return nil, err
	}
	records, err := s.records(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.budget(txns, active, records)
}

func (s *InsightService) budget(txns []finance.Transaction, active []finance.Goal, records []finance.MonthlyRecord) (*BudgetOutlook, error) {
	plan, err := s.optimizer().GenerateRecommendations(txns, active)
	if err != nil {
		return nil, err
	}
	out := &BudgetOutlook{Plan: plan}
	if len(records) == 0 {
		return out, nil
	}
	p, err := forecast.NewCategoryPredictor(s.opts.Predictor, vocabulary(records))
	if err != nil {
		return nil, err
	}
	spend := plan.Recommended.Needs + plan.Recommended.Wants
	out.Categories, err = p.RecommendBudget(records, spend, s.opts.SafetyMargin)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// limits turns an outlook into alert limits: the needs and wants buckets plus
// every allocated category.
func (o *BudgetOutlook) limits() map[string]float64 {
	out := map[string]float64{
		string(budget.Needs): o.Plan.Recommended.Needs,
		string(budget.Wants): o.Plan.Recommended.Wants,
	}
	if o.Categories != nil {
		for _, a := range o.Categories.Allocations {
			if a.Amount.IsPositive() {
				out[a.Category] = a.Amount.InexactFloat64()
			}
		}
	}
	return out
}

// Alerts checks month-to-date spending against limits. When limits is empty
// the recommended budget supplies them.
func (s *InsightService) Alerts(ctx context.Context, userID string, limits map[string]float64) ([]budget.Alert, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	for k, v := range limits {
		if v <= 0 {
			return nil, finance.InvalidParameter("budget", k, "limits must be positive")
		}
	}
	txns, err := s.recentTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(limits) == 0 {
		active, err := s.activeGoals(ctx, userID)
		if err != nil {
			return nil, err
		}
		records, err := s.records(ctx, userID)
		if err != nil {
			return nil, err
		}
		outlook, err := s.budget(txns, active, records)
		if err != nil {
			return nil, err
		}
		limits = outlook.limits()
	}
	return s.optimizer().GenerateAlerts(txns, limits), nil
}

// OptimizeSavings proposes spending cuts that lift the savings rate to target,
// a fraction of income.
func (s *InsightService) OptimizeSavings(ctx context.Context, userID string, target float64) (*budget.Optimization, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	txns, err := s.recentTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.optimizer().OptimizeForSavingsRate(txns, target)
}

// SpendingPatterns summarises spending by category over months months.
func (s *InsightService) SpendingPatterns(ctx context.Context, userID string, months int) (*budget.SpendingAnalysis, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	txns, err := s.recentTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	a := s.optimizer().AnalyzeSpendingPatterns(txns, months)
	return &a, nil
}

// ============================================================================
// Recommendations
// ============================================================================

// Recommendations runs every transaction-based detector over months months
// (the engine default when 0).
func (s *InsightService) Recommendations(ctx context.Context, userID string, months int) (*recommend.Recommendations, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if months < 0 || months > 12 {
		return nil, finance.InvalidParameter("months", months, "must be between 1 and 12")
	}
	txns, err := s.recentTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	active, err := s.activeGoals(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.engine().GetAllRecommendations(txns, active, months), nil
}

func (s *InsightService) engine() *recommend.Engine {
	e := recommend.NewEngine()
	e.Now = s.now
	return e
}

// ============================================================================
// Goals
// ============================================================================

func (s *InsightService) planner() *goals.Planner {
	p := goals.NewPlanner()
	p.Now = s.now
	return p
}

// CreateGoal stores a new goal for userID.
func (s *InsightService) CreateGoal(ctx context.Context, userID string, g *finance.Goal) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if strings.TrimSpace(g.Name) == "" {
		return finance.InvalidParameter("name", g.Name, "goal name is required")
	}
	if g.TargetAmount <= 0 {
		return finance.InvalidParameter("target_amount", g.TargetAmount, "must be positive")
	}
	if g.CurrentAmount < 0 || g.MonthlyContribution < 0 {
		return finance.InvalidParameter("current_amount", g.CurrentAmount, "amounts must be non-negative")
	}
	g.UserID = userID
	if g.StartDate.IsZero() {
		g.StartDate = s.now()
	}
	if err := s.store.CreateGoal(ctx, g); err != nil {
		return fmt.Errorf("failed to create goal: %w", err)
	}
	return nil
}

// ListGoals returns the user's goals, optionally filtered by status.
func (s *InsightService) ListGoals(ctx context.Context, userID string, status finance.GoalStatus) ([]finance.Goal, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	out, err := s.store.ListGoals(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	return out, nil
}

// goal fetches goalID, hiding goals owned by someone else.
func (s *InsightService) goal(ctx context.Context, userID, goalID string) (*finance.Goal, error) {
	g, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get goal: %w", err)
	}
	if g.UserID != userID {
		return nil, finance.NotFound("goal", goalID)
	}
	return g, nil
}

// DeleteGoal removes one of the user's goals.
func (s *InsightService) DeleteGoal(ctx context.Context, userID, goalID string) error {
	if _, err := s.goal(ctx, userID, goalID); err != nil {
		return err
	}
	if err := s.store.DeleteGoal(ctx, goalID); err != nil {
		return fmt.Errorf("failed to delete goal: %w", err)
	}
	return nil
}

// PlanGoal plans one of the user's goals by deadline or contribution.
func (s *InsightService) PlanGoal(ctx context.Context, userID, goalID string) (*goals.GoalPlan, error) {
	g, err := s.goal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	return s.planner().PlanGoal(*g)
}

// GoalTimeline answers an ad-hoc "how long until" question.
func (s *InsightService) GoalTimeline(target, current, monthly float64) (*goals.Timeline, error) {
	return s.planner().CalculateTimeline(target, current, monthly)
}
