package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/castlemilk/pfinance/analytics/internal/budget"
	"github.com/castlemilk/pfinance/analytics/internal/finance"
	"github.com/castlemilk/pfinance/analytics/internal/forecast"
	"github.com/castlemilk/pfinance/analytics/internal/goals"
	"github.com/castlemilk/pfinance/analytics/internal/health"
	"github.com/castlemilk/pfinance/analytics/internal/recommend"
)

// Insight section names.
const (
	SectionExpense         = "expense_forecast"
	SectionCategories      = "category_forecast"
	SectionSavings         = "savings"
	SectionHealth          = "health"
	SectionBudget          = "budget"
	SectionAlerts          = "alerts"
	SectionRecommendations = "recommendations"
	SectionGoals           = "goals"
)

// Insights bundles every analysis for one user. A section that cannot be
// computed from the available history is nil and explained in Unavailable.
type Insights struct {
	UserID          string                     `json:"user_id"`
	GeneratedAt     time.Time                  `json:"generated_at"`
	MonthsOfData    int                        `json:"months_of_data"`
	Expense         *forecast.ExpenseForecast  `json:"expense_forecast,omitempty"`
	Categories      *CategoryOutlook           `json:"category_forecast,omitempty"`
	Savings         *forecast.HealthAssessment `json:"savings,omitempty"`
	Health          *health.Result             `json:"health,omitempty"`
	Budget          *BudgetOutlook             `json:"budget,omitempty"`
	Alerts          []budget.Alert             `json:"alerts,omitempty"`
	Recommendations *recommend.Recommendations `json:"recommendations,omitempty"`
	Goals           []goals.GoalPlan           `json:"goals,omitempty"`
	Unavailable     map[string]string          `json:"unavailable,omitempty"`
}

// degradable reports whether err only means there is not enough data yet.
func degradable(err error) bool {
	return errors.Is(err, finance.ErrInsufficientHistory) || errors.Is(err, finance.ErrNotTrained)
}

// Insights computes every section concurrently from one load of the user's
// data. The health score is computed but not recorded as a snapshot.
func (s *InsightService) Insights(ctx context.Context, userID string, req HealthRequest) (*Insights, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	start := time.Now()

	var (
		records []finance.MonthlyRecord
		txns    []finance.Transaction
		active  []finance.Goal
	)
	load, lctx := errgroup.WithContext(ctx)
	load.Go(func() (err error) {
		records, err = s.records(lctx, userID)
		return err
	})
	load.Go(func() (err error) {
		txns, err = s.recentTransactions(lctx, userID)
		return err
	})
	load.Go(func() (err error) {
		active, err = s.activeGoals(lctx, userID)
		return err
	})
	if err := load.Wait(); err != nil {
		return nil, err
	}

	out := &Insights{UserID: userID, GeneratedAt: s.now(), MonthsOfData: len(records)}
	var mu sync.Mutex
	unavailable := func(section string, err error) error {
		if !degradable(err) {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if out.Unavailable == nil {
			out.Unavailable = map[string]string{}
		}
		out.Unavailable[section] = err.Error()
		return nil
	}

	confidence := s.opts.Confidence
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		f, err := s.forecastExpenses(gctx, userID, records, confidence)
		if err != nil {
			return unavailable(SectionExpense, err)
		}
		out.Expense = f
		return nil
	})
	g.Go(func() error {
		c, err := s.forecastCategories(gctx, userID, records, confidence)
		if err != nil {
			return unavailable(SectionCategories, err)
		}
		out.Categories = c
		return nil
	})
	g.Go(func() error {
		a, err := s.savingsHealth(gctx, userID, records)
		if err != nil {
			return unavailable(SectionSavings, err)
		}
		out.Savings = a
		return nil
	})
	g.Go(func() error {
		h, err := s.scoreHealth(userID, records, active, req)
		if err != nil {
			return unavailable(SectionHealth, err)
		}
		out.Health = h
		return nil
	})
	g.Go(func() error {
		b, err := s.budget(txns, active, records)
		if err != nil {
			return unavailable(SectionBudget, err)
		}
		out.Budget = b
		out.Alerts = s.optimizer().GenerateAlerts(txns, b.limits())
		return nil
	})
	g.Go(func() error {
		out.Recommendations = s.engine().GetAllRecommendations(txns, active, 0)
		return nil
	})
	g.Go(func() error {
		p := s.planner()
		plans := make([]goals.GoalPlan, 0, len(active))
		for _, goal := range active {
			plan, err := p.PlanGoal(goal)
			if err != nil {
				s.logger.Warn("failed to plan goal", zap.String("goal_id", goal.ID), zap.Error(err))
				continue
			}
			plans = append(plans, *plan)
		}
		out.Goals = plans
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Info("computed insights",
		zap.String("user_id", userID),
		zap.Int("months", len(records)),
		zap.Int("unavailable", len(out.Unavailable)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}
