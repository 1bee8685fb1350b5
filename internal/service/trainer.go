package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
	"github.com/castlemilk/pfinance/analytics/internal/store"
)

// Trainer periodically refits every user's models.
type Trainer struct {
	svc      *InsightService
	store    store.Store
	logger   *zap.Logger
	schedule string
	workers  int

	mu   sync.Mutex
	cron *cron.Cron
}

// NewTrainer creates a Trainer that runs on a standard five-field cron
// schedule, in UTC.
func NewTrainer(svc *InsightService, s store.Store, schedule string, logger *zap.Logger) (*Trainer, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, finance.InvalidParameter("schedule", schedule, err.Error())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{
		svc:      svc,
		store:    s,
		logger:   logger.Named("trainer"),
		schedule: schedule,
		workers:  max(1, runtime.GOMAXPROCS(0)/2),
	}, nil
}

// TrainSummary counts the outcome of one run.
type TrainSummary struct {
	Users    int           `json:"users"`
	Trained  int           `json:"trained"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// RunOnce retrains every user with stored records. Per-user failures are
// logged and counted; only a failure to enumerate users is returned.
func (t *Trainer) RunOnce(ctx context.Context) (*TrainSummary, error) {
	start := time.Now()
	users, err := t.store.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	var (
		mu      sync.Mutex
		summary = &TrainSummary{Users: len(users)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)
	for _, userID := range users {
		g.Go(func() error {
			report, err := t.svc.TrainUser(gctx, userID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil && errors.Is(err, context.Canceled):
				return err
			case err != nil:
				summary.Failed++
				t.logger.Error("failed to train user", zap.String("user_id", userID), zap.Error(err))
			case len(report.Models) == 0:
				summary.Skipped++
				t.logger.Debug("not enough history to train", zap.String("user_id", userID))
			default:
				summary.Trained++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	summary.Duration = time.Since(start)

	t.logger.Info("training run completed",
		zap.Int("users", summary.Users),
		zap.Int("trained", summary.Trained),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.Duration),
	)
	return summary, nil
}

// Start schedules RunOnce. Overlapping runs are skipped.
func (t *Trainer) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cron != nil {
		return errors.New("trainer already started")
	}
	logger := cronLogger{t.logger.Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(t.schedule, func() {
		if _, err := t.RunOnce(ctx); err != nil {
			t.logger.Error("training run failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule training: %w", err)
	}
	c.Start()
	t.cron = c
	t.logger.Info("trainer started", zap.String("schedule", t.schedule))
	return nil
}

// Stop halts scheduling and waits for a running job, or for ctx.
func (t *Trainer) Stop(ctx context.Context) {
	t.mu.Lock()
	c := t.cron
	t.cron = nil
	t.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger routes cron's logging into zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
