// Package service orchestrates the analytics packages over stored user data.
// It loads records, transactions and goals from a store.Store, keeps trained
// forecasters per user (loading them from, or saving them to, a model blob
// store), and memoises model-backed results in a content-addressed cache.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/castlemilk/pfinance/analytics/internal/cache"
	"github.com/castlemilk/pfinance/analytics/internal/finance"
	"github.com/castlemilk/pfinance/analytics/internal/forecast"
	"github.com/castlemilk/pfinance/analytics/internal/modelstore"
	"github.com/castlemilk/pfinance/analytics/internal/predictor"
	"github.com/castlemilk/pfinance/analytics/internal/store"
)

// transactionLookback bounds how far back raw transactions are loaded for
// budget and recommendation analysis.
const transactionLookback = 365 * 24 * time.Hour

// listPageSize is the page size used when draining transaction listings.
const listPageSize = 500

// Options tunes an InsightService.
type Options struct {
	Predictor          predictor.Config
	Confidence         float64
	Horizon            int
	OverspendThreshold float64
	SafetyMargin       float64
	CacheTTL           time.Duration
	Retry              modelstore.RetryConfig
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Predictor:          predictor.DefaultConfig(),
		Confidence:         forecast.DefaultConfidence,
		Horizon:            6,
		OverspendThreshold: forecast.DefaultOverspendThreshold,
		SafetyMargin:       0.1,
		CacheTTL:           15 * time.Minute,
		Retry:              modelstore.DefaultRetryConfig,
	}
}

// liveForecaster is what the service needs from a trained forecaster.
type liveForecaster interface {
	predictor.Forecaster
	Model() (*predictor.Model, error)
	Evaluate(records []finance.MonthlyRecord) (predictor.Metrics, error)
	CrossValidate(ctx context.Context, records []finance.MonthlyRecord, nSplits int) (*predictor.CVResult, error)
}

type liveEntry struct {
	forecaster liveForecaster
	vocabulary string
}

// InsightService answers analytics queries for stored users.
type InsightService struct {
	store  store.Store
	models modelstore.BlobStore
	cache  cache.Cache
	logger *zap.Logger
	opts   Options
	now    func() time.Time

	mu    sync.RWMutex
	live  map[string]liveEntry
	train singleflight.Group
}

// NewInsightService creates a new InsightService. A nil cache disables
// memoisation and a nil logger discards logs.
func NewInsightService(s store.Store, models modelstore.BlobStore, c cache.Cache, logger *zap.Logger, opts Options) *InsightService {
	if c == nil {
		c = cache.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InsightService{
		store:  s,
		models: models,
		cache:  c,
		logger: logger,
		opts:   opts,
		now:    time.Now,
		live:   make(map[string]liveEntry),
	}
}

func (s *InsightService) confidence(c float64) float64 {
	if c == 0 {
		return s.opts.Confidence
	}
	return c
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return finance.InvalidParameter("user_id", userID, "user id is required")
	}
	return nil
}

// ============================================================================
// Data loading
// ============================================================================

// records returns the user's monthly records, rolled up from transactions
// when none have been stored.
func (s *InsightService) records(ctx context.Context, userID string) ([]finance.MonthlyRecord, error) {
	recs, err := s.store.ListMonthlyRecords(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list monthly records: %w", err)
	}
	if len(recs) > 0 {
		return recs, nil
	}
	txns, err := s.transactions(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	return finance.AggregateMonthly(txns), nil
}

// transactions drains every page of the user's transactions dated at or
// after since (all of them when since is nil).
func (s *InsightService) transactions(ctx context.Context, userID string, since *time.Time) ([]finance.Transaction, error) {
	var out []finance.Transaction
	pageToken := ""
	for {
		page, next, err := s.store.ListTransactions(ctx, userID, since, nil, listPageSize, pageToken)
		if err != nil {
			return nil, fmt.Errorf("failed to list transactions: %w", err)
		}
		out = append(out, page...)
		if next == "" {
			return out, nil
		}
		pageToken = next
	}
}

func (s *InsightService) recentTransactions(ctx context.Context, userID string) ([]finance.Transaction, error) {
	since := s.now().Add(-transactionLookback)
	return s.transactions(ctx, userID, &since)
}

func (s *InsightService) activeGoals(ctx context.Context, userID string) ([]finance.Goal, error) {
	goals, err := s.store.ListGoals(ctx, userID, finance.GoalActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	return goals, nil
}

// vocabulary returns the categories seen in records, sorted, or the default
// vocabulary when records carry none.
func vocabulary(records []finance.MonthlyRecord) []string {
	seen := make(map[string]bool)
	for _, r := range records {
		for c := range r.Categories {
			switch c {
			case "", finance.ColumnIncome, finance.ColumnExpense, finance.ColumnSavings:
				continue
			}
			seen[c] = true
		}
	}
	if len(seen) == 0 {
		return slices.Clone(finance.DefaultCategories)
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ============================================================================
// Ingestion
// ============================================================================

// IngestResult counts what one ingest call wrote.
type IngestResult struct {
	Ingested int `json:"ingested"`
	Months   int `json:"months"`
}

// IngestTransactions stores txns for userID and refreshes the user's monthly
// records. Stored models are left alone; the trainer refits them.
func (s *InsightService) IngestTransactions(ctx context.Context, userID string, txns []finance.Transaction) (*IngestResult, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	for i := range txns {
		if txns[i].UserID == "" {
			txns[i].UserID = userID
		}
		if txns[i].UserID != userID {
			return nil, finance.InvalidParameter("user_id", txns[i].UserID, "transaction belongs to another user")
		}
		if txns[i].Date.IsZero() {
			return nil, finance.InvalidParameter("date", txns[i].ID, "transaction has no date")
		}
	}
	if len(txns) > 0 {
		if err := s.store.CreateTransactions(ctx, txns); err != nil {
			return nil, fmt.Errorf("failed to create transactions: %w", err)
		}
	}

	all, err := s.transactions(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	records := finance.AggregateMonthly(all)
	for i := range records {
		records[i].UserID = userID
	}
	if err := s.store.UpsertMonthlyRecords(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to upsert monthly records: %w", err)
	}
	s.logger.Info("ingested transactions",
		zap.String("user_id", userID),
		zap.Int("count", len(txns)),
		zap.Int("months", len(records)),
	)
	return &IngestResult{Ingested: len(txns), Months: len(records)}, nil
}

// ============================================================================
// Forecaster lifecycle
// ============================================================================

func (s *InsightService) newForecaster(kind string, vocab []string) (liveForecaster, error) {
	switch kind {
	case forecast.KindExpense:
		return forecast.NewExpenseForecaster(s.opts.Predictor), nil
	case forecast.KindSavings:
		return forecast.NewSavingsForecaster(s.opts.Predictor), nil
	case forecast.KindCategory:
		return forecast.NewCategoryPredictor(s.opts.Predictor, vocab)
	default:
		return nil, finance.InvalidParameter("kind", kind, "unknown forecaster")
	}
}

// forecaster returns the user's live forecaster of kind. The first call loads
// the stored model; when there is none, or it no longer matches the user's
// category vocabulary, a new one is trained on records and saved.
func (s *InsightService) forecaster(ctx context.Context, userID, kind string, records []finance.MonthlyRecord) (liveForecaster, error) {
	var vocab []string
	if kind == forecast.KindCategory {
		vocab = vocabulary(records)
	}
	vocabKey := strings.Join(vocab, "\x00")
	name := modelstore.ModelName(userID, kind)

	s.mu.RLock()
	entry, ok := s.live[name]
	s.mu.RUnlock()
	if ok && entry.vocabulary == vocabKey {
		return entry.forecaster, nil
	}

	v, err, _ := s.train.Do(name+"\x00"+vocabKey, func() (any, error) {
		f, err := s.newForecaster(kind, vocab)
		if err != nil {
			return nil, err
		}
		loadErr := modelstore.LoadModel(ctx, s.models, s.opts.Retry, name, f)
		switch {
		case loadErr == nil:
			s.logger.Debug("loaded model", zap.String("user_id", userID), zap.String("kind", kind))
		case errors.Is(loadErr, finance.ErrNotFound), errors.Is(loadErr, finance.ErrSchemaMismatch):
			if err := s.fit(ctx, userID, f, records); err != nil {
				return nil, err
			}
		default:
			s.logger.Warn("failed to load model, retraining",
				zap.String("user_id", userID),
				zap.String("kind", kind),
				zap.Error(loadErr),
			)
			if err := s.fit(ctx, userID, f, records); err != nil {
				return nil, err
			}
		}
		s.mu.Lock()
		s.live[name] = liveEntry{forecaster: f, vocabulary: vocabKey}
		s.mu.Unlock()
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(liveForecaster), nil
}

// fit trains f on records and saves it. A failed save is logged; the trained
// model still serves this process.
func (s *InsightService) fit(ctx context.Context, userID string, f liveForecaster, records []finance.MonthlyRecord) error {
	start := time.Now()
	if err := f.Train(ctx, records); err != nil {
		return err
	}
	name := modelstore.ModelName(userID, f.Kind())
	if err := modelstore.SaveModel(ctx, s.models, s.opts.Retry, name, f); err != nil {
		s.logger.Error("failed to save model",
			zap.String("user_id", userID),
			zap.String("kind", f.Kind()),
			zap.Error(err),
		)
	}
	s.logger.Info("trained model",
		zap.String("user_id", userID),
		zap.String("kind", f.Kind()),
		zap.Int("months", len(records)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// TrainReport summarises one user's retraining.
type TrainReport struct {
	UserID  string            `json:"user_id"`
	Models  map[string]string `json:"models"`
	Skipped map[string]string `json:"skipped,omitempty"`
}

// TrainUser refits every forecaster for userID from its stored records and
// replaces the live and stored models. Kinds without enough history are
// reported as skipped.
func (s *InsightService) TrainUser(ctx context.Context, userID string) (*TrainReport, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	records, err := s.records(ctx, userID)
	if err != nil {
		return nil, err
	}
	report := &TrainReport{UserID: userID, Models: map[string]string{}}
	vocab := vocabulary(records)
	for _, kind := range []string{forecast.KindExpense, forecast.KindCategory, forecast.KindSavings} {
		f, err := s.newForecaster(kind, vocab)
		if err != nil {
			return nil, err
		}
		if err := s.fit(ctx, userID, f, records); err != nil {
			if errors.Is(err, finance.ErrInsufficientHistory) {
				if report.Skipped == nil {
					report.Skipped = map[string]string{}
				}
				report.Skipped[kind] = err.Error()
				continue
			}
			return nil, fmt.Errorf("train %s for %s: %w", kind, userID, err)
		}
		m, _ := f.Model()
		report.Models[kind] = m.ID()

		key := ""
		if kind == forecast.KindCategory {
			key = strings.Join(vocab, "\x00")
		}
		s.mu.Lock()
		s.live[modelstore.ModelName(userID, kind)] = liveEntry{forecaster: f, vocabulary: key}
		s.mu.Unlock()
	}
	return report, nil
}

// ============================================================================
// Result cache
// ============================================================================

// cached returns the memoised result for (kind, version, inputs) or computes
// and stores it. Cache faults never fail the call.
func cached[T any](s *InsightService, kind, version string, compute func() (T, error), inputs ...any) (T, error) {
	key, err := cache.Key(kind, version, inputs...)
	if err != nil {
		s.logger.Warn("failed to derive cache key", zap.String("kind", kind), zap.Error(err))
		return compute()
	}
	if b, ok := s.cache.Get(key); ok {
		var out T
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		s.cache.Delete(key)
	}
	out, err := compute()
	if err != nil {
		return out, err
	}
	if b, err := json.Marshal(out); err == nil {
		s.cache.Set(key, b, s.opts.CacheTTL)
	}
	return out, nil
}
