package modelstore

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
	"github.com/castlemilk/pfinance/analytics/internal/predictor"
)

// RetryConfig configures retry behaviour with exponential backoff.
type RetryConfig struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	JitterFraction float64 // 0.0 to 1.0, fraction of delay to randomize
}

// DefaultRetryConfig is tuned for object-store transient errors.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     3,
	InitialDelay:   500 * time.Millisecond,
	MaxDelay:       10 * time.Second,
	BackoffFactor:  2.0,
	JitterFraction: 0.2,
}

// retryable reports whether err is a transient storage failure. Codec and
// validation errors fail the same way on every attempt.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fe *finance.Error
	return errors.As(err, &fe) && fe.IsRetryable()
}

// WithRetry executes fn with exponential backoff and jitter. Only retryable
// *finance.Error failures are attempted again; retries also stop when the
// context is cancelled or attempts run out.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var lastErr error
	var zero T

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(err) {
			return zero, err
		}
		if attempt >= cfg.MaxRetries {
			break
		}

		delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt))
		if delay > float64(cfg.MaxDelay) {
			delay = float64(cfg.MaxDelay)
		}
		if cfg.JitterFraction > 0 {
			delay += delay * cfg.JitterFraction * (rand.Float64()*2 - 1)
			if delay < 0 {
				delay = float64(cfg.InitialDelay)
			}
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(time.Duration(delay)):
		}
	}

	return zero, lastErr
}

// SaveModel persists p under name, retrying transient failures.
func SaveModel(ctx context.Context, store BlobStore, cfg RetryConfig, name string, p predictor.Persistable) error {
	_, err := WithRetry(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, store.Put(ctx, name, func(w io.Writer) error { return p.Save(w) })
	})
	return err
}

// LoadModel restores p from name, retrying transient failures.
func LoadModel(ctx context.Context, store BlobStore, cfg RetryConfig, name string, p predictor.Persistable) error {
	_, err := WithRetry(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, store.Get(ctx, name, func(r io.Reader) error { return p.Load(r) })
	})
	return err
}
