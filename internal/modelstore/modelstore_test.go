package modelstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

func put(t *testing.T, s BlobStore, name, body string) {
	t.Helper()
	require.NoError(t, s.Put(context.Background(), name, func(w io.Writer) error {
		_, err := io.WriteString(w, body)
		return err
	}))
}

func get(t *testing.T, s BlobStore, name string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, s.Get(context.Background(), name, func(r io.Reader) error {
		_, err := io.Copy(&buf, r)
		return err
	}))
	return buf.String()
}

func TestFileStoreRoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	put(t, s, ModelName("u1", "expense"), "model-a")
	put(t, s, ModelName("u1", "savings"), "model-b")
	put(t, s, ModelName("u2", "expense"), "model-c")
	assert.Equal(t, "model-a", get(t, s, "models/u1/expense.pfm"))

	names, err := s.List(ctx, "models/u1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"models/u1/expense.pfm", "models/u1/savings.pfm"}, names)

	put(t, s, ModelName("u1", "expense"), "model-a2")
	assert.Equal(t, "model-a2", get(t, s, ModelName("u1", "expense")))

	require.NoError(t, s.Delete(ctx, ModelName("u1", "expense")))
	err = s.Get(ctx, ModelName("u1", "expense"), func(io.Reader) error { return nil })
	assert.ErrorIs(t, err, finance.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, ModelName("u1", "expense")), finance.ErrNotFound)
}

func TestFileStoreFailedPutKeepsPrevious(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)
	put(t, s, "models/u1/expense.pfm", "good")

	boom := errors.New("encoder failed")
	err = s.Put(context.Background(), "models/u1/expense.pfm", func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "good", get(t, s, "models/u1/expense.pfm"))

	entries, err := os.ReadDir(filepath.Join(root, "models", "u1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file should be removed")
}

func TestFileStoreRejectsEscapingNames(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	for _, name := range []string{"", "/etc/passwd", "../outside"} {
		err := s.Put(context.Background(), name, func(io.Writer) error { return nil })
		assert.ErrorIs(t, err, finance.ErrInvalidParameter, name)
	}
}

var fastRetry = RetryConfig{
	MaxRetries:    3,
	InitialDelay:  time.Millisecond,
	MaxDelay:      5 * time.Millisecond,
	BackoffFactor: 2.0,
}

func TestWithRetry(t *testing.T) {
	t.Run("transient then success", func(t *testing.T) {
		attempts := 0
		got, err := WithRetry(context.Background(), fastRetry, func(ctx context.Context) (string, error) {
			attempts++
			if attempts < 3 {
				return "", finance.Storage("upload", errors.New("503"))
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, 3, attempts)
	})

	t.Run("permanent error", func(t *testing.T) {
		attempts := 0
		_, err := WithRetry(context.Background(), fastRetry, func(ctx context.Context) (int, error) {
			attempts++
			return 0, finance.NotFound("blob", "x")
		})
		assert.ErrorIs(t, err, finance.ErrNotFound)
		assert.Equal(t, 1, attempts)
	})

	t.Run("plain errors are not retried", func(t *testing.T) {
		attempts := 0
		_, err := WithRetry(context.Background(), fastRetry, func(ctx context.Context) (int, error) {
			attempts++
			return 0, errors.New("decode model: bad json")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("exhausted", func(t *testing.T) {
		attempts := 0
		_, err := WithRetry(context.Background(), fastRetry, func(ctx context.Context) (int, error) {
			attempts++
			return 0, finance.Storage("upload", errors.New("503"))
		})
		assert.Equal(t, finance.CodeStorage, finance.CodeOf(err))
		assert.Equal(t, 4, attempts)
	})

	t.Run("context cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cfg := fastRetry
		cfg.InitialDelay = time.Second
		cfg.MaxDelay = time.Second
		attempts := 0
		_, err := WithRetry(ctx, cfg, func(ctx context.Context) (int, error) {
			attempts++
			cancel()
			return 0, finance.Storage("upload", errors.New("503"))
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	})
}

// flakyStore fails the first n Puts with a retryable error.
type flakyStore struct {
	BlobStore
	failures int
}

func (f *flakyStore) Put(ctx context.Context, name string, write func(io.Writer) error) error {
	if f.failures > 0 {
		f.failures--
		return finance.Storage("upload", errors.New("unavailable"))
	}
	return f.BlobStore.Put(ctx, name, write)
}

type blob struct{ data string }

func (b *blob) Save(w io.Writer) error {
	_, err := io.WriteString(w, b.data)
	return err
}

func (b *blob) Load(r io.Reader) error {
	data, err := io.ReadAll(r)
	b.data = string(data)
	return err
}

func TestSaveLoadModel(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	store := &flakyStore{BlobStore: fs, failures: 2}
	ctx := context.Background()

	require.NoError(t, SaveModel(ctx, store, fastRetry, ModelName("u1", "expense"), &blob{data: "weights"}))
	assert.Equal(t, 0, store.failures)

	var got blob
	require.NoError(t, LoadModel(ctx, store, fastRetry, ModelName("u1", "expense"), &got))
	assert.Equal(t, "weights", got.data)

	err = LoadModel(ctx, store, fastRetry, ModelName("u9", "expense"), &got)
	assert.ErrorIs(t, err, finance.ErrNotFound)
}
