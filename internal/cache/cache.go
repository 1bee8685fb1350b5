// Package cache memoises computed insight payloads under content-hash keys.
package cache

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto"
	"github.com/goccy/go-json"
)

// Cache stores encoded results by key.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) bool
	Delete(key string)
	Close()
}

// Key derives a cache key from a result kind, the model version that produced
// it, and the inputs it was computed from. Identical inputs always map to the
// same key.
func Key(kind, version string, inputs ...any) (string, error) {
	d := xxhash.New()
	for _, in := range inputs {
		b, err := json.Marshal(in)
		if err != nil {
			return "", fmt.Errorf("hash %s input: %w", kind, err)
		}
		_, _ = d.Write(b)
		_, _ = d.Write([]byte{0})
	}
	return fmt.Sprintf("%s:%s:%016x", kind, version, d.Sum64()), nil
}

// Ristretto is a size-bounded in-process Cache.
type Ristretto struct {
	c *ristretto.Cache
}

var _ Cache = (*Ristretto)(nil)

// NewRistretto returns a cache holding roughly maxBytes of values.
func NewRistretto(maxBytes int64) (*Ristretto, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxBytes)
	}
	// Counters are sized for ~1KiB average payloads.
	counters := maxBytes / 1024 * 10
	if counters < 1000 {
		counters = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: counters,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Ristretto{c: c}, nil
}

func (r *Ristretto) Get(key string) ([]byte, bool) {
	v, ok := r.c.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// Set stores value and waits for the write to become visible. It reports
// false when the admission policy rejects the entry.
func (r *Ristretto) Set(key string, value []byte, ttl time.Duration) bool {
	ok := r.c.SetWithTTL(key, value, int64(len(value)), ttl)
	r.c.Wait()
	return ok
}

func (r *Ristretto) Delete(key string) {
	r.c.Del(key)
}

func (r *Ristretto) Close() {
	r.c.Close()
}

// Noop never stores anything.
type Noop struct{}

var _ Cache = Noop{}

func (Noop) Get(string) ([]byte, bool) { return nil, false }

func (Noop) Set(string, []byte, time.Duration) bool { return false }

func (Noop) Delete(string) {}

func (Noop) Close() {}
