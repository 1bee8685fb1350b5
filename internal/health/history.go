package health

import (
	"slices"
	"sync"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// History is an append-only, per-user log of score snapshots ordered by
// calculation time. It is safe for concurrent use.
type History struct {
	mu        sync.RWMutex
	snapshots map[string][]Result
}

// NewHistory returns an empty History.
func NewHistory() *History {
	return &History{snapshots: make(map[string][]Result)}
}

// Append records a snapshot. Snapshots must arrive in calculation order and
// IDs are never reused.
func (h *History) Append(r Result) error {
	if r.UserID == "" {
		return finance.InvalidParameter("user_id", r.UserID, "snapshot has no user")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.snapshots[r.UserID]
	if n := len(list); n > 0 && r.CalculatedAt.Before(list[n-1].CalculatedAt) {
		return finance.InvalidParameter("calculated_at", r.CalculatedAt, "snapshot is older than the latest one")
	}
	for _, s := range list {
		if s.ID == r.ID {
			return finance.InvalidParameter("id", r.ID, "snapshot already recorded")
		}
	}
	h.snapshots[r.UserID] = append(list, clone(r))
	return nil
}

// List returns a user's snapshots, oldest first. When limit > 0 only the
// newest limit snapshots are returned.
func (h *History) List(userID string, limit int) []Result {
	h.mu.RLock()
	defer h.mu.RUnlock()
	list := h.snapshots[userID]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([]Result, len(list))
	for i, r := range list {
		out[i] = clone(r)
	}
	return out
}

// Latest returns the newest snapshot for a user.
func (h *History) Latest(userID string) (Result, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	list := h.snapshots[userID]
	if len(list) == 0 {
		return Result{}, false
	}
	return clone(list[len(list)-1]), true
}

// Trend returns the score change between a user's two newest snapshots.
func (h *History) Trend(userID string) (int, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	list := h.snapshots[userID]
	if len(list) < 2 {
		return 0, false
	}
	return list[len(list)-1].Score - list[len(list)-2].Score, true
}

// clone deep-copies a snapshot so callers cannot mutate stored history.
func clone(r Result) Result {
	r.Components = slices.Clone(r.Components)
	for i, c := range r.Components {
		if c.Details != nil {
			d := make(map[string]float64, len(c.Details))
			for k, v := range c.Details {
				d[k] = v
			}
			r.Components[i].Details = d
		}
	}
	r.Recommendations = slices.Clone(r.Recommendations)
	return r
}
