package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
	"github.com/castlemilk/pfinance/analytics/internal/health"
)

// MemoryStore implements Store interface with in-memory storage
type MemoryStore struct {
	mu sync.RWMutex

	transactions map[string]finance.Transaction
	records      map[string]finance.MonthlyRecord
	goals        map[string]finance.Goal
	snapshots    *health.History
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]finance.Transaction),
		records:      make(map[string]finance.MonthlyRecord),
		goals:        make(map[string]finance.Goal),
		snapshots:    health.NewHistory(),
	}
}

// Transaction operations

func (m *MemoryStore) CreateTransactions(ctx context.Context, txns []finance.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range txns {
		if t.UserID == "" {
			return finance.InvalidParameter("user_id", t.UserID, "transaction has no user")
		}
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		m.transactions[t.ID] = t
	}
	return nil
}

// ListTransactions returns a user's transactions ordered by date then ID.
// The date range is half-open: [startDate, endDate).
func (m *MemoryStore) ListTransactions(ctx context.Context, userID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]finance.Transaction, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []finance.Transaction
	for _, t := range m.transactions {
		if t.UserID == userID && inRange(t.Date, startDate, endDate) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})

	if pageToken != "" {
		cursor, err := DecodePageToken(pageToken)
		if err != nil {
			return nil, "", finance.InvalidParameter("page_token", pageToken, err.Error())
		}
		start := len(out)
		for i, t := range out {
			if t.ID == cursor {
				start = i + 1
				break
			}
		}
		out = out[start:]
	}

	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	var next string
	if len(out) > int(pageSize) {
		out = out[:pageSize]
		next = EncodePageToken(out[pageSize-1].ID)
	}
	return out, next, nil
}

// Monthly record operations

func (m *MemoryStore) UpsertMonthlyRecords(ctx context.Context, records []finance.MonthlyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		if r.UserID == "" {
			return finance.InvalidParameter("user_id", r.UserID, "record has no user")
		}
		cats := make(map[string]float64, len(r.Categories))
		for k, v := range r.Categories {
			cats[k] = v
		}
		r.Categories = cats
		m.records[recordID(r.UserID, r.Period)] = r
	}
	return nil
}

// ListMonthlyRecords returns a user's records ordered by period.
func (m *MemoryStore) ListMonthlyRecords(ctx context.Context, userID string) ([]finance.MonthlyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []finance.MonthlyRecord
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	finance.SortRecords(out)
	return out, nil
}

// ListUserIDs returns every user with monthly records, sorted.
func (m *MemoryStore) ListUserIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var ids []string
	for _, r := range m.records {
		if !seen[r.UserID] {
			seen[r.UserID] = true
			ids = append(ids, r.UserID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Goal operations

func (m *MemoryStore) CreateGoal(ctx context.Context, goal *finance.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if goal.ID == "" {
		goal.ID = uuid.New().String()
	}
	if goal.Status == "" {
		goal.Status = finance.GoalActive
	}
	m.goals[goal.ID] = *goal
	return nil
}

func (m *MemoryStore) GetGoal(ctx context.Context, goalID string) (*finance.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.goals[goalID]
	if !ok {
		return nil, finance.NotFound("goal", goalID)
	}
	return &g, nil
}

func (m *MemoryStore) UpdateGoal(ctx context.Context, goal *finance.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.goals[goal.ID]; !ok {
		return finance.NotFound("goal", goal.ID)
	}
	m.goals[goal.ID] = *goal
	return nil
}

func (m *MemoryStore) DeleteGoal(ctx context.Context, goalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.goals[goalID]; !ok {
		return finance.NotFound("goal", goalID)
	}
	delete(m.goals, goalID)
	return nil
}

// ListGoals returns a user's goals sorted by ID. An empty status matches all.
func (m *MemoryStore) ListGoals(ctx context.Context, userID string, status finance.GoalStatus) ([]finance.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []finance.Goal
	for _, g := range m.goals {
		if g.UserID == userID && (status == "" || g.Status == status) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Health snapshot operations

func (m *MemoryStore) CreateHealthSnapshot(ctx context.Context, snapshot *health.Result) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}
	return m.snapshots.Append(*snapshot)
}

// ListHealthSnapshots returns up to limit of the newest snapshots, oldest
// first.
func (m *MemoryStore) ListHealthSnapshots(ctx context.Context, userID string, limit int) ([]health.Result, error) {
	return m.snapshots.List(userID, limit), nil
}
