package store

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
	"github.com/castlemilk/pfinance/analytics/internal/health"
)

//go:generate mockgen -source=store.go -destination=store_mock.go -package=store

// Store defines the persistence operations used by the insight service.
// Missing entities are reported as finance.ErrNotFound.
type Store interface {
	// Transaction operations
	CreateTransactions(ctx context.Context, txns []finance.Transaction) error
	ListTransactions(ctx context.Context, userID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]finance.Transaction, string, error)

	// Monthly record operations
	UpsertMonthlyRecords(ctx context.Context, records []finance.MonthlyRecord) error
	ListMonthlyRecords(ctx context.Context, userID string) ([]finance.MonthlyRecord, error)
	ListUserIDs(ctx context.Context) ([]string, error)

	// Goal operations
	CreateGoal(ctx context.Context, goal *finance.Goal) error
	GetGoal(ctx context.Context, goalID string) (*finance.Goal, error)
	UpdateGoal(ctx context.Context, goal *finance.Goal) error
	DeleteGoal(ctx context.Context, goalID string) error
	ListGoals(ctx context.Context, userID string, status finance.GoalStatus) ([]finance.Goal, error)

	// Health snapshot operations
	CreateHealthSnapshot(ctx context.Context, snapshot *health.Result) error
	ListHealthSnapshots(ctx context.Context, userID string, limit int) ([]health.Result, error)
}

// DefaultPageSize is used when callers pass a non-positive page size.
const DefaultPageSize = 100

// EncodePageToken encodes a document ID into a page token.
func EncodePageToken(docID string) string {
	if docID == "" {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(docID))
}

// DecodePageToken decodes a page token back to a document ID.
func DecodePageToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// recordID is the document key of a user's record for one period.
func recordID(userID string, p finance.Period) string {
	return userID + "_" + p.String()
}

func inRange(t time.Time, start, end *time.Time) bool {
	if start != nil && t.Before(*start) {
		return false
	}
	if end != nil && !t.Before(*end) {
		return false
	}
	return true
}
