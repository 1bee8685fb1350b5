package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
	"github.com/castlemilk/pfinance/analytics/internal/health"
)

// Collection names.
const (
	colTransactions = "transactions"
	colRecords      = "monthlyRecords"
	colGoals        = "goals"
	colSnapshots    = "healthScores"
)

// Firestore caps a write batch at 500 operations.
const maxBatch = 500

// FirestoreStore implements the Store interface using Firestore
type FirestoreStore struct {
	client *firestore.Client
}

var _ Store = (*FirestoreStore)(nil)

// NewFirestoreStore creates a new Firestore-backed store
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{
		client: client,
	}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// applyDateAwarePagination orders by date then document ID. Firestore requires
// the inequality field first, so the cursor carries both values.
func (s *FirestoreStore) applyDateAwarePagination(ctx context.Context, query firestore.Query, pageSize int32, pageToken string) (firestore.Query, error) {
	query = query.OrderBy("date", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)

	if pageToken != "" {
		docID, err := DecodePageToken(pageToken)
		if err != nil {
			return query, finance.InvalidParameter("page_token", pageToken, err.Error())
		}
		cursorDoc, err := s.client.Collection(colTransactions).Doc(docID).Get(ctx)
		if err != nil {
			return query, finance.Storage("fetch cursor document", err)
		}
		query = query.StartAfter(cursorDoc.Data()["date"], docID)
	}

	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return query.Limit(int(pageSize) + 1), nil
}

// commit writes docs in batches of at most maxBatch.
func (s *FirestoreStore) commit(ctx context.Context, op string, n int, set func(b *firestore.WriteBatch, i int)) error {
	for i := 0; i < n; i += maxBatch {
		end := i + maxBatch
		if end > n {
			end = n
		}
		batch := s.client.Batch()
		for j := i; j < end; j++ {
			set(batch, j)
		}
		if _, err := batch.Commit(ctx); err != nil {
			return finance.Storage(op, err)
		}
	}
	return nil
}

// Transaction operations

func (s *FirestoreStore) CreateTransactions(ctx context.Context, txns []finance.Transaction) error {
	for i := range txns {
		if txns[i].UserID == "" {
			return finance.InvalidParameter("user_id", txns[i].UserID, "transaction has no user")
		}
		if txns[i].ID == "" {
			txns[i].ID = uuid.New().String()
		}
	}
	col := s.client.Collection(colTransactions)
	return s.commit(ctx, "create transactions", len(txns), func(b *firestore.WriteBatch, i int) {
		b.Set(col.Doc(txns[i].ID), txns[i])
	})
}

func (s *FirestoreStore) ListTransactions(ctx context.Context, userID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]finance.Transaction, string, error) {
	query := s.client.Collection(colTransactions).Where("userId", "==", userID)
	if startDate != nil {
		query = query.Where("date", ">=", *startDate)
	}
	if endDate != nil {
		query = query.Where("date", "<", *endDate)
	}
	query, err := s.applyDateAwarePagination(ctx, query, pageSize, pageToken)
	if err != nil {
		return nil, "", err
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, "", finance.Storage("list transactions", err)
	}

	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	var next string
	if len(docs) > int(pageSize) {
		docs = docs[:pageSize]
		next = EncodePageToken(docs[pageSize-1].Ref.ID)
	}

	out := make([]finance.Transaction, 0, len(docs))
	for _, doc := range docs {
		var t finance.Transaction
		if err := doc.DataTo(&t); err != nil {
			return nil, "", fmt.Errorf("failed to parse transaction %s: %w", doc.Ref.ID, err)
		}
		out = append(out, t)
	}
	return out, next, nil
}

// Monthly record operations

func (s *FirestoreStore) UpsertMonthlyRecords(ctx context.Context, records []finance.MonthlyRecord) error {
	for _, r := range records {
		if r.UserID == "" {
			return finance.InvalidParameter("user_id", r.UserID, "record has no user")
		}
	}
	col := s.client.Collection(colRecords)
	return s.commit(ctx, "upsert monthly records", len(records), func(b *firestore.WriteBatch, i int) {
		r := records[i]
		b.Set(col.Doc(recordID(r.UserID, r.Period)), r)
	})
}

func (s *FirestoreStore) ListMonthlyRecords(ctx context.Context, userID string) ([]finance.MonthlyRecord, error) {
	docs, err := s.client.Collection(colRecords).Where("userId", "==", userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, finance.Storage("list monthly records", err)
	}
	out := make([]finance.MonthlyRecord, 0, len(docs))
	for _, doc := range docs {
		var r finance.MonthlyRecord
		if err := doc.DataTo(&r); err != nil {
			return nil, fmt.Errorf("failed to parse record %s: %w", doc.Ref.ID, err)
		}
		out = append(out, r)
	}
	finance.SortRecords(out)
	return out, nil
}

// ListUserIDs scans record owners. Only the userId field is fetched.
func (s *FirestoreStore) ListUserIDs(ctx context.Context) ([]string, error) {
	it := s.client.Collection(colRecords).Select("userId").Documents(ctx)
	defer it.Stop()

	seen := make(map[string]bool)
	var ids []string
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, finance.Storage("list users", err)
		}
		id, _ := doc.Data()["userId"].(string)
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Goal operations

func (s *FirestoreStore) CreateGoal(ctx context.Context, goal *finance.Goal) error {
	if goal.ID == "" {
		goal.ID = uuid.New().String()
	}
	if goal.Status == "" {
		goal.Status = finance.GoalActive
	}
	if _, err := s.client.Collection(colGoals).Doc(goal.ID).Create(ctx, goal); err != nil {
		return finance.Storage("create goal", err)
	}
	return nil
}

func (s *FirestoreStore) GetGoal(ctx context.Context, goalID string) (*finance.Goal, error) {
	doc, err := s.client.Collection(colGoals).Doc(goalID).Get(ctx)
	if isNotFound(err) {
		return nil, finance.NotFound("goal", goalID)
	}
	if err != nil {
		return nil, finance.Storage("get goal", err)
	}
	var g finance.Goal
	if err := doc.DataTo(&g); err != nil {
		return nil, fmt.Errorf("failed to parse goal: %w", err)
	}
	return &g, nil
}

func (s *FirestoreStore) UpdateGoal(ctx context.Context, goal *finance.Goal) error {
	ref := s.client.Collection(colGoals).Doc(goal.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Set(ref, goal)
	})
	if isNotFound(err) {
		return finance.NotFound("goal", goal.ID)
	}
	if err != nil {
		return finance.Storage("update goal", err)
	}
	return nil
}

func (s *FirestoreStore) DeleteGoal(ctx context.Context, goalID string) error {
	_, err := s.client.Collection(colGoals).Doc(goalID).Delete(ctx, firestore.Exists)
	if isNotFound(err) {
		return finance.NotFound("goal", goalID)
	}
	if err != nil {
		return finance.Storage("delete goal", err)
	}
	return nil
}

func (s *FirestoreStore) ListGoals(ctx context.Context, userID string, st finance.GoalStatus) ([]finance.Goal, error) {
	query := s.client.Collection(colGoals).Where("userId", "==", userID)
	if st != "" {
		query = query.Where("status", "==", string(st))
	}
	docs, err := query.OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, finance.Storage("list goals", err)
	}
	out := make([]finance.Goal, 0, len(docs))
	for _, doc := range docs {
		var g finance.Goal
		if err := doc.DataTo(&g); err != nil {
			return nil, fmt.Errorf("failed to parse goal %s: %w", doc.Ref.ID, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Health snapshot operations

func (s *FirestoreStore) CreateHealthSnapshot(ctx context.Context, snapshot *health.Result) error {
	if snapshot.UserID == "" {
		return finance.InvalidParameter("user_id", snapshot.UserID, "snapshot has no user")
	}
	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}
	if _, err := s.client.Collection(colSnapshots).Doc(snapshot.ID).Create(ctx, snapshot); err != nil {
		return finance.Storage("create health snapshot", err)
	}
	return nil
}

func (s *FirestoreStore) ListHealthSnapshots(ctx context.Context, userID string, limit int) ([]health.Result, error) {
	query := s.client.Collection(colSnapshots).
		Where("userId", "==", userID).
		OrderBy("calculatedAt", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}
	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, finance.Storage("list health snapshots", err)
	}
	out := make([]health.Result, len(docs))
	for i, doc := range docs {
		if err := doc.DataTo(&out[len(docs)-1-i]); err != nil {
			return nil, fmt.Errorf("failed to parse snapshot %s: %w", doc.Ref.ID, err)
		}
	}
	return out, nil
}
