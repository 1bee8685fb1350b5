package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
	"github.com/castlemilk/pfinance/analytics/internal/health"
)

//go:embed schema.sql
var schema string

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// PostgresStore implements the Store interface on PostgreSQL.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPool connects to dsn and verifies the connection.
func NewPool(ctx context.Context, dsn string, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established",
		zap.String("host", poolConfig.ConnConfig.Host),
		zap.String("database", poolConfig.ConnConfig.Database),
	)
	return pool, nil
}

// NewPostgresStore wraps a pool.
func NewPostgresStore(db *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return finance.Storage("migrate schema", err)
	}
	s.logger.Info("Database schema is up to date")
	return nil
}

func (s *PostgresStore) exec(ctx context.Context, op string, q squirrel.Sqlizer) (int64, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s query: %w", op, err)
	}
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, finance.Storage(op, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) query(ctx context.Context, op string, q squirrel.Sqlizer) (pgx.Rows, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", op, err)
	}
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, finance.Storage(op, err)
	}
	return rows, nil
}

// Transaction operations

var transactionColumns = []string{"id", "user_id", "date", "type", "category", "payee", "description", "amount"}

func (s *PostgresStore) CreateTransactions(ctx context.Context, txns []finance.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	builder := psql.Insert("transactions").Columns(transactionColumns...)
	for i := range txns {
		t := &txns[i]
		if t.UserID == "" {
			return finance.InvalidParameter("user_id", t.UserID, "transaction has no user")
		}
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		builder = builder.Values(t.ID, t.UserID, t.Date, string(t.Type), t.Category, t.Payee, t.Description, t.Amount)
	}
	builder = builder.Suffix("ON CONFLICT (id) DO NOTHING")
	_, err := s.exec(ctx, "create transactions", builder)
	return err
}

// transactionCursor is the keyset position encoded in page tokens.
func transactionCursor(t finance.Transaction) string {
	return t.Date.UTC().Format(time.RFC3339Nano) + "|" + t.ID
}

func parseTransactionCursor(token string) (time.Time, string, error) {
	raw, err := DecodePageToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	ts, id, ok := strings.Cut(raw, "|")
	if !ok {
		return time.Time{}, "", errors.New("malformed cursor")
	}
	d, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, "", err
	}
	return d, id, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, userID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]finance.Transaction, string, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	q := psql.Select(transactionColumns...).
		From("transactions").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("date ASC", "id ASC").
		Limit(uint64(pageSize) + 1)
	if startDate != nil {
		q = q.Where(squirrel.GtOrEq{"date": *startDate})
	}
	if endDate != nil {
		q = q.Where(squirrel.Lt{"date": *endDate})
	}
	if pageToken != "" {
		d, id, err := parseTransactionCursor(pageToken)
		if err != nil {
			return nil, "", finance.InvalidParameter("page_token", pageToken, err.Error())
		}
		q = q.Where(squirrel.Expr("(date, id) > (?, ?)", d, id))
	}

	rows, err := s.query(ctx, "list transactions", q)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var out []finance.Transaction
	for rows.Next() {
		var t finance.Transaction
		var typ string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Date, &typ, &t.Category, &t.Payee, &t.Description, &t.Amount); err != nil {
			return nil, "", finance.Storage("scan transaction", err)
		}
		t.Type = finance.TransactionType(typ)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, "", finance.Storage("list transactions", err)
	}

	var next string
	if len(out) > int(pageSize) {
		out = out[:pageSize]
		next = EncodePageToken(transactionCursor(out[pageSize-1]))
	}
	return out, next, nil
}

// Monthly record operations

func (s *PostgresStore) UpsertMonthlyRecords(ctx context.Context, records []finance.MonthlyRecord) error {
	if len(records) == 0 {
		return nil
	}
	builder := psql.Insert("monthly_records").
		Columns("user_id", "year", "month", "total_income", "total_expense", "savings", "categories")
	for _, r := range records {
		if r.UserID == "" {
			return finance.InvalidParameter("user_id", r.UserID, "record has no user")
		}
		cats := r.Categories
		if cats == nil {
			cats = map[string]float64{}
		}
		b, err := json.Marshal(cats)
		if err != nil {
			return fmt.Errorf("encode categories: %w", err)
		}
		builder = builder.Values(r.UserID, r.Period.Year, int(r.Period.Month), r.TotalIncome, r.TotalExpense, r.Savings, string(b))
	}
	builder = builder.Suffix(`ON CONFLICT (user_id, year, month) DO UPDATE SET
		total_income = EXCLUDED.total_income,
		total_expense = EXCLUDED.total_expense,
		savings = EXCLUDED.savings,
		categories = EXCLUDED.categories`)
	_, err := s.exec(ctx, "upsert monthly records", builder)
	return err
}

func (s *PostgresStore) ListMonthlyRecords(ctx context.Context, userID string) ([]finance.MonthlyRecord, error) {
	q := psql.Select("user_id", "year", "month", "total_income", "total_expense", "savings", "categories").
		From("monthly_records").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("year ASC", "month ASC")
	rows, err := s.query(ctx, "list monthly records", q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []finance.MonthlyRecord
	for rows.Next() {
		var r finance.MonthlyRecord
		var month int
		var cats []byte
		if err := rows.Scan(&r.UserID, &r.Period.Year, &month, &r.TotalIncome, &r.TotalExpense, &r.Savings, &cats); err != nil {
			return nil, finance.Storage("scan monthly record", err)
		}
		r.Period.Month = time.Month(month)
		if err := json.Unmarshal(cats, &r.Categories); err != nil {
			return nil, fmt.Errorf("decode categories for %s: %w", r.Period, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, finance.Storage("list monthly records", err)
	}
	return out, nil
}

func (s *PostgresStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.query(ctx, "list users", psql.Select("DISTINCT user_id").From("monthly_records").OrderBy("user_id"))
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, finance.Storage("list users", err)
	}
	return ids, nil
}

// Goal operations

var goalColumns = []string{"id", "user_id", "name", "target_amount", "current_amount", "monthly_contribution", "start_date", "target_date", "status"}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func goalValues(g *finance.Goal) []any {
	return []any{g.ID, g.UserID, g.Name, g.TargetAmount, g.CurrentAmount, g.MonthlyContribution,
		nullableTime(g.StartDate), nullableTime(g.TargetDate), string(g.Status)}
}

func scanGoal(row pgx.Row) (finance.Goal, error) {
	var g finance.Goal
	var start, target *time.Time
	var st string
	err := row.Scan(&g.ID, &g.UserID, &g.Name, &g.TargetAmount, &g.CurrentAmount, &g.MonthlyContribution, &start, &target, &st)
	if start != nil {
		g.StartDate = *start
	}
	if target != nil {
		g.TargetDate = *target
	}
	g.Status = finance.GoalStatus(st)
	return g, err
}

func (s *PostgresStore) CreateGoal(ctx context.Context, goal *finance.Goal) error {
	if goal.ID == "" {
		goal.ID = uuid.New().String()
	}
	if goal.Status == "" {
		goal.Status = finance.GoalActive
	}
	_, err := s.exec(ctx, "create goal", psql.Insert("goals").Columns(goalColumns...).Values(goalValues(goal)...))
	return err
}

func (s *PostgresStore) GetGoal(ctx context.Context, goalID string) (*finance.Goal, error) {
	sql, args, err := psql.Select(goalColumns...).From("goals").Where(squirrel.Eq{"id": goalID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get goal query: %w", err)
	}
	g, err := scanGoal(s.db.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, finance.NotFound("goal", goalID)
	}
	if err != nil {
		return nil, finance.Storage("get goal", err)
	}
	return &g, nil
}

func (s *PostgresStore) UpdateGoal(ctx context.Context, goal *finance.Goal) error {
	v := goalValues(goal)
	q := psql.Update("goals").Where(squirrel.Eq{"id": goal.ID})
	for i, col := range goalColumns[1:] {
		q = q.Set(col, v[i+1])
	}
	n, err := s.exec(ctx, "update goal", q)
	if err != nil {
		return err
	}
	if n == 0 {
		return finance.NotFound("goal", goal.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteGoal(ctx context.Context, goalID string) error {
	n, err := s.exec(ctx, "delete goal", psql.Delete("goals").Where(squirrel.Eq{"id": goalID}))
	if err != nil {
		return err
	}
	if n == 0 {
		return finance.NotFound("goal", goalID)
	}
	return nil
}

func (s *PostgresStore) ListGoals(ctx context.Context, userID string, status finance.GoalStatus) ([]finance.Goal, error) {
	q := psql.Select(goalColumns...).From("goals").Where(squirrel.Eq{"user_id": userID}).OrderBy("id")
	if status != "" {
		q = q.Where(squirrel.Eq{"status": string(status)})
	}
	rows, err := s.query(ctx, "list goals", q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []finance.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, finance.Storage("scan goal", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, finance.Storage("list goals", err)
	}
	return out, nil
}

// Health snapshot operations

func (s *PostgresStore) CreateHealthSnapshot(ctx context.Context, snapshot *health.Result) error {
	if snapshot.UserID == "" {
		return finance.InvalidParameter("user_id", snapshot.UserID, "snapshot has no user")
	}
	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}
	components, err := json.Marshal(snapshot.Components)
	if err != nil {
		return fmt.Errorf("encode components: %w", err)
	}
	recs, err := json.Marshal(snapshot.Recommendations)
	if err != nil {
		return fmt.Errorf("encode recommendations: %w", err)
	}
	q := psql.Insert("health_snapshots").
		Columns("id", "user_id", "score", "grade", "components", "recommendations", "months_scored", "calculated_at").
		Values(snapshot.ID, snapshot.UserID, snapshot.Score, snapshot.Grade, string(components), string(recs), snapshot.MonthsScored, snapshot.CalculatedAt)
	_, err = s.exec(ctx, "create health snapshot", q)
	return err
}

func (s *PostgresStore) ListHealthSnapshots(ctx context.Context, userID string, limit int) ([]health.Result, error) {
	q := psql.Select("id", "user_id", "score", "grade", "components", "recommendations", "months_scored", "calculated_at").
		From("health_snapshots").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("calculated_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	rows, err := s.query(ctx, "list health snapshots", q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []health.Result
	for rows.Next() {
		var r health.Result
		var components, recs []byte
		if err := rows.Scan(&r.ID, &r.UserID, &r.Score, &r.Grade, &components, &recs, &r.MonthsScored, &r.CalculatedAt); err != nil {
			return nil, finance.Storage("scan health snapshot", err)
		}
		if err := json.Unmarshal(components, &r.Components); err != nil {
			return nil, fmt.Errorf("decode components: %w", err)
		}
		if err := json.Unmarshal(recs, &r.Recommendations); err != nil {
			return nil, fmt.Errorf("decode recommendations: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, finance.Storage("list health snapshots", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
