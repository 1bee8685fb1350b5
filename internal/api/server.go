// Package api exposes the insight service over HTTP/JSON.
package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/castlemilk/pfinance/analytics/internal/auth"
	"github.com/castlemilk/pfinance/analytics/internal/finance"
	"github.com/castlemilk/pfinance/analytics/internal/service"
)

// maxBodyBytes bounds request bodies; a year of transactions fits easily.
const maxBodyBytes = 8 << 20

// Server routes HTTP requests to an InsightService.
type Server struct {
	svc     *service.InsightService
	trainer *service.Trainer
	logger  *zap.Logger
}

// NewServer creates a Server. trainer may be nil, in which case the admin
// training endpoint reports itself unavailable.
func NewServer(svc *service.InsightService, trainer *service.Trainer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{svc: svc, trainer: trainer, logger: logger.Named("api")}
}

// Handler returns the routed handler wrapped in recovery, request logging
// and then mws, in that order.
func (s *Server) Handler(mws ...auth.Middleware) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("POST /v1/users/{userID}/transactions", s.ingestTransactions)
	mux.HandleFunc("POST /v1/users/{userID}/train", s.trainUser)

	mux.HandleFunc("GET /v1/users/{userID}/forecasts/expenses", s.forecastExpenses)
	mux.HandleFunc("GET /v1/users/{userID}/forecasts/categories", s.forecastCategories)
	mux.HandleFunc("GET /v1/users/{userID}/forecasts/savings", s.forecastSavings)
	mux.HandleFunc("GET /v1/users/{userID}/forecasts/advanced", s.advancedForecast)
	mux.HandleFunc("GET /v1/users/{userID}/models/evaluation", s.evaluateModels)

	mux.HandleFunc("POST /v1/users/{userID}/health", s.healthScore)
	mux.HandleFunc("GET /v1/users/{userID}/health/history", s.healthHistory)
	mux.HandleFunc("GET /v1/users/{userID}/savings/health", s.savingsHealth)

	mux.HandleFunc("GET /v1/users/{userID}/budget", s.budget)
	mux.HandleFunc("GET /v1/users/{userID}/budget/alerts", s.alerts)
	mux.HandleFunc("POST /v1/users/{userID}/budget/alerts", s.alerts)
	mux.HandleFunc("GET /v1/users/{userID}/budget/optimize", s.optimizeSavings)
	mux.HandleFunc("GET /v1/users/{userID}/spending", s.spendingPatterns)
	mux.HandleFunc("GET /v1/users/{userID}/recommendations", s.recommendations)

	mux.HandleFunc("GET /v1/users/{userID}/goals", s.listGoals)
	mux.HandleFunc("POST /v1/users/{userID}/goals", s.createGoal)
	mux.HandleFunc("DELETE /v1/users/{userID}/goals/{goalID}", s.deleteGoal)
	mux.HandleFunc("GET /v1/users/{userID}/goals/{goalID}/plan", s.planGoal)
	mux.HandleFunc("POST /v1/goals/timeline", s.goalTimeline)

	mux.HandleFunc("GET /v1/users/{userID}/insights", s.insights)
	mux.HandleFunc("GET /v1/users/{userID}/report", s.report)

	mux.HandleFunc("POST /v1/admin/train", s.trainAll)

	chain := append([]auth.Middleware{recoverer(s.logger), requestLogger(s.logger)}, mws...)
	return auth.Chain(mux, chain...)
}

// user authorises access to the path's user and returns its ID.
func (s *Server) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.PathValue("userID")
	if _, err := auth.RequireUserAccess(r.Context(), userID); err != nil {
		s.writeError(w, r, err)
		return "", false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v. An empty body leaves v untouched unless
// required.
func decode(w http.ResponseWriter, r *http.Request, v any, required bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && !required:
		return nil
	case errors.Is(err, io.EOF):
		return finance.InvalidParameter("body", "", "request body is required")
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return finance.InvalidParameter("body", tooLarge.Limit, "request body too large")
	}
	return finance.InvalidParameter("body", "", err.Error())
}

func queryFloat(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, finance.InvalidParameter(name, raw, "must be a number")
	}
	return v, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, finance.InvalidParameter(name, raw, "must be an integer")
	}
	return v, nil
}

// queryInts parses a comma-separated list such as periods=3,6,12.
func queryInts(r *http.Request, name string) ([]int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, finance.InvalidParameter(name, raw, "must be a comma-separated list of integers")
		}
		out = append(out, v)
	}
	return out, nil
}

// healthRequest reads the balances used by health scoring from the query.
func healthRequest(r *http.Request) (service.HealthRequest, error) {
	var req service.HealthRequest
	var err error
	if req.EmergencySavings, err = queryFloat(r, "emergency_savings"); err != nil {
		return req, err
	}
	if req.MonthlyDebtPayment, err = queryFloat(r, "monthly_debt_payment"); err != nil {
		return req, err
	}
	return req, nil
}
