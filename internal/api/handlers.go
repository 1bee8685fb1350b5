package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/castlemilk/pfinance/analytics/internal/auth"
	"github.com/castlemilk/pfinance/analytics/internal/finance"
	"github.com/castlemilk/pfinance/analytics/internal/report"
)

// ============================================================================
// Ingest and training
// ============================================================================

type ingestRequest struct {
	Transactions []finance.Transaction `json:"transactions"`
}


func (s *Server) ingestTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	var req ingestRequest
	if err := decode(w, r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.IngestTransactions(r.Context(), userID, req.Transactions)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) trainUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	rep, err := s.svc.TrainUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) trainAll(w http.ResponseWriter, r *http.Request) {
	if err := auth.RequireService(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.trainer == nil {
		auth.WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "trainer is not configured")
		return
	}
	summary, err := s.trainer.RunOnce(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ============================================================================
// Forecasts
// ============================================================================

func (s *Server) forecastExpenses(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	confidence, err := queryFloat(r, "confidence")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.svc.ForecastExpenses(r.Context(), userID, confidence)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) forecastCategories(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	confidence, err := queryFloat(r, "confidence")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.ForecastCategories(r.Context(), userID, confidence)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) forecastSavings(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	periods, err := queryInts(r, "periods")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	confidence, err := queryFloat(r, "confidence")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.svc.ForecastSavings(r.Context(), userID, periods, confidence)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) advancedForecast(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	horizon, err := queryInt(r, "horizon")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	confidence, err := queryFloat(r, "confidence")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.AdvancedForecast(r.Context(), userID, r.URL.Query().Get("column"), horizon, confidence)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// evaluateModels returns JSON, or a text table with format=text.
func (s *Server) evaluateModels(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	splits, err := queryInt(r, "splits")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	evals, err := s.svc.EvaluateModels(r.Context(), userID, splits)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := report.WriteEvaluation(w, evals); err != nil {
			s.logger.Warn("failed to write evaluation report", zap.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, evals)
}

// ============================================================================
// Health and savings
// ============================================================================

func (s *Server) healthScore(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	req, err := healthRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := decode(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.HealthScore(r.Context(), userID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) healthHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	trend, err := s.svc.HealthHistory(r.Context(), userID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

func (s *Server) savingsHealth(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	a, err := s.svc.SavingsHealth(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ============================================================================
// Budget and recommendations
// ============================================================================

func (s *Server) budget(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	out, err := s.svc.Budget(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type alertsRequest struct {
	Limits map[string]float64 `json:"limits"`
}

// alerts uses the limits in a POST body, or the recommended budget.
func (s *Server) alerts(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	var req alertsRequest
	if r.Method == http.MethodPost {
		if err := decode(w, r, &req, false); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	alerts, err := s.svc.Alerts(r.Context(), userID, req.Limits)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) optimizeSavings(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	target, err := queryFloat(r, "target")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.OptimizeSavings(r.Context(), userID, target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) spendingPatterns(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	months, err := queryInt(r, "months")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.SpendingPatterns(r.Context(), userID, months)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) recommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	months, err := queryInt(r, "months")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.Recommendations(r.Context(), userID, months)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ============================================================================
// Goals
// ============================================================================

func (s *Server) listGoals(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	status := finance.GoalStatus(r.URL.Query().Get("status"))
	out, err := s.svc.ListGoals(r.Context(), userID, status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if out == nil {
		out = []finance.Goal{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	var g finance.Goal
	if err := decode(w, r, &g, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.CreateGoal(r.Context(), userID, &g); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) deleteGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	if err := s.svc.DeleteGoal(r.Context(), userID, r.PathValue("goalID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) planGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	plan, err := s.svc.PlanGoal(r.Context(), userID, r.PathValue("goalID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

type timelineRequest struct {
	TargetAmount   float64 `json:"target_amount"`
	CurrentSavings float64 `json:"current_savings"`
	MonthlySavings float64 `json:"monthly_savings"`
}

func (s *Server) goalTimeline(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireAuth(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	var req timelineRequest
	if err := decode(w, r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.svc.GoalTimeline(req.TargetAmount, req.CurrentSavings, req.MonthlySavings)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ============================================================================
// Insights
// ============================================================================

func (s *Server) insights(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	req, err := healthRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.Insights(r.Context(), userID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}
	req, err := healthRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.Insights(r.Context(), userID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Last-Modified", out.GeneratedAt.UTC().Format(http.TimeFormat))
	if err := report.WriteInsights(w, out); err != nil {
		s.logger.Warn("failed to write insights report", zap.String("user_id", userID), zap.Error(err))
	}
}
