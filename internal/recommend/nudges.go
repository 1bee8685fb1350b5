package recommend

import (
	"strings"
	"time"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// Nudge kinds.
const (
	NudgePositive  = "positive_reinforcement"
	NudgeWarning   = "warning"
	NudgeMilestone = "milestone"
	NudgeReminder  = "goal_reminder"
)

// Sentiments.
const (
	SentimentPositive = "positive"
	SentimentWarning  = "warning"
	SentimentNeutral  = "neutral"
)

// Nudge is a short behavioural prompt.
type Nudge struct {
	Kind      string  `json:"type"`
	Topic     string  `json:"category"`
	Message   string  `json:"message"`
	Sentiment string  `json:"sentiment"`
	Value     float64 `json:"value"`
	GoalID    string  `json:"goal_id,omitempty"`
}

const minSavingsStreak = 3

// GenerateBehaviorNudges compares the last 30 days with the 30 before, and
// reports savings streaks, goal milestones and no-spend days.
func (e *Engine) GenerateBehaviorNudges(txns []finance.Transaction, goals []finance.Goal) []Nudge {
	var out []Nudge
	if len(txns) == 0 && len(goals) == 0 {
		return nil
	}
	now := e.now()
	recentStart := now.AddDate(0, 0, -30)
	previousStart := now.AddDate(0, 0, -60)

	var recent, previous float64
	var haveRecent, havePrevious bool
	spendDays := make(map[string]bool)
	for _, t := range txns {
		switch {
		case !t.Date.Before(recentStart):
			haveRecent = true
			if t.IsExpense() {
				recent += t.Amount
				spendDays[t.Date.Format(time.DateOnly)] = true
			}
		case !t.Date.Before(previousStart):
			havePrevious = true
			if t.IsExpense() {
				previous += t.Amount
			}
		}
	}

	if haveRecent && havePrevious && previous > 0 {
		change := (recent - previous) / previous * 100
		switch {
		case change < -10:
			out = append(out, Nudge{
				Kind:      NudgePositive,
				Topic:     "spending_reduction",
				Message:   printer.Sprintf("Great job! You've reduced spending by %.0f%% this month.", -change),
				Sentiment: SentimentPositive,
				Value:     finance.Round2(change),
			})
		case change > 20:
			out = append(out, Nudge{
				Kind:      NudgeWarning,
				Topic:     "spending_increase",
				Message:   printer.Sprintf("Spending increased by %.0f%% this month. Review your budget.", change),
				Sentiment: SentimentWarning,
				Value:     finance.Round2(change),
			})
		}
	}

	if streak := savingsStreak(txns); streak >= minSavingsStreak {
		out = append(out, Nudge{
			Kind:      NudgePositive,
			Topic:     "savings_streak",
			Message:   printer.Sprintf("You've saved for %d consecutive months! Keep it up!", streak),
			Sentiment: SentimentPositive,
			Value:     float64(streak),
		})
	}

	for _, g := range goals {
		if !g.IsActive() || g.TargetAmount <= 0 {
			continue
		}
		progress := g.Progress()
		switch {
		case progress >= 48 && progress <= 52:
			out = append(out, Nudge{
				Kind:      NudgeMilestone,
				Topic:     "goal_progress",
				Message:   printer.Sprintf("Halfway there! You've reached 50%% of your '%s' target.", g.Name),
				Sentiment: SentimentPositive,
				Value:     finance.Round2(progress),
				GoalID:    g.ID,
			})
		case progress >= 73 && progress <= 77:
			out = append(out, Nudge{
				Kind:      NudgeMilestone,
				Topic:     "goal_progress",
				Message:   printer.Sprintf("Almost there! You're at 75%% of your '%s' target.", g.Name),
				Sentiment: SentimentPositive,
				Value:     finance.Round2(progress),
				GoalID:    g.ID,
			})
		case progress < 25 && g.CurrentAmount > 0:
			out = append(out, Nudge{
				Kind:      NudgeReminder,
				Topic:     "goal_progress",
				Message:   printer.Sprintf("Increase contributions to '%s' to stay on track.", g.Name),
				Sentiment: SentimentNeutral,
				Value:     finance.Round2(progress),
				GoalID:    g.ID,
			})
		}
	}

	if haveRecent {
		if free := 30 - len(spendDays); free > 0 {
			out = append(out, Nudge{
				Kind:      NudgePositive,
				Topic:     "no_spend_days",
				Message:   printer.Sprintf("You had %d no-spend days this month. Excellent discipline!", free),
				Sentiment: SentimentPositive,
				Value:     float64(free),
			})
		}
	}

	if len(out) > maxNudges {
		out = out[:maxNudges]
	}
	return out
}

// savingsStreak counts consecutive months with a savings transaction, ending
// at the latest such month.
func savingsStreak(txns []finance.Transaction) int {
	months := make(map[finance.Period]bool)
	var latest finance.Period
	for _, t := range txns {
		if !strings.EqualFold(string(t.Type), string(finance.TransactionSavings)) {
			continue
		}
		p := finance.PeriodOf(t.Date)
		months[p] = true
		if latest.Before(p) {
			latest = p
		}
	}
	if len(months) == 0 {
		return 0
	}
	streak := 0
	for p := latest; months[p]; p = p.Add(-1) {
		streak++
	}
	return streak
}
