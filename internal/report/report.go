// Package report renders insights and model evaluations as plain-text
// tables for terminals and text/plain responses.
package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/castlemilk/pfinance/analytics/internal/service"
)

// maxImportances is the number of features listed per model.
const maxImportances = 5

var printer = message.NewPrinter(language.English)

func money(v float64) string {
	return printer.Sprintf("%.2f", v)
}

func percent(v float64) string {
	return printer.Sprintf("%.1f%%", v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n%s\n", title, strings.Repeat("=", len(title)))
}

// WriteEvaluation prints in-sample and cross-validated metrics for each
// model, followed by its most important features.
func WriteEvaluation(w io.Writer, evals []service.ModelEvaluation) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "MODEL\tN\tMAE\tRMSE\tMAPE\tR2\tCV MAE\tCV R2")
	fmt.Fprintln(tw, "-----\t-\t---\t----\t----\t--\t------\t-----")
	for _, e := range evals {
		m := e.InSample
		cvMAE, cvR2 := "n/a", "n/a"
		if e.CrossValidation != nil {
			cvMAE = money(e.CrossValidation.Mean.MAE)
			cvR2 = fmt.Sprintf("%.3f", e.CrossValidation.Mean.R2)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%.3f\t%s\t%s\n",
			e.Kind, m.N, money(m.MAE), money(m.RMSE), percent(m.MAPE), m.R2, cvMAE, cvR2)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, e := range evals {
		if len(e.Importance) == 0 {
			continue
		}
		fmt.Fprintf(w, "\nTop features (%s, model %s):\n", e.Kind, e.Info.ID)
		tw := newTable(w)
		for i, imp := range e.Importance {
			if i == maxImportances {
				break
			}
			fmt.Fprintf(tw, "  %s\t%.4f\n", imp.Feature, imp.Value)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// WriteInsights prints every available section of in. Sections that could
// not be computed are listed at the end with their reason.
func WriteInsights(w io.Writer, in *service.Insights) error {
	fmt.Fprintf(w, "Insights for %s (%d months of data, generated %s)\n",
		in.UserID, in.MonthsOfData, in.GeneratedAt.Format("2006-01-02 15:04 MST"))

	if f := in.Expense; f != nil {
		section(w, "Expense forecast")
		fmt.Fprintf(w, "%s: %s (%s to %s at %.0f%%), %s vs average %s (%+.1f%%)\n",
			f.Period, money(f.Point), money(f.Interval.Lower), money(f.Interval.Upper),
			f.Interval.Confidence*100, f.Trend, money(f.HistoricalAverage), f.PercentChange)
	}

	if c := in.Categories; c != nil {
		section(w, "Category forecast")
		risk := make(map[string]float64, len(c.Risks))
		for _, r := range c.Risks {
			if r.AtRisk {
				risk[r.Category] = r.Ratio
			}
		}
		tw := newTable(w)
		fmt.Fprintln(tw, "CATEGORY\tFORECAST\tLOWER\tUPPER\tRISK")
		fmt.Fprintln(tw, "--------\t--------\t-----\t-----\t----")
		for _, f := range c.Forecasts {
			flag := ""
			if ratio, ok := risk[f.Category]; ok {
				flag = fmt.Sprintf("x%.2f", ratio)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				f.Category, money(f.Point), money(f.Interval.Lower), money(f.Interval.Upper), flag)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if s := in.Savings; s != nil {
		section(w, "Savings")
		fmt.Fprintf(w, "Status: %s. %s\n", s.Tier, s.Message)
		fmt.Fprintf(w, "Average monthly savings %s, rate %s\n",
			money(s.Metrics.AvgMonthlySavings), percent(s.Metrics.SavingsRate))
		if s.Trajectory != nil && len(s.Trajectory.Points) > 0 {
			tw := newTable(w)
			fmt.Fprintln(tw, "MONTHS\tPERIOD\tPROJECTED\tLOWER\tUPPER")
			fmt.Fprintln(tw, "------\t------\t---------\t-----\t-----")
			for _, p := range s.Trajectory.Points {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
					p.Months, p.Period, money(p.ProjectedSavings), money(p.Interval.Lower), money(p.Interval.Upper))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}
	}

	if h := in.Health; h != nil {
		section(w, "Financial health")
		fmt.Fprintf(w, "Score %d (%s)\n", h.Score, h.Grade)
		tw := newTable(w)
		for _, c := range h.Components {
			fmt.Fprintf(tw, "  %s\t%.0f\t%s\n", c.Name, c.Score, c.Status)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		for _, r := range h.Recommendations {
			fmt.Fprintf(w, "  [%s] %s\n", r.Priority, r.Message)
		}
	}

	if b := in.Budget; b != nil && b.Plan != nil {
		section(w, "Budget")
		r := b.Plan.Recommended
		fmt.Fprintf(w, "Monthly income %s\n", money(b.Plan.MonthlyIncome))
		tw := newTable(w)
		fmt.Fprintln(tw, "BUCKET\tRECOMMENDED\tCURRENT")
		fmt.Fprintln(tw, "------\t-----------\t-------")
		fmt.Fprintf(tw, "needs\t%s\t%s\n", money(r.Needs), money(b.Plan.Current.Needs))
		fmt.Fprintf(tw, "wants\t%s\t%s\n", money(r.Wants), money(b.Plan.Current.Wants))
		fmt.Fprintf(tw, "savings\t%s\t%s\n", money(r.Savings), money(b.Plan.Current.Savings))
		if err := tw.Flush(); err != nil {
			return err
		}
		if c := b.Categories; c != nil {
			tw := newTable(w)
			for _, a := range c.Allocations {
				fmt.Fprintf(tw, "  %s\t%s\t%s\n", a.Category, money(a.Amount.InexactFloat64()), percent(a.Share*100))
			}
			fmt.Fprintf(tw, "  reserve\t%s\t\n", money(c.Reserve.InexactFloat64()))
			if err := tw.Flush(); err != nil {
				return err
			}
		}
	}

	if len(in.Alerts) > 0 {
		section(w, "Alerts")
		for _, a := range in.Alerts {
			fmt.Fprintf(w, "  [%s] %s\n", a.Severity, a.Message)
		}
	}

	if r := in.Recommendations; r != nil {
		section(w, "Recommendations")
		if len(r.Subscriptions) > 0 {
			tw := newTable(w)
			fmt.Fprintln(tw, "SUBSCRIPTION\tAMOUNT\tFREQUENCY\tANNUAL")
			fmt.Fprintln(tw, "------------\t------\t---------\t------")
			for _, s := range r.Subscriptions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Payee, money(s.Amount), s.Frequency, money(s.EstimatedAnnualCost))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}
		for _, h := range r.Habits {
			fmt.Fprintf(w, "  habit: %s\n", h.Message)
		}
		for _, o := range r.Opportunities {
			fmt.Fprintf(w, "  opportunity: %s\n", o.Message)
		}
		for _, n := range r.Nudges {
			fmt.Fprintf(w, "  nudge: %s\n", n.Message)
		}
		fmt.Fprintf(w, "Total potential savings %s\n", money(r.TotalPotentialSavings))
	}

	if len(in.Goals) > 0 {
		section(w, "Goals")
		tw := newTable(w)
		fmt.Fprintln(tw, "GOAL\tMONTHS\tMONTHLY\tFEASIBILITY")
		fmt.Fprintln(tw, "----\t------\t-------\t-----------")
		for _, g := range in.Goals {
			switch {
			case g.Reverse != nil:
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
					g.Name, g.Reverse.MonthsAvailable, money(g.Reverse.RequiredMonthly), g.Reverse.Feasibility.Rating)
			case g.Timeline != nil:
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
					g.Name, g.Timeline.MonthsNeeded, money(g.Timeline.MonthlySavings), g.Timeline.Feasibility.Rating)
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(in.Unavailable) > 0 {
		section(w, "Unavailable")
		for _, name := range slices.Sorted(maps.Keys(in.Unavailable)) {
			fmt.Fprintf(w, "  %s: %s\n", name, in.Unavailable[name])
		}
	}
	return nil
}
