package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/castlemilk/pfinance/analytics/internal/app"
	"github.com/castlemilk/pfinance/analytics/internal/config"
	"github.com/castlemilk/pfinance/analytics/internal/logger"
	"github.com/castlemilk/pfinance/analytics/internal/sampledata"
)

func main() {
	userID := flag.String("user", "local-dev-user", "user to seed")
	months := flag.Int("months", 24, "months of history to generate")
	income := flag.Float64("income", 6000, "monthly salary")
	seed := flag.Uint64("seed", 42, "random seed")
	withGoals := flag.Bool("goals", true, "also create sample goals")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialise", zap.Error(err))
	}
	defer a.Close()

	now := time.Now()
	p := sampledata.DefaultProfile(*userID, now)
	p.Start = p.Start.Add(p.Months - *months)
	p.Months = *months
	p.MonthlyIncome = *income
	p.Seed = *seed

	txns := sampledata.Transactions(p)
	res, err := a.Service.IngestTransactions(ctx, *userID, txns)
	if err != nil {
		log.Fatal("Failed to ingest transactions", zap.Error(err))
	}
	fmt.Printf("Seeded %d transactions over %d months for %s\n", res.Ingested, res.Months, *userID)

	if *withGoals {
		for _, g := range sampledata.Goals(*userID, now) {
			if err := a.Service.CreateGoal(ctx, *userID, &g); err != nil {
				log.Fatal("Failed to create goal", zap.String("goal", g.Name), zap.Error(err))
			}
			fmt.Printf("Created goal %q (%s)\n", g.Name, g.ID)
		}
	}
}
