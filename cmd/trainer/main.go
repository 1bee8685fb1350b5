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
	"github.com/castlemilk/pfinance/analytics/internal/report"
	"github.com/castlemilk/pfinance/analytics/internal/service"
)

func main() {
	userID := flag.String("user", "", "train a single user instead of every user")
	evaluate := flag.Bool("report", false, "print an evaluation report for -user after training")
	timeout := flag.Duration("timeout", 30*time.Minute, "abort the run after this long")
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

	if *evaluate && *userID == "" {
		log.Fatal("-report requires -user")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialise", zap.Error(err))
	}
	defer a.Close()

	if *userID == "" {
		// The schedule is unused for a single run but must parse.
		schedule := cfg.Trainer.Schedule
		if schedule == "" {
			schedule = "@daily"
		}
		trainer, err := service.NewTrainer(a.Service, a.Store, schedule, log)
		if err != nil {
			log.Fatal("Invalid training schedule", zap.Error(err))
		}
		summary, err := trainer.RunOnce(ctx)
		if err != nil {
			log.Fatal("Training failed", zap.Error(err))
		}
		fmt.Printf("Trained %d of %d users (%d skipped, %d failed) in %s\n",
			summary.Trained, summary.Users, summary.Skipped, summary.Failed, summary.Duration.Round(time.Millisecond))
		if summary.Failed > 0 {
			os.Exit(1)
		}
		return
	}

	rep, err := a.Service.TrainUser(ctx, *userID)
	if err != nil {
		log.Fatal("Training failed", zap.String("user_id", *userID), zap.Error(err))
	}
	for kind, id := range rep.Models {
		fmt.Printf("%s\t%s\n", kind, id)
	}
	for kind, reason := range rep.Skipped {
		fmt.Printf("%s\tskipped: %s\n", kind, reason)
	}

	if *evaluate {
		evals, err := a.Service.EvaluateModels(ctx, *userID, service.DefaultCVSplits)
		if err != nil {
			log.Fatal("Evaluation failed", zap.Error(err))
		}
		if err := report.WriteEvaluation(os.Stdout, evals); err != nil {
			log.Fatal("Failed to write report", zap.Error(err))
		}
	}
}
