package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/castlemilk/pfinance/analytics/internal/api"
	"github.com/castlemilk/pfinance/analytics/internal/app"
	"github.com/castlemilk/pfinance/analytics/internal/auth"
	"github.com/castlemilk/pfinance/analytics/internal/config"
	"github.com/castlemilk/pfinance/analytics/internal/logger"
	"github.com/castlemilk/pfinance/analytics/internal/service"
)

func main() {
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

	if err := run(cfg, log); err != nil {
		log.Fatal("Server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	var trainer *service.Trainer
	if cfg.Trainer.Schedule != "" {
		trainer, err = service.NewTrainer(a.Service, a.Store, cfg.Trainer.Schedule, log)
		if err != nil {
			return err
		}
		if err := trainer.Start(ctx); err != nil {
			return err
		}
	}

	// Debug impersonation runs first so RequireToken and LocalDev see its claims.
	middlewares := []auth.Middleware{auth.DebugImpersonation(cfg.Auth.SkipAuth)}
	if cfg.Auth.SkipAuth || cfg.Store.Backend == "memory" {
		log.Warn("Authentication disabled, all requests act as the local dev user")
		middlewares = append(middlewares, auth.LocalDev())
	} else {
		firebaseAuth, err := auth.NewFirebaseAuth(ctx, cfg.Store.ProjectID)
		if err != nil {
			return fmt.Errorf("failed to initialize Firebase Auth: %w", err)
		}
		services := auth.NewServiceTokens(cfg.Auth.ServiceTokenHashes)
		middlewares = append(middlewares, auth.RequireToken(firebaseAuth, services, log))
	}

	handler := api.NewServer(a.Service, trainer, log).Handler(middlewares...)

	// NOTE: Frontend runs on port 1234, not 3000
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"User-Agent",
			"X-Debug-Impersonate-User",
		},
		ExposedHeaders:   []string{"Last-Modified"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      h2c.NewHandler(c.Handler(handler), &http2.Server{}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if trainer != nil {
		trainer.Stop(shutdownCtx)
	}
	return srv.Shutdown(shutdownCtx)
}
