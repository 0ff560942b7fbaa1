package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/app"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/config"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSON(cfg.Logging.Level)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.RunGateway(ctx); err != nil {
		logger.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}
