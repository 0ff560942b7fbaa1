package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/app"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/config"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/logging"
)

func main() {
	once := flag.Bool("once", false, "run a single pipeline pass and exit")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		if err := application.RunOnce(ctx); err != nil {
			logger.Error("pipeline run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := application.RunScheduled(ctx); err != nil {
		logger.Error("daemon stopped", "error", err)
		os.Exit(1)
	}
}
