package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/config"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/gateway"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/infrastructure/llm"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/infrastructure/redisstore"
	schedinfra "github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/infrastructure/scheduler"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/infrastructure/sink"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/infrastructure/slack"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/infrastructure/storage"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/router"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/usecase"
)

// Application wires configuration to shared infrastructure and use cases.
// Both daemons build one and pick the surface they need.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	db    *sql.DB
	redis *redis.Client
	slack *slack.Client
}

// New opens shared connections. Callers own Close.
func New(cfg config.Config, logger *slog.Logger) (*Application, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Application{
		cfg:    cfg,
		logger: logger,
		db:     db,
		redis:  redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr}),
		slack:  slack.NewClient(cfg.Slack, logger.With("component", "slack")),
	}, nil
}

// Close releases shared connections.
func (a *Application) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// buildPipeline assembles the daily curation workflow.
func (a *Application) buildPipeline() *usecase.Pipeline {
	pc := a.cfg.Pipeline
	client := llm.NewClient(a.cfg.OpenAI, a.logger.With("component", "llm"))

	filter := usecase.NewRelevanceFilter(client, pc.BatchSize, pc.TopK, pc.Workers,
		a.logger.With("component", "stage1"))
	enrichment := usecase.NewEnrichmentStage(client, pc.Workers,
		a.logger.With("component", "stage2"))

	seenTTL := time.Duration(pc.SeenTTLDays) * 24 * time.Hour

	return usecase.NewPipeline(usecase.PipelineDeps{
		Source:     storage.NewCandidateStore(a.db),
		Seen:       redisstore.NewSeenStore(a.redis, seenTTL),
		Filter:     filter,
		Enrichment: enrichment,
		Enricher:   client,
		Repository: storage.NewPostgresRepository(a.db),
		Publisher:  a.slack,
		FinalN:     pc.FinalN,
		MaxPerSrc:  pc.MaxPerSource,
		Logger:     a.logger.With("component", "pipeline"),
	})
}

// RunOnce executes a single pipeline run for today in the scheduler
// timezone.
func (a *Application) RunOnce(ctx context.Context) error {
	now := time.Now().In(a.cfg.Scheduler.Location())
	return a.buildPipeline().ProcessDay(ctx, now)
}

// RunScheduled starts the cron-driven pipeline and blocks until the context
// is cancelled.
func (a *Application) RunScheduled(ctx context.Context) error {
	driver := schedinfra.NewCronScheduler(
		a.cfg.Scheduler.CronExpression,
		a.cfg.Scheduler.Location(),
		a.logger.With("component", "scheduler"),
	)
	sched := usecase.NewScheduler(driver, a.buildPipeline(), a.logger.With("component", "pipeline"))

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return sched.Stop(stopCtx)
}

// RunGateway serves the interaction webhook until the context is cancelled.
func (a *Application) RunGateway(ctx context.Context) error {
	sinks, err := sink.FromConfig(a.cfg.Sinks, a.logger.With("component", "sink"))
	if err != nil {
		return fmt.Errorf("configure sinks: %w", err)
	}

	repo := storage.NewPostgresRepository(a.db)

	srv := gateway.NewServer(gateway.Deps{
		Verifier:     slack.NewVerifier(a.cfg.Slack.SigningSecret),
		Notifier:     a.slack,
		Repository:   repo,
		Jobs:         storage.NewPostgresJobStore(a.db),
		Router:       router.New(sinks, repo, a.logger.With("component", "router")),
		Sinks:        a.cfg.Sinks.Enabled,
		AckDeadline:  a.cfg.Gateway.AckDeadline,
		SoftDeadline: a.cfg.Gateway.JobSoftDeadline,
		Logger:       a.logger.With("component", "gateway"),
	})
	return srv.Run(ctx, a.cfg.Gateway.ListenAddr)
}
