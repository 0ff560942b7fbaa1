package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/infrastructure/slack"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/ports"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/router"
)

// Notifier is the outbound messaging surface the gateway needs: opening the
// curation modal and posting async interaction responses. PostMessage is the
// terminal-update path for interactions that carry no response URL.
type Notifier interface {
	OpenCurationModal(ctx context.Context, triggerID string, rec domain.CurationRecord) error
	Respond(ctx context.Context, responseURL, text string, replaceOriginal bool) error
	PostMessage(ctx context.Context, text string) error
}

// Deps wires the interaction gateway.
type Deps struct {
	Verifier     *slack.Verifier
	Notifier     Notifier
	Repository   ports.DigestRepository
	Jobs         ports.JobStore
	Router       *router.Router
	Sinks        []string
	AckDeadline  time.Duration
	SoftDeadline time.Duration
	Logger       *slog.Logger
}

// Server receives interaction callbacks, acknowledges them inside the
// platform deadline and runs distribution in the background.
type Server struct {
	verifier     *slack.Verifier
	notifier     Notifier
	repository   ports.DigestRepository
	jobs         ports.JobStore
	router       *router.Router
	sinks        []string
	ackDeadline  time.Duration
	softDeadline time.Duration
	logger       *slog.Logger
	engine       *gin.Engine
}

// NewServer builds the gateway and its routes.
func NewServer(deps Deps) *Server {
	s := &Server{
		verifier:     deps.Verifier,
		notifier:     deps.Notifier,
		repository:   deps.Repository,
		jobs:         deps.Jobs,
		router:       deps.Router,
		sinks:        deps.Sinks,
		ackDeadline:  deps.AckDeadline,
		softDeadline: deps.SoftDeadline,
		logger:       deps.Logger,
	}
	if s.ackDeadline <= 0 {
		s.ackDeadline = 3 * time.Second
	}
	if s.softDeadline <= 0 {
		s.softDeadline = 30 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", s.handleHealth)
	engine.POST("/slack/interactions", s.handleInteraction)

	s.engine = engine
	return s
}

// Handler exposes the HTTP handler for serving and tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
