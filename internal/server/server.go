package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"price-tracker/internal/alerting"
	"price-tracker/internal/config"
	"price-tracker/internal/storage"
	"price-tracker/internal/validate"
)

// envelope is the uniform response shape for every endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Server exposes the read dashboard and the runtime-config write endpoints.
// It shares the store and the alert engine with the poll loop.
type Server struct {
	cfg    config.DashboardConfig
	store  storage.SampleStore
	engine *alerting.Engine
	rules  validate.Rules
	logger zerolog.Logger
}

// New constructs the dashboard server.
func New(cfg config.DashboardConfig, store storage.SampleStore, engine *alerting.Engine, rules validate.Rules, logger zerolog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		store:  store,
		engine: engine,
		rules:  rules,
		logger: logger.With().Str("component", "dashboard").Logger(),
	}
}

// Handler assembles the gin router.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(rateLimitMiddleware(newClientLimiter(s.cfg.RequestsPerMinute)))

	api := r.Group("/api")
	api.GET("/prices", s.getPrices)
	api.GET("/chart/:symbol", s.getChart)
	api.GET("/alerts", s.getAlerts)
	api.GET("/stats", s.getStats)
	api.POST("/update_threshold", s.updateThreshold)
	api.POST("/update_cooldown", s.updateCooldown)
	api.POST("/cleanup", s.cleanup)

	return r
}

// Run serves HTTP until ctx is cancelled, then drains with a grace period.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("dashboard listening")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	grace := s.cfg.ShutdownGracePeriod
	if grace <= 0 {
		grace = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}
