// Package api exposes the operator HTTP API: user administration, trade
// history, diagnostics, health and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"bybit-autotrader/internal/monitor"
	"bybit-autotrader/internal/store"
	"bybit-autotrader/pkg/logging"
)

// UserStore is the profile persistence the API administers.
type UserStore interface {
	Profiles() []store.Profile
	Lookup(id string) (store.Profile, error)
	Get(id string) (store.Profile, error)
	SetCredentials(id, key, secret string) error
	SetSubscription(id string, days int) error
	UpdateSetting(id, key string, value any) (store.Settings, error)
	TradesFor(ctx context.Context, id string, limit int) []store.Trade
}

// AuthAdmin diagnoses and re-enables users.
type AuthAdmin interface {
	Diagnose(ctx context.Context, id string) (monitor.Report, error)
	Reset(id string) (store.Profile, error)
}

// Sealer encrypts credentials before they are stored.
type Sealer interface {
	Enabled() bool
	Seal(plaintext string) (string, error)
}

// Options wires a Server.
type Options struct {
	Store        UserStore
	Auth         AuthAdmin
	Sealer       Sealer // optional
	Gatherer     prometheus.Gatherer
	JWTSecret    string
	PasswordHash string
	DryRun       bool
	Version      string
	Logger       zerolog.Logger
}

// Server wires HTTP endpoints around the profile store.
type Server struct {
	Router       *gin.Engine
	Store        UserStore
	Auth         AuthAdmin
	Sealer       Sealer
	JWTSecret    string
	PasswordHash string
	DryRun       bool
	Version      string
	started      time.Time
	log          zerolog.Logger
}

// NewServer builds the router and its middleware stack.
func NewServer(opts Options) *Server {
	log := logging.Component(opts.Logger, "api")
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(log))
	r.Use(RateLimitMiddleware(20, 50, log))

	s := &Server{
		Router:       r,
		Store:        opts.Store,
		Auth:         opts.Auth,
		Sealer:       opts.Sealer,
		JWTSecret:    opts.JWTSecret,
		PasswordHash: opts.PasswordHash,
		DryRun:       opts.DryRun,
		Version:      opts.Version,
		started:      time.Now(),
		log:          log,
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.routes(gatherer)
	return s
}

func (s *Server) routes(gatherer prometheus.Gatherer) {
	s.Router.GET("/health", s.health)
	s.Router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := s.Router.Group("/api/v1")
	{
		api.POST("/auth/login", s.login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/users", s.listUsers)
			protected.GET("/users/:id", s.getUser)
			protected.PUT("/users/:id/credentials", s.setCredentials)
			protected.POST("/users/:id/subscription", s.grantSubscription)
			protected.PUT("/users/:id/settings/:key", s.updateSetting)
			protected.POST("/users/:id/enable-auth", s.enableAuth)
			protected.GET("/users/:id/trades", s.getTrades)
			protected.GET("/users/:id/diag", s.diagnose)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"users":   len(s.Store.Profiles()),
		"dry_run": s.DryRun,
		"version": s.Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("admin api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
