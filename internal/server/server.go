// Package server exposes read-only onboarding state over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/onboardctl/internal/addressbook"
	"github.com/danmuck/onboardctl/internal/auth"
	"github.com/danmuck/onboardctl/internal/observability"
	"github.com/danmuck/onboardctl/internal/pairs"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const version = "0.1.0"

// AddressLister lists the address book of the served network.
type AddressLister interface {
	Network() string
	List(ctx context.Context) ([]addressbook.Record, error)
}

// PairsFunc builds the current pairing table on demand.
type PairsFunc func() (pairs.Table, error)

type Server struct {
	ID       string
	Addr     string
	Appeared time.Time

	book      AddressLister
	pairs     PairsFunc
	validator auth.Validator
	router    *gin.Engine
	logger    zerolog.Logger
}

// Option adjusts a Server.
type Option func(*Server)

// WithValidator requires a bearer token on the data routes. /health and
// /metrics stay open.
func WithValidator(v auth.Validator) Option {
	return func(s *Server) {
		s.validator = v
	}
}

func New(id, addr string, corsOrigins []string, book AddressLister, pairsFn PairsFunc, logger zerolog.Logger, opts ...Option) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		ID:       id,
		Addr:     addr,
		Appeared: time.Now(),
		book:     book,
		pairs:    pairsFn,
		router:   r,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve blocks until ctx is done, then shuts the listener down.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.Addr).Msg("status server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
