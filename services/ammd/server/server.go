package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mercx/native/amm"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	Limit         RateLimit
}

// Server hosts the AMM API: pool views, price and swap quotes, and the
// mutating swap/liquidity operations.
type Server struct {
	cfg     Config
	engine  *amm.Engine
	logger  *slog.Logger
	now     func() time.Time
	limiter *rateLimiter
}

// New constructs the HTTP server over an engine.
func New(cfg Config, engine *amm.Engine, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7082"
	}
	return &Server{
		cfg:     cfg,
		engine:  engine,
		logger:  logger,
		now:     time.Now,
		limiter: newRateLimiter(cfg.Limit, time.Now),
	}, nil
}

// Handler assembles the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/amm", func(r chi.Router) {
		r.Method(http.MethodGet, "/pools", otelhttp.NewHandler(http.HandlerFunc(s.handleListPools), "ammd.pools"))
		r.Method(http.MethodPost, "/pools", otelhttp.NewHandler(http.HandlerFunc(s.handleCreatePool), "ammd.pools.create"))
		r.Method(http.MethodGet, "/pools/{base}/{quote}", otelhttp.NewHandler(http.HandlerFunc(s.handleGetPool), "ammd.pool"))
		r.Method(http.MethodGet, "/price", otelhttp.NewHandler(http.HandlerFunc(s.handlePrice), "ammd.price"))
		r.Method(http.MethodPost, "/quote", otelhttp.NewHandler(http.HandlerFunc(s.handleQuote), "ammd.quote"))
		r.Group(func(r chi.Router) {
			r.Use(s.limiter.middleware)
			r.Method(http.MethodPost, "/swap", otelhttp.NewHandler(http.HandlerFunc(s.handleSwap), "ammd.swap"))
			r.Method(http.MethodPost, "/liquidity/add", otelhttp.NewHandler(http.HandlerFunc(s.handleAddLiquidity), "ammd.liquidity.add"))
			r.Method(http.MethodPost, "/liquidity/remove", otelhttp.NewHandler(http.HandlerFunc(s.handleRemoveLiquidity), "ammd.liquidity.remove"))
		})
	})
	return r
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("ammd listening", "address", s.cfg.ListenAddress)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
