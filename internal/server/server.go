package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/vitormoschetta/study-buddy/internal/config"
	"github.com/vitormoschetta/study-buddy/internal/handler"
	"github.com/vitormoschetta/study-buddy/internal/logging"
	"github.com/vitormoschetta/study-buddy/internal/metrics"
)

// Server representa o servidor HTTP com todas as dependências
type Server struct {
	cfg     config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics
	Router  chi.Router
}

// NewServer cria uma nova instância do servidor. m pode ser nil quando
// as métricas estão desligadas.
func NewServer(cfg config.Config, logger zerolog.Logger, m *metrics.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

// SetupRouter configura as rotas e middlewares do Chi
func (s *Server) SetupRouter(h *handler.Handler) {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPut,
			http.MethodPatch, http.MethodPost, http.MethodDelete,
		},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Use(middleware.GetHead)
	r.Use(middleware.RequestSize(s.cfg.MaxBodyBytes))
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}

	r.NotFound(h.HandleNotFound)
	r.MethodNotAllowed(h.HandleMethodNotAllowed)

	// Rotas
	r.Get("/", h.HandleRoot)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	// API Routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)
		r.Post("/chat", h.HandleChat)
	})

	s.Router = r
}

// Start inicia o servidor HTTP e bloqueia até ctx ser cancelado,
// quando faz o graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve é igual a Start, mas usa um listener já aberto.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.Router == nil {
		return errors.New("router not configured: call SetupRouter first")
	}

	// Requisições em andamento herdam baseCtx; cancelá-lo interrompe
	// chamadas ao provedor que passarem do prazo de shutdown.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	// Sem WriteTimeout: a chamada ao provedor não tem prazo fixo.
	httpServer := &http.Server{
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("addr", ln.Addr().String()).
			Msgf("Study Buddy backend server running on http://localhost:%s", s.cfg.Port)

		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Aguardar sinal de interrupção ou falha do servidor
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err == nil {
		s.logger.Info().Msg("Server stopped gracefully")
		return nil
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Warn().
		Dur("shutdown_timeout", s.cfg.ShutdownTimeout).
		Msg("Shutdown timeout reached, cancelling in-flight requests")
	cancelBase()
	if err := httpServer.Close(); err != nil {
		return fmt.Errorf("server close: %w", err)
	}
	s.logger.Info().Msg("Server stopped")
	return nil
}
