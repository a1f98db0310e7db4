package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/vitormoschetta/study-buddy/internal/config"
	"github.com/vitormoschetta/study-buddy/internal/handler"
	"github.com/vitormoschetta/study-buddy/internal/logging"
	"github.com/vitormoschetta/study-buddy/internal/metrics"
	"github.com/vitormoschetta/study-buddy/internal/provider"
	"github.com/vitormoschetta/study-buddy/internal/server"
	"github.com/vitormoschetta/study-buddy/internal/service"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	if envErr != nil {
		logger.Warn().Msg(".env file not found or could not be loaded")
	}
	if cfg.GeminiAPIKey == "" {
		logger.Warn().Msg("GEMINI_API_KEY is not set - chat requests will fail until it is configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	// Criar provedor
	p := buildProvider(cfg, logger, m)

	// Criar handlers
	h := handler.NewHandler(service.NewChatService(p), logger, handler.Options{
		LogChatText:    cfg.LogChatText,
		ModelName:      cfg.GeminiModel,
		MetricsEnabled: cfg.MetricsEnabled,
	})

	// Criar servidor e configurar rotas
	srv := server.NewServer(cfg, logger, m)
	srv.SetupRouter(h)

	// Iniciar servidor
	if err := srv.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// buildProvider monta a cadeia Gemini -> circuit breaker -> métricas.
func buildProvider(cfg config.Config, logger zerolog.Logger, m *metrics.Metrics) provider.Provider {
	var p provider.Provider = provider.NewGemini(provider.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
	}, logger)

	if cfg.BreakerEnabled {
		p = provider.NewBreaker(p, provider.BreakerConfig{
			Name:                "gemini",
			ConsecutiveFailures: cfg.BreakerFailures,
			Cooldown:            cfg.BreakerCooldown,
		}, logger)
	}
	if m != nil {
		p = provider.NewInstrumented(p, m)
	}
	return p
}
