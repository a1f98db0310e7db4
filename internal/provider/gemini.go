package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"
)

// GeminiConfig reúne o necessário para falar com a API do Gemini.
type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL sobrescreve o endpoint da API; vazio usa o padrão do SDK.
	BaseURL string
	// HTTPClient é opcional; quando nil, um client com LoggingTransport é usado.
	HTTPClient *http.Client
}

// Gemini implementa Provider sobre o modelo gemini do ADK.
// O modelo é criado na primeira chamada e reutilizado depois.
type Gemini struct {
	cfg    GeminiConfig
	logger zerolog.Logger

	newModel func(context.Context, string, *genai.ClientConfig) (model.LLM, error)

	mu  sync.Mutex
	llm model.LLM
}

func NewGemini(cfg GeminiConfig, logger zerolog.Logger) *Gemini {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Transport: &LoggingTransport{Base: http.DefaultTransport, Logger: logger},
		}
	}
	return &Gemini{
		cfg:      cfg,
		newModel: gemini.NewModel,
		logger:   logger.With().Str("component", "gemini").Str("model", cfg.Model).Logger(),
	}
}

// loadModel cria o modelo sob o mutex. Uma falha não fica em cache:
// a próxima chamada tenta de novo.
func (g *Gemini) loadModel(ctx context.Context) (model.LLM, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.llm != nil {
		return g.llm, nil
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     g.cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.cfg.HTTPClient,
	}
	if g.cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.cfg.BaseURL}
	}

	// O contexto de criação não deve prender o modelo a uma única requisição.
	llm, err := g.newModel(context.WithoutCancel(ctx), g.cfg.Model, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}
	g.llm = llm
	g.logger.Info().Msg("Gemini model initialized")
	return g.llm, nil
}

// Generate envia o prompt como um único turno do usuário e concatena
// as partes de texto retornadas.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	if g.cfg.APIKey == "" {
		return "", ErrMissingAPIKey
	}

	llm, err := g.loadModel(ctx)
	if err != nil {
		return "", err
	}

	req := &model.LLMRequest{
		Model: g.cfg.Model,
		Contents: []*genai.Content{
			genai.NewContentFromText(prompt, genai.RoleUser),
		},
		Config: &genai.GenerateContentConfig{},
	}

	var text strings.Builder
	for resp, err := range llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return "", fmt.Errorf("generate content: %w", err)
		}
		if resp == nil || resp.Content == nil {
			continue
		}
		for _, part := range resp.Content.Parts {
			if part != nil && part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
		}
	}

	if text.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}
