package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"github.com/vitormoschetta/study-buddy/internal/model"
)

// Replier é o que o handler de chat precisa da camada de serviço.
type Replier interface {
	Reply(ctx context.Context, text string) (string, error)
}

// Options ajusta o comportamento dos handlers
type Options struct {
	// LogChatText registra o texto bruto do usuário; caso contrário só o tamanho.
	LogChatText bool
	// ModelName aparece no endpoint raiz.
	ModelName string
	// MetricsEnabled indica se /metrics deve ser anunciado no endpoint raiz.
	MetricsEnabled bool
}

// Handler contém as dependências necessárias para os handlers HTTP
type Handler struct {
	chat   Replier
	logger zerolog.Logger
	opts   Options
}

// NewHandler cria uma nova instância do Handler
func NewHandler(chat Replier, logger zerolog.Logger, opts Options) *Handler {
	return &Handler{
		chat:   chat,
		logger: logger,
		opts:   opts,
	}
}

// HandleRoot retorna informações sobre o serviço
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]interface{}{
		"chat": map[string]interface{}{
			"path":        "/api/chat",
			"method":      http.MethodPost,
			"description": "Send a message and receive the generated reply",
			"example": map[string]string{
				"text": "What is photosynthesis?",
			},
		},
		"health": map[string]interface{}{
			"path":        "/api/health",
			"method":      http.MethodGet,
			"description": "Health check endpoint",
		},
	}
	if h.opts.MetricsEnabled {
		endpoints["metrics"] = map[string]interface{}{
			"path":        "/metrics",
			"method":      http.MethodGet,
			"description": "Prometheus metrics",
		}
	}

	render.JSON(w, r, map[string]interface{}{
		"service":   "Study Buddy backend",
		"model":     h.opts.ModelName,
		"endpoints": endpoints,
	})
}

// HandleHealth retorna o status de saúde do servidor
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, model.HealthResponse{
		Status:  model.StatusOK,
		Message: model.MsgBackendRunning,
	})
}

// HandleChat valida o texto, chama o provedor e devolve a resposta gerada.
// Detalhes de erro do provedor ficam só no log.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)

	var req model.ChatRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn().Int64("limit", tooLarge.Limit).Msg("Chat request body too large")
			writeError(w, r, http.StatusRequestEntityTooLarge, model.MsgBodyTooLarge)
			return
		}
		logger.Warn().Err(err).Msg("Invalid chat request body")
		writeError(w, r, http.StatusBadRequest, model.MsgInvalidText)
		return
	}

	if req.Text == nil || *req.Text == "" {
		logger.Warn().Msg("Chat request without text")
		writeError(w, r, http.StatusBadRequest, model.MsgInvalidText)
		return
	}
	text := *req.Text

	ev := logger.Info().Int("text_length", len(text))
	if h.opts.LogChatText {
		ev = ev.Str("text", text)
	}
	ev.Msg("User message")

	reply, err := h.chat.Reply(r.Context(), text)
	if err != nil {
		logger.Error().Err(err).Msg("Error in chat endpoint")
		writeError(w, r, http.StatusInternalServerError, model.MsgInternalError)
		return
	}

	render.JSON(w, r, model.ChatResponse{Response: reply})
}

// HandleNotFound responde rotas desconhecidas com o envelope de erro da API
func (h *Handler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, model.MsgNotFound)
}

// HandleMethodNotAllowed responde métodos não suportados com o envelope de erro da API
func (h *Handler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, model.MsgMethodNotAllow)
}

func (h *Handler) requestLogger(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &h.logger
}

var errTrailingData = errors.New("unexpected data after JSON value")

// decodeJSON exige exatamente um valor JSON no corpo; espaços em branco
// depois dele são aceitos, qualquer outro byte não.
func decodeJSON(r io.Reader, v interface{}) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(v); err != nil {
		return err
	}
	var extra json.RawMessage
	switch err := dec.Decode(&extra); {
	case err == io.EOF:
		return nil
	case err != nil:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return errTrailingData
	default:
		return errTrailingData
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, model.ErrorResponse{Error: msg})
}
