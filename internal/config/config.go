package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort         = "3001"
	DefaultGeminiModel  = "gemini-2.0-flash"
	DefaultMaxBodyBytes = 100 << 10
)

// Config contém os valores do processo lidos uma única vez na inicialização.
// Depois de Load, nenhum campo é alterado.
type Config struct {
	Port string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	AllowedOrigins  []string
	MaxBodyBytes    int64
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	LogLevel    string
	LogFormat   string
	LogChatText bool

	BreakerEnabled  bool
	BreakerFailures uint32
	BreakerCooldown time.Duration

	MetricsEnabled bool
}

// Addr retorna o endereço de escuta no formato aceito por http.Server.
func (c Config) Addr() string {
	return ":" + c.Port
}

// Load monta a Config a partir das variáveis de ambiente.
// O carregamento do .env fica a cargo do chamador (cmd/main.go).
func Load() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup monta a Config usando uma função de lookup arbitrária,
// o que permite testar sem tocar no ambiente do processo.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	p := parser{lookup: lookup}

	apiKey := p.str("GEMINI_API_KEY", "")
	if apiKey == "" {
		apiKey = p.str("GOOGLE_API_KEY", "")
	}

	failures := p.int64("CIRCUIT_BREAKER_FAILURES", 5)
	if failures < 0 || failures > math.MaxUint32 {
		p.fail(fmt.Errorf("invalid CIRCUIT_BREAKER_FAILURES %d", failures))
		failures = 0
	}

	cfg := Config{
		Port:            p.str("PORT", DefaultPort),
		GeminiAPIKey:    apiKey,
		GeminiModel:     p.str("GEMINI_MODEL", DefaultGeminiModel),
		GeminiBaseURL:   p.str("GEMINI_BASE_URL", ""),
		AllowedOrigins:  p.list("CORS_ALLOWED_ORIGINS", []string{"*"}),
		MaxBodyBytes:    p.int64("MAX_BODY_BYTES", DefaultMaxBodyBytes),
		RequestTimeout:  p.duration("REQUEST_TIMEOUT", 0),
		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 5*time.Second),
		LogLevel:        strings.ToLower(p.str("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(p.str("LOG_FORMAT", "console")),
		LogChatText:     p.bool("LOG_CHAT_TEXT", false),
		BreakerEnabled:  p.bool("CIRCUIT_BREAKER_ENABLED", true),
		BreakerFailures: uint32(failures),
		BreakerCooldown: p.duration("CIRCUIT_BREAKER_COOLDOWN", 30*time.Second),
		MetricsEnabled:  p.bool("METRICS_ENABLED", true),
	}

	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if _, err := strconv.ParseUint(c.Port, 10, 16); err != nil {
		return fmt.Errorf("invalid PORT %q: %w", c.Port, err)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive, got %d", c.MaxBodyBytes)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative, got %s", c.RequestTimeout)
	}
	if c.BreakerEnabled && c.BreakerFailures == 0 {
		return fmt.Errorf("CIRCUIT_BREAKER_FAILURES must be at least 1 when the breaker is enabled")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q: expected json or console", c.LogFormat)
	}
	return nil
}

// parser guarda o primeiro erro encontrado para que Load reporte
// a variável inválida em vez de seguir com um valor padrão silencioso.
type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) raw(key string) (string, bool) {
	v, ok := p.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) str(key, def string) string {
	if v, ok := p.raw(key); ok {
		return v
	}
	return def
}

func (p *parser) list(key string, def []string) []string {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func (p *parser) int64(key string, def int64) int64 {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.fail(fmt.Errorf("invalid %s %q: %w", key, v, err))
		return def
	}
	return n
}

func (p *parser) bool(key string, def bool) bool {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(fmt.Errorf("invalid %s %q: %w", key, v, err))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(fmt.Errorf("invalid %s %q: %w", key, v, err))
		return def
	}
	return d
}

func (p *parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}
