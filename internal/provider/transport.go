package provider

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// LoggingTransport registra cada chamada de saída ao provedor.
// Só método, host e path são registrados: a query string pode carregar a chave.
type LoggingTransport struct {
	Base   http.RoundTripper
	Logger zerolog.Logger
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)

	ev := t.Logger.Debug().
		Str("method", req.Method).
		Str("host", req.URL.Host).
		Str("path", req.URL.Path).
		Dur("duration", time.Since(start))
	if err != nil {
		ev.Err(err).Msg("provider request failed")
		return nil, err
	}
	ev.Int("status", resp.StatusCode).Msg("provider request")
	return resp, nil
}
