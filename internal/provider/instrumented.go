package provider

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vitormoschetta/study-buddy/internal/metrics"
)

// Instrumented registra latência e resultado de cada chamada.
type Instrumented struct {
	next    Provider
	metrics *metrics.Metrics
}

func NewInstrumented(next Provider, m *metrics.Metrics) *Instrumented {
	return &Instrumented{next: next, metrics: m}
}

func (p *Instrumented) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := p.next.Generate(ctx, prompt)
	p.metrics.ProviderLatency.Observe(time.Since(start).Seconds())
	p.metrics.ProviderCalls.WithLabelValues(outcome(err)).Inc()
	return text, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrMissingAPIKey):
		return "missing_key"
	case errors.Is(err, ErrEmptyResponse):
		return "empty"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
