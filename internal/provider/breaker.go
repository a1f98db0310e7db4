package provider

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// BreakerConfig controla quando o circuito abre e por quanto tempo.
type BreakerConfig struct {
	Name                string
	ConsecutiveFailures uint32
	Cooldown            time.Duration
}

// Breaker envolve um Provider com um circuit breaker. Com o circuito
// aberto as chamadas falham na hora, sem tocar no provedor. Não há retry.
type Breaker struct {
	next Provider
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(next Provider, cfg BreakerConfig, logger zerolog.Logger) *Breaker {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 1
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Falta de credencial e cancelamento pelo cliente não dizem nada
		// sobre a saúde do provedor.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrMissingAPIKey) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn().
				Str("circuit_breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	}

	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Generate(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// State expõe o estado atual do circuito.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
