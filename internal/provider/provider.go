package provider

import (
	"context"
	"errors"
)

var (
	// ErrMissingAPIKey é retornado em toda chamada quando a credencial do
	// provedor não foi configurada.
	ErrMissingAPIKey = errors.New("provider: missing API key (set GEMINI_API_KEY)")
	// ErrEmptyResponse indica que o provedor respondeu sem nenhum texto.
	ErrEmptyResponse = errors.New("provider: response contained no text")
)

// Provider é a capacidade externa de geração de texto: recebe um prompt e
// devolve o texto gerado, de forma síncrona.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Func adapta uma função comum a Provider.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
