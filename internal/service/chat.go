package service

import (
	"context"
	"fmt"

	"github.com/vitormoschetta/study-buddy/internal/provider"
)

// ChatService monta o prompt de turno único e delega ao provedor.
// Não guarda estado entre chamadas.
type ChatService struct {
	provider provider.Provider
}

func NewChatService(p provider.Provider) *ChatService {
	return &ChatService{provider: p}
}

// BuildPrompt embute o texto do usuário no formato de turno único.
func BuildPrompt(text string) string {
	return "User: " + text + "\nAI:"
}

// Reply retorna o texto gerado sem nenhuma transformação.
func (s *ChatService) Reply(ctx context.Context, text string) (string, error) {
	reply, err := s.provider.Generate(ctx, BuildPrompt(text))
	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}
	return reply, nil
}
