package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/accordlabs/accord/backend/internal/config"
)

// Service wraps the chat model behind the one completion call the engine
// relies on. Callers depend on the Completer interface their own package
// declares, not on this type.
type Service struct {
	chatModel model.ChatModel
	cfg       config.AIConfig
}

// NewService builds the completion service from Ark credentials.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return &Service{chatModel: chatModel, cfg: cfg}, nil
}

// Complete sends a system+user prompt pair and returns the raw model text.
// No structure is assumed about the response; parsing is the caller's
// concern.
func (s *Service) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt),
	}

	var opts []model.Option
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}

	response, err := s.chatModel.Generate(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to run completion: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", fmt.Errorf("empty completion response")
	}

	log.Printf("[ai] completion finished, prompt=%d chars, response=%d chars", len(systemPrompt)+len(userPrompt), len(response.Content))
	return response.Content, nil
}
