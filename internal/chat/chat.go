// Package chat sends prompts to a chat completion service.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/config"
)

var (
	// ErrService wraps transport failures, non-2xx statuses and bodies that
	// cannot be decoded.
	ErrService = errors.New("chat service error")
	// ErrEmptyResponse is returned when the service answers without content.
	ErrEmptyResponse = errors.New("empty chat response")
)

// Roles used in Message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer returns the assistant reply to a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Ask sends prompt as a single user message.
func Ask(ctx context.Context, c Completer, prompt string) (string, error) {
	return c.Complete(ctx, []Message{{Role: RoleUser, Content: prompt}})
}

// NewFromConfig builds the client named by cfg.Provider.
func NewFromConfig(cfg config.ChatConfig) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "ollama":
		return NewOllamaClient(cfg.Endpoint, cfg.Model, cfg.Timeout), nil
	case "openai":
		return NewOpenAIClient(cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown chat provider %q", cfg.Provider)
	}
}

func reply(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
