package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/phuslu/log"

	"github.com/dyike/stella/config"
)

// Generator is the single text-generation capability the agent needs.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type chatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// ChatGenerator sends one user message per call to an eino chat model.
type ChatGenerator struct {
	model   chatModel
	timeout time.Duration
}

func newChatModel(ctx context.Context, cfg config.LLMConfig) (chatModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key not configured")
	}
	switch cfg.Provider {
	case "openai":
		maxTokens := cfg.MaxTokens
		conf := &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
		}
		if maxTokens > 0 {
			conf.MaxTokens = &maxTokens
		}
		return openai.NewChatModel(ctx, conf)
	case "deepseek":
		conf := &deepseek.ChatModelConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		}
		if cfg.BaseURL != "" {
			conf.BaseURL = cfg.BaseURL
		}
		return deepseek.NewChatModel(ctx, conf)
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

func NewChatGenerator(ctx context.Context, cfg config.LLMConfig, timeout time.Duration) (*ChatGenerator, error) {
	m, err := newChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &ChatGenerator{model: m, timeout: timeout}, nil
}

func (g *ChatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	msg, err := g.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("llm generate: %w", err)
	}
	log.Debug().Dur("elapsed", time.Since(start)).Int("prompt_len", len(prompt)).Msg("llm generate")
	return strings.TrimSpace(msg.Content), nil
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
