// Package ai - оценка лидов и анализ переписки. Если OpenAI не настроен
// или ответил ошибкой, используются детерминированные правила.
package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"crm_backend/internal/config"
	"crm_backend/internal/logger"
	"crm_backend/internal/utils"

	openai "github.com/sashabaranov/go-openai"
)

var ErrNotConfigured = errors.New("completion provider is not configured")

// Completer - провайдер текстовых completion
type Completer interface {
	Enabled() bool
	Complete(ctx context.Context, system, prompt string, temperature float32) (string, error)
}

type OpenAIClient struct {
	api        *openai.Client
	model      string
	timeout    time.Duration
	maxRetries int
}

func NewOpenAIClient(cfg *config.Config) *OpenAIClient {
	c := &OpenAIClient{
		model:      cfg.OpenAI.Model,
		timeout:    cfg.Providers.Timeout,
		maxRetries: cfg.Providers.MaxRetries,
	}
	if c.model == "" {
		c.model = "gpt-4o-mini"
	}
	if cfg.OpenAI.APIKey == "" {
		logger.Warn("OpenAI API key not configured, AI features use rule-based fallbacks")
		return c
	}
	c.api = openai.NewClient(cfg.OpenAI.APIKey)
	return c
}

func (c *OpenAIClient) Enabled() bool {
	return c.api != nil
}

func (c *OpenAIClient) Complete(ctx context.Context, system, prompt string, temperature float32) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
	}

	var content string
	start := time.Now()
	err := utils.Retry(ctx, c.maxRetries, func() error {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 && apiErr.HTTPStatusCode != 429 {
				return utils.Permanent(err)
			}
			return err
		}
		if len(resp.Choices) == 0 {
			return utils.Permanent(errors.New("empty completion"))
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	logger.ProviderLog("openai", "chat_completion", time.Since(start), err)
	return stripCodeFence(content), err
}

// stripCodeFence - модели любят заворачивать JSON в ```json ... ```
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
