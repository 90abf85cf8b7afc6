// Package completion adapts the raw LLM client to the relay's contract: a
// bounded call that always produces reply text, never an error. Backend
// failures are classified and replaced with fixed fallback messages so the
// persistence and reply steps downstream run uniformly.
package completion

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/coralward/threadrelay/llm"
)

const (
	// QuotaFallbackText is returned when the backend reports quota exhaustion.
	QuotaFallbackText = "I'm sorry, the assistant is unavailable right now due to usage limits. Please contact your administrator."
	// RetryFallbackText is returned on any other backend failure, including timeouts.
	RetryFallbackText = "I apologize, but I'm having trouble generating a response right now. Please try again."
)

type Config struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	RequestTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Model:          "gpt-4o-mini",
		Temperature:    0.7,
		MaxTokens:      500,
		RequestTimeout: 60 * time.Second,
	}
}

type Client struct {
	llm    llm.Client
	cfg    Config
	logger *slog.Logger
}

func New(client llm.Client, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	return &Client{llm: client, cfg: cfg, logger: logger}
}

// Reply sends the role-tagged messages to the backend and returns the reply
// text. It does not fail: quota exhaustion yields the administrator-contact
// fallback, everything else the try-again fallback.
func (c *Client) Reply(ctx context.Context, messages []llm.Message) string {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	res, err := c.llm.Chat(ctx, llm.Request{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		var be *llm.BackendError
		if errors.As(err, &be) && be.QuotaExhausted() {
			c.logger.Warn("completion_quota_exhausted", "error", err.Error())
			return QuotaFallbackText
		}
		c.logger.Warn("completion_error", "error", err.Error())
		return RetryFallbackText
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		c.logger.Warn("completion_empty_reply", "model", c.cfg.Model)
		return RetryFallbackText
	}
	return text
}
