package llm

import (
	"context"
	"fmt"
	"time"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	Cost         float64
}

type Result struct {
	Text     string
	Usage    Usage
	Duration time.Duration
}

type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

type Client interface {
	Chat(ctx context.Context, req Request) (Result, error)
}

// BackendError is a classified completion-backend failure. Code carries the
// provider's machine-readable error code when the response included one.
type BackendError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend http %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backend http %d: %s", e.StatusCode, e.Message)
}

// QuotaExhausted reports whether the failure is a billing/quota condition as
// opposed to a transient one.
func (e *BackendError) QuotaExhausted() bool {
	return e.Code == "insufficient_quota" || e.StatusCode == 429
}
