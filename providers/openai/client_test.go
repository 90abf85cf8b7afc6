package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coralward/threadrelay/llm"
)

func TestChatSendsSamplingParameters(t *testing.T) {
	var got chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi there"}}],"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	res, err := c.Chat(context.Background(), llm.Request{
		Model:       "gpt-4o-mini",
		Messages:    []llm.Message{{Role: "user", Content: "hello"}},
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.Text != "hi there" {
		t.Fatalf("Text = %q, want %q", res.Text, "hi there")
	}
	if res.Usage.TotalTokens != 15 {
		t.Fatalf("TotalTokens = %d, want 15", res.Usage.TotalTokens)
	}
	if got.Model != "gpt-4o-mini" || got.Temperature != 0.7 || got.MaxTokens != 500 {
		t.Fatalf("request = %+v, want model/temperature/max_tokens passed through", got)
	}
}

func TestChatClassifiesQuotaFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	_, err := c.Chat(context.Background(), llm.Request{Model: "gpt-4o-mini"})
	var be *llm.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("Chat() error = %v, want BackendError", err)
	}
	if !be.QuotaExhausted() {
		t.Fatalf("QuotaExhausted() = false for %v", be)
	}
}

func TestChatServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	_, err := c.Chat(context.Background(), llm.Request{Model: "gpt-4o-mini"})
	var be *llm.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("Chat() error = %v, want BackendError", err)
	}
	if be.QuotaExhausted() {
		t.Fatalf("server error misclassified as quota exhaustion")
	}
	if be.Code != "server_error" {
		t.Fatalf("Code = %q, want server_error (fallback to type)", be.Code)
	}
}
