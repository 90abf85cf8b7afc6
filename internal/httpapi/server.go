// Package httpapi exposes the relay's inbound surface: the Slack events
// webhook and the OAuth installation redirect. Mention events are acknowledged
// immediately and processed by a bounded worker pool; Slack redelivers on slow
// acks, so the handler never waits on the pipeline.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coralward/threadrelay/internal/processor"
	"github.com/coralward/threadrelay/internal/slackclient"
	"github.com/coralward/threadrelay/internal/worker"
)

const eventQueueSize = 64

type Processor interface {
	Process(ctx context.Context, event processor.MentionEvent) (processor.Outcome, error)
}

type OAuthExchanger interface {
	ExchangeOAuthCode(ctx context.Context, clientID, clientSecret, code string) (slackclient.OAuthResult, error)
}

type CredentialWriter interface {
	Upsert(ctx context.Context, teamID, botToken string) error
}

type Config struct {
	Bind           string
	Port           int
	MaxConcurrency int
	ClientID       string
	ClientSecret   string
}

type Server struct {
	logger      *slog.Logger
	processor   Processor
	exchanger   OAuthExchanger
	credentials CredentialWriter
	cfg         Config

	workersCtx context.Context
	jobs       chan processor.MentionEvent
}

func NewServer(logger *slog.Logger, proc Processor, exchanger OAuthExchanger, credentials CredentialWriter, cfg Config) (*Server, error) {
	if proc == nil {
		return nil, fmt.Errorf("Processor dependency missing")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}
	return &Server{
		logger:      logger,
		processor:   proc,
		exchanger:   exchanger,
		credentials: credentials,
		cfg:         cfg,
		jobs:        make(chan processor.MentionEvent, eventQueueSize),
	}, nil
}

// Start launches the event workers. Must be called before the handler serves
// traffic; workers stop when ctx is canceled.
func (s *Server) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.workersCtx = ctx
	worker.Start(worker.StartOptions[processor.MentionEvent]{
		Ctx:  ctx,
		Sem:  make(chan struct{}, s.cfg.MaxConcurrency),
		Jobs: s.jobs,
		Handle: func(ctx context.Context, ev processor.MentionEvent) {
			outcome, err := s.processor.Process(ctx, ev)
			if err != nil && ctx.Err() == nil {
				s.logger.Warn("event_processing_error", "outcome", string(outcome), "team_id", ev.TeamID, "channel_id", ev.ChannelID, "error", err.Error())
			}
		},
	})
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/slack/events", s.handleEvents)
	mux.HandleFunc("/slack/oauth/callback", s.handleOAuthCallback)
	return mux
}

// ListenAndServe starts the workers and serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.Start(ctx)
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Bind, s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("http_listen", "addr", srv.Addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	env, kind, err := parseEnvelope(raw)
	if err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	switch kind {
	case kindURLVerification:
		writeJSON(w, http.StatusOK, map[string]string{"challenge": env.Challenge})
	case kindEventCallback:
		ev, isMention, err := env.mentionEvent()
		if err != nil {
			// Structurally valid callback with missing fields: acknowledge so
			// the platform stops redelivering, and log the drop.
			s.logger.Warn("event_dropped", "error", err.Error())
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
			return
		}
		if !isMention {
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
			return
		}
		if s.workersCtx == nil {
			http.Error(w, "server not started", http.StatusInternalServerError)
			return
		}
		if err := worker.Enqueue(r.Context(), s.workersCtx, s.jobs, ev); err != nil {
			s.logger.Error("event_enqueue_error", "error", err.Error())
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		// Unknown envelope types are acknowledged and ignored.
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.exchanger == nil || s.credentials == nil {
		http.Error(w, "oauth is not configured", http.StatusInternalServerError)
		return
	}
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	res, err := s.exchanger.ExchangeOAuthCode(r.Context(), s.cfg.ClientID, s.cfg.ClientSecret, code)
	if err != nil {
		var apiErr *slackclient.APIError
		if errors.As(err, &apiErr) {
			http.Error(w, "oauth exchange failed: "+apiErr.Code, http.StatusBadRequest)
			return
		}
		s.logger.Error("oauth_exchange_error", "error", err.Error())
		http.Error(w, "oauth exchange failed", http.StatusBadGateway)
		return
	}

	if err := s.credentials.Upsert(r.Context(), res.TeamID, res.AccessToken); err != nil {
		s.logger.Error("credential_upsert_error", "team_id", res.TeamID, "error", err.Error())
		http.Error(w, "store credential", http.StatusInternalServerError)
		return
	}
	s.logger.Info("workspace_installed", "team_id", res.TeamID, "team_name", res.TeamName)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "team_id": res.TeamID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
