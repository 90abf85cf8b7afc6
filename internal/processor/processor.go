// Package processor drives one mention event through the admission-to-reply
// pipeline: credential resolution, conversation resolution, idempotent
// admission, bounded history, completion, persistence, posting, and the
// processed-flag flip.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coralward/threadrelay/internal/history"
	"github.com/coralward/threadrelay/llm"
	"github.com/coralward/threadrelay/store"
)

// Outcome is how one event's processing ended. Expected conditions (duplicate
// redeliveries) are data, not errors.
type Outcome string

const (
	OutcomeDone      Outcome = "done"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// ErrMalformedEvent marks deliveries missing fields required to even address
// an error notice. Log-only; there is no destination to notify.
var ErrMalformedEvent = errors.New("malformed event")

// BotUserID is the author recorded on outbound ledger entries.
const BotUserID = "BOT"

const errorNotice = "I apologize, but I encountered an error processing your request."

type Completer interface {
	Reply(ctx context.Context, messages []llm.Message) string
}

type Poster interface {
	PostMessage(ctx context.Context, token, channelID, text, threadTS string) error
}

type Dependencies struct {
	Logger        *slog.Logger
	Credentials   *store.Credentials
	Conversations *store.Conversations
	Messages      *store.Messages
	Completion    Completer
	Poster        Poster
	HistoryLimit  int
}

type Processor struct {
	logger        *slog.Logger
	credentials   *store.Credentials
	conversations *store.Conversations
	messages      *store.Messages
	completion    Completer
	poster        Poster
	historyLimit  int
}

func New(d Dependencies) (*Processor, error) {
	if d.Credentials == nil || d.Conversations == nil || d.Messages == nil {
		return nil, fmt.Errorf("store dependencies are required")
	}
	if d.Completion == nil {
		return nil, fmt.Errorf("Completion dependency missing")
	}
	if d.Poster == nil {
		return nil, fmt.Errorf("Poster dependency missing")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := d.HistoryLimit
	if limit <= 0 {
		limit = store.DefaultWindow
	}
	return &Processor{
		logger:        logger,
		credentials:   d.Credentials,
		conversations: d.Conversations,
		messages:      d.Messages,
		completion:    d.Completion,
		poster:        d.Poster,
		historyLimit:  limit,
	}, nil
}

// Process runs the pipeline for one event. Errors are contained: after the
// credential resolves, any failure triggers one best-effort error notice to
// the originating thread and an OutcomeFailed, never a panic or an unposted
// half-state the caller has to unwind.
func (p *Processor) Process(ctx context.Context, event MentionEvent) (Outcome, error) {
	teamID := strings.TrimSpace(event.TeamID)
	channelID := strings.TrimSpace(event.ChannelID)
	eventTS := strings.TrimSpace(event.EventTS)
	if teamID == "" || channelID == "" || eventTS == "" {
		p.logger.Warn("event_malformed", "team_id", teamID, "channel_id", channelID, "event_ts", eventTS)
		return OutcomeFailed, fmt.Errorf("%w: team, channel and ts are required", ErrMalformedEvent)
	}

	token, err := p.credentials.Lookup(ctx, teamID)
	if err != nil {
		if errors.Is(err, store.ErrCredentialNotFound) {
			p.logger.Warn("event_credential_missing", "team_id", teamID, "channel_id", channelID)
		} else {
			p.logger.Error("credential_lookup_error", "team_id", teamID, "error", err.Error())
		}
		// No token, no destination: drop without a user-facing notice.
		return OutcomeFailed, err
	}

	threadTS := event.Thread()
	conv, err := p.conversations.GetOrCreate(ctx, channelID, threadTS)
	if err != nil {
		return p.fail(ctx, token, event, "conversation_resolve_error", err)
	}

	key := EventKey(eventTS)
	seen, err := p.messages.Exists(ctx, key)
	if err != nil {
		return p.fail(ctx, token, event, "admission_check_error", err)
	}
	if seen {
		p.logger.Info("event_duplicate", "message_id", key, "channel_id", channelID)
		return OutcomeDuplicate, nil
	}

	if _, err := p.messages.Append(ctx, conv, event.Text, event.UserID, false, key, false); err != nil {
		if errors.Is(err, store.ErrDuplicateMessage) {
			// Concurrent redelivery won the insert race. Already handled.
			p.logger.Info("event_duplicate", "message_id", key, "channel_id", channelID)
			return OutcomeDuplicate, nil
		}
		return p.fail(ctx, token, event, "inbound_append_error", err)
	}

	window, err := p.messages.RecentWindow(ctx, conv, p.historyLimit)
	if err != nil {
		return p.fail(ctx, token, event, "history_fetch_error", err)
	}

	reply := p.completion.Reply(ctx, history.Format(window))

	if _, err := p.messages.Append(ctx, conv, reply, BotUserID, true, NewBotMessageID(), true); err != nil {
		return p.fail(ctx, token, event, "outbound_append_error", err)
	}

	if err := p.poster.PostMessage(ctx, token, channelID, reply, threadTS); err != nil {
		// Accepted partial state: the reply is in the ledger and will appear
		// in future history even though the live post failed. The inbound
		// message stays unprocessed.
		p.logger.Warn("slack_post_error", "channel_id", channelID, "thread_ts", threadTS, "error", err.Error())
		p.notify(ctx, token, channelID, threadTS)
		return OutcomeFailed, err
	}

	if err := p.messages.MarkProcessed(ctx, conv, key); err != nil {
		return p.fail(ctx, token, event, "mark_processed_error", err)
	}

	p.logger.Info("event_done", "team_id", teamID, "channel_id", channelID, "thread_ts", threadTS, "message_id", key)
	return OutcomeDone, nil
}

func (p *Processor) fail(ctx context.Context, token string, event MentionEvent, stage string, err error) (Outcome, error) {
	p.logger.Error("event_failed", "stage", stage, "team_id", event.TeamID, "channel_id", event.ChannelID, "event_ts", event.EventTS, "error", err.Error())
	p.notify(ctx, token, strings.TrimSpace(event.ChannelID), event.Thread())
	return OutcomeFailed, err
}

func (p *Processor) notify(ctx context.Context, token, channelID, threadTS string) {
	if postErr := p.poster.PostMessage(ctx, token, channelID, errorNotice, threadTS); postErr != nil {
		p.logger.Warn("error_notice_failed", "channel_id", channelID, "error", postErr.Error())
	}
}
