package httpapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coralward/threadrelay/internal/processor"
)

type envelopeKind int

const (
	kindIgnored envelopeKind = iota
	kindURLVerification
	kindEventCallback
)

const mentionEventType = "app_mention"

// eventEnvelope is the outer Slack events payload: either a url_verification
// handshake or an event_callback wrapping the actual event.
type eventEnvelope struct {
	Type      string     `json:"type"`
	Challenge string     `json:"challenge"`
	TeamID    string     `json:"team_id"`
	Event     innerEvent `json:"event"`
}

type innerEvent struct {
	Type     string `json:"type"`
	User     string `json:"user"`
	Text     string `json:"text"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts"`
	Channel  string `json:"channel"`
}

func parseEnvelope(raw []byte) (eventEnvelope, envelopeKind, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return eventEnvelope{}, kindIgnored, fmt.Errorf("invalid json: %w", err)
	}
	switch strings.TrimSpace(env.Type) {
	case "url_verification":
		if strings.TrimSpace(env.Challenge) == "" {
			return env, kindIgnored, fmt.Errorf("url_verification challenge is required")
		}
		return env, kindURLVerification, nil
	case "event_callback":
		return env, kindEventCallback, nil
	default:
		return env, kindIgnored, nil
	}
}

// mentionEvent extracts the app_mention from an event_callback envelope. The
// bool is false for other inner event types; an error means the envelope
// claimed a mention but is missing fields required to process it.
func (env eventEnvelope) mentionEvent() (processor.MentionEvent, bool, error) {
	if strings.TrimSpace(env.Event.Type) != mentionEventType {
		return processor.MentionEvent{}, false, nil
	}
	ev := processor.MentionEvent{
		TeamID:    strings.TrimSpace(env.TeamID),
		ChannelID: strings.TrimSpace(env.Event.Channel),
		UserID:    strings.TrimSpace(env.Event.User),
		Text:      env.Event.Text,
		EventTS:   strings.TrimSpace(env.Event.TS),
		ThreadTS:  strings.TrimSpace(env.Event.ThreadTS),
	}
	if ev.TeamID == "" {
		return processor.MentionEvent{}, false, fmt.Errorf("team_id is required")
	}
	if ev.ChannelID == "" {
		return processor.MentionEvent{}, false, fmt.Errorf("event.channel is required")
	}
	if ev.EventTS == "" {
		return processor.MentionEvent{}, false, fmt.Errorf("event.ts is required")
	}
	return ev, true, nil
}
