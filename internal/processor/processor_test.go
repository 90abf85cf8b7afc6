package processor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/coralward/threadrelay/db"
	"github.com/coralward/threadrelay/db/models"
	"github.com/coralward/threadrelay/internal/completion"
	"github.com/coralward/threadrelay/internal/history"
	"github.com/coralward/threadrelay/llm"
	"github.com/coralward/threadrelay/store"
)

type postCall struct {
	Token    string
	Channel  string
	Text     string
	ThreadTS string
}

type fakePoster struct {
	mu    sync.Mutex
	calls []postCall
	err   error
}

func (f *fakePoster) PostMessage(ctx context.Context, token, channelID, text, threadTS string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, postCall{Token: token, Channel: channelID, Text: text, ThreadTS: threadTS})
	return f.err
}

func (f *fakePoster) Calls() []postCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]postCall(nil), f.calls...)
}

type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	prompts [][]llm.Message
}

func (f *fakeCompleter) Reply(ctx context.Context, messages []llm.Message) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, append([]llm.Message(nil), messages...))
	return f.reply
}

type env struct {
	gdb           *gorm.DB
	credentials   *store.Credentials
	conversations *store.Conversations
	messages      *store.Messages
	poster        *fakePoster
	completer     *fakeCompleter
	proc          *Processor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := db.DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "relay.sqlite")
	gdb, err := db.Open(cfg)
	require.NoError(t, err)

	e := &env{
		gdb:           gdb,
		credentials:   store.NewCredentials(gdb),
		conversations: store.NewConversations(gdb),
		messages:      store.NewMessages(gdb),
		poster:        &fakePoster{},
		completer:     &fakeCompleter{reply: "generated reply"},
	}
	e.proc, err = New(Dependencies{
		Credentials:   e.credentials,
		Conversations: e.conversations,
		Messages:      e.messages,
		Completion:    e.completer,
		Poster:        e.poster,
	})
	require.NoError(t, err)
	return e
}

func (e *env) countMessages(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.gdb.Model(&models.Message{}).Count(&n).Error)
	return n
}

func (e *env) countConversations(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.gdb.Model(&models.Conversation{}).Count(&n).Error)
	return n
}

func mention() MentionEvent {
	return MentionEvent{
		TeamID:    "T1",
		ChannelID: "C1",
		UserID:    "U1",
		Text:      "hello",
		EventTS:   "100",
		ThreadTS:  "TS1",
	}
}

func TestProcessFirstMention(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.credentials.Upsert(ctx, "T1", "xoxb-t1"))

	outcome, err := e.proc.Process(ctx, mention())
	require.NoError(t, err)
	require.Equal(t, OutcomeDone, outcome)

	conv, err := e.conversations.GetOrCreate(ctx, "C1", "TS1")
	require.NoError(t, err)
	require.Equal(t, int64(1), e.countConversations(t))

	var inbound models.Message
	require.NoError(t, e.gdb.Where("message_id = ?", "slack_100").First(&inbound).Error)
	require.Equal(t, conv.ID, inbound.ConversationID)
	require.False(t, inbound.IsBot)
	require.True(t, inbound.Processed, "inbound message must be flipped after the reply is posted")

	var bot models.Message
	require.NoError(t, e.gdb.Where("is_bot = ?", true).First(&bot).Error)
	require.Equal(t, "generated reply", bot.Content)
	require.True(t, bot.Processed)
	require.Equal(t, BotUserID, bot.UserID)

	// First message: prompt is system + the just-admitted user turn.
	require.Len(t, e.completer.prompts, 1)
	prompt := e.completer.prompts[0]
	require.Len(t, prompt, 2)
	require.Equal(t, history.RoleSystem, prompt[0].Role)
	require.Equal(t, llm.Message{Role: history.RoleUser, Content: "hello"}, prompt[1])

	calls := e.poster.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, postCall{Token: "xoxb-t1", Channel: "C1", Text: "generated reply", ThreadTS: "TS1"}, calls[0])
}

func TestProcessRedelivery(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.credentials.Upsert(ctx, "T1", "xoxb-t1"))

	outcome, err := e.proc.Process(ctx, mention())
	require.NoError(t, err)
	require.Equal(t, OutcomeDone, outcome)
	before := e.countMessages(t)

	outcome, err = e.proc.Process(ctx, mention())
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)
	require.Equal(t, before, e.countMessages(t), "redelivery must not add rows")
	require.Len(t, e.poster.Calls(), 1, "redelivery must not post twice")
}

func TestProcessQuotaExhaustedStoresFallback(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.credentials.Upsert(ctx, "T1", "xoxb-t1"))

	quotaLLM := quotaClient{}
	comp := completion.New(quotaLLM, completion.DefaultConfig(), nil)
	proc, err := New(Dependencies{
		Credentials:   e.credentials,
		Conversations: e.conversations,
		Messages:      e.messages,
		Completion:    comp,
		Poster:        e.poster,
	})
	require.NoError(t, err)

	outcome, err := proc.Process(ctx, mention())
	require.NoError(t, err)
	require.Equal(t, OutcomeDone, outcome)

	var bot models.Message
	require.NoError(t, e.gdb.Where("is_bot = ?", true).First(&bot).Error)
	require.Equal(t, completion.QuotaFallbackText, bot.Content)
}

type quotaClient struct{}

func (quotaClient) Chat(ctx context.Context, req llm.Request) (llm.Result, error) {
	return llm.Result{}, &llm.BackendError{StatusCode: 429, Code: "insufficient_quota", Message: "quota"}
}

func TestProcessMissingCredential(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	ev := mention()
	ev.TeamID = "T9"
	outcome, err := e.proc.Process(ctx, ev)
	require.Equal(t, OutcomeFailed, outcome)
	require.ErrorIs(t, err, store.ErrCredentialNotFound)
	require.Zero(t, e.countConversations(t), "no rows may be written without a credential")
	require.Zero(t, e.countMessages(t))
	require.Empty(t, e.poster.Calls(), "no outbound call without a token")
}

func TestProcessMalformedEvent(t *testing.T) {
	e := newEnv(t)
	ev := mention()
	ev.TeamID = "  "
	outcome, err := e.proc.Process(context.Background(), ev)
	require.Equal(t, OutcomeFailed, outcome)
	require.ErrorIs(t, err, ErrMalformedEvent)
	require.Empty(t, e.poster.Calls())
}

func TestProcessPostFailureKeepsPartialState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.credentials.Upsert(ctx, "T1", "xoxb-t1"))
	e.poster.err = errors.New("network down")

	outcome, err := e.proc.Process(ctx, mention())
	require.Equal(t, OutcomeFailed, outcome)
	require.Error(t, err)

	// Reply is persisted and will show up in future history windows.
	var bot models.Message
	require.NoError(t, e.gdb.Where("is_bot = ?", true).First(&bot).Error)
	require.Equal(t, "generated reply", bot.Content)

	// The inbound message stays unprocessed.
	var inbound models.Message
	require.NoError(t, e.gdb.Where("message_id = ?", "slack_100").First(&inbound).Error)
	require.False(t, inbound.Processed)

	// One reply attempt plus one best-effort error notice.
	require.Len(t, e.poster.Calls(), 2)
}

func TestProcessHistoryWindowOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.credentials.Upsert(ctx, "T1", "xoxb-t1"))

	for i, ts := range []string{"100", "101", "102"} {
		ev := mention()
		ev.EventTS = ts
		ev.Text = []string{"first", "second", "third"}[i]
		outcome, err := e.proc.Process(ctx, ev)
		require.NoError(t, err)
		require.Equal(t, OutcomeDone, outcome)
	}

	// Third event: window holds first/reply/second/reply/third, oldest first,
	// capped at five.
	last := e.completer.prompts[len(e.completer.prompts)-1]
	require.Len(t, last, 6) // system + 5 window entries
	roles := make([]string, 0, 5)
	contents := make([]string, 0, 5)
	for _, m := range last[1:] {
		roles = append(roles, m.Role)
		contents = append(contents, m.Content)
	}
	require.Equal(t, []string{history.RoleUser, history.RoleAssistant, history.RoleUser, history.RoleAssistant, history.RoleUser}, roles)
	require.Equal(t, []string{"first", "generated reply", "second", "generated reply", "third"}, contents)
}

func TestEventKeyAndThread(t *testing.T) {
	require.Equal(t, "slack_100", EventKey("100"))

	ev := MentionEvent{EventTS: "200"}
	require.Equal(t, "200", ev.Thread(), "mention without thread_ts roots its own thread")
	ev.ThreadTS = "150"
	require.Equal(t, "150", ev.Thread())
}
