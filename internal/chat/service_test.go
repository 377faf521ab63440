package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meowpedia/internal/gateway"
	"meowpedia/internal/history"
	"meowpedia/internal/llm"
	"meowpedia/internal/storage"
)

type askCall struct {
	ctx     context.Context
	prompt  string
	history []llm.Message
}

type fakeAsker struct {
	mu    sync.Mutex
	ans   gateway.Answer
	err   error
	calls []askCall
	// block, when set, is waited on before returning.
	block chan struct{}
	// started receives once per call before blocking.
	started chan struct{}
}

func (f *fakeAsker) Ask(ctx context.Context, prompt string, hist []llm.Message) (gateway.Answer, error) {
	f.mu.Lock()
	f.calls = append(f.calls, askCall{ctx: ctx, prompt: prompt, history: hist})
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return f.ans, f.err
}

type memRecorder struct {
	mu     sync.Mutex
	events []storage.Event
	err    error
}

func (r *memRecorder) AppendInteraction(ev storage.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *memRecorder) LoadInteractions() ([]storage.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]storage.Event(nil), r.events...), nil
}

func TestSubmitAppendsExactlyOnePair(t *testing.T) {
	asker := &fakeAsker{ans: gateway.Answer{Text: "**呼噜**是满足的信号喵~", Model: "m",
		Citations: []llm.Citation{{URI: "https://cats.test", Title: "Purr"}}}}
	rec := &memRecorder{}
	svc := NewService(asker, rec, "web")
	conv := history.NewConversation()

	turn, err := svc.Submit(context.Background(), "web:1", conv, "猫咪为什么会呼噜？")
	require.NoError(t, err)

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, history.RoleUser, msgs[0].Role)
	assert.Equal(t, "猫咪为什么会呼噜？", msgs[0].Text)
	assert.Equal(t, history.RoleAssistant, msgs[1].Role)
	assert.False(t, msgs[1].IsError)
	assert.Equal(t, asker.ans.Citations, msgs[1].Citations)
	assert.Equal(t, history.StateIdle, conv.State())
	assert.Equal(t, msgs[0].ID, turn.User.ID)
	assert.Equal(t, msgs[1].ID, turn.Reply.ID)

	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, "web:1", ev.SessionID)
	assert.Equal(t, "web", ev.Frontend)
	assert.Equal(t, "猫咪为什么会呼噜？", ev.UserMessage)
	assert.Equal(t, asker.ans.Text, ev.AssistantResponse)
	assert.Equal(t, "m", ev.Model)
	assert.False(t, ev.IsError)
}

func TestSubmitSendsPriorTurnsInOrder(t *testing.T) {
	asker := &fakeAsker{ans: gateway.Answer{Text: "a"}}
	svc := NewService(asker, nil, "web")
	conv := history.NewConversation()

	for _, q := range []string{"q1", "q2", "q3"} {
		_, err := svc.Submit(context.Background(), "k", conv, q)
		require.NoError(t, err)
	}

	require.Len(t, asker.calls, 3)
	assert.Empty(t, asker.calls[0].history)
	assert.Equal(t, "q3", asker.calls[2].prompt)
	assert.Equal(t, []llm.Message{
		{Role: "user", Content: "q1"},
		{Role: "assistant", Content: "a"},
		{Role: "user", Content: "q2"},
		{Role: "assistant", Content: "a"},
	}, asker.calls[2].history)
}

func TestSubmitGatewayFailureAppendsErrorMessage(t *testing.T) {
	asker := &fakeAsker{err: &gateway.Error{Op: "ask", Err: errors.New("403")}}
	rec := &memRecorder{}
	conv := history.NewConversation()

	turn, err := NewService(asker, rec, "telegram").Submit(context.Background(), "tg:1", conv, "hi")
	require.NoError(t, err)

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].IsError)
	assert.Equal(t, history.ErrorText, msgs[1].Text)
	assert.True(t, turn.Reply.IsError)
	assert.Equal(t, history.StateIdle, conv.State())
	require.Len(t, rec.events, 1)
	assert.True(t, rec.events[0].IsError)

	// the user can retry straight away
	asker.err = nil
	asker.ans = gateway.Answer{Text: "ok"}
	_, err = NewService(asker, rec, "telegram").Submit(context.Background(), "tg:1", conv, "hi again")
	require.NoError(t, err)
	assert.Equal(t, 4, conv.Len())
	assert.Equal(t, []llm.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: history.ErrorText},
	}, asker.calls[1].history)
}

func TestSubmitBlankInputIsNoop(t *testing.T) {
	asker := &fakeAsker{}
	rec := &memRecorder{}
	conv := history.NewConversation()

	_, err := NewService(asker, rec, "web").Submit(context.Background(), "k", conv, " \t\n")
	assert.ErrorIs(t, err, history.ErrEmptyInput)
	assert.Zero(t, conv.Len())
	assert.Empty(t, asker.calls)
	assert.Empty(t, rec.events)
}

func TestSubmitRejectsWhileAwaiting(t *testing.T) {
	asker := &fakeAsker{ans: gateway.Answer{Text: "slow"}, block: make(chan struct{}), started: make(chan struct{}, 1)}
	svc := NewService(asker, nil, "web")
	conv := history.NewConversation()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), "k", conv, "first")
		done <- err
	}()
	<-asker.started

	assert.Equal(t, history.StateAwaitingResponse, conv.State())
	_, err := svc.Submit(context.Background(), "k", conv, "second")
	assert.ErrorIs(t, err, history.ErrTurnInProgress)

	close(asker.block)
	require.NoError(t, <-done)
	assert.Equal(t, 2, conv.Len())
	assert.Equal(t, history.StateIdle, conv.State())
}

func TestSubmitIgnoresCallerCancellation(t *testing.T) {
	asker := &fakeAsker{ans: gateway.Answer{Text: "done"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	conv := history.NewConversation()

	_, err := NewService(asker, nil, "web").Submit(ctx, "k", conv, "q")
	require.NoError(t, err)
	require.Len(t, asker.calls, 1)
	assert.NoError(t, asker.calls[0].ctx.Err())
	assert.Equal(t, 2, conv.Len())
	assert.False(t, conv.Messages()[1].IsError)
}

func TestSubmitRecorderFailureDoesNotFailTurn(t *testing.T) {
	asker := &fakeAsker{ans: gateway.Answer{Text: "ok"}}
	rec := &memRecorder{err: errors.New("disk full")}
	conv := history.NewConversation()

	_, err := NewService(asker, rec, "web").Submit(context.Background(), "k", conv, "q")
	require.NoError(t, err)
	assert.Equal(t, 2, conv.Len())
}

func TestSubmitSuggestion(t *testing.T) {
	asker := &fakeAsker{ans: gateway.Answer{Text: "ok"}}
	svc := NewService(asker, nil, "web")
	conv := history.NewConversation()

	_, err := svc.SubmitSuggestion(context.Background(), "k", conv, 0)
	require.NoError(t, err)
	assert.Equal(t, "为什么三花猫绝大多数是女孩子？", conv.Messages()[0].Text)

	_, err = svc.SubmitSuggestion(context.Background(), "k", conv, 9)
	assert.ErrorIs(t, err, ErrUnknownSuggestion)
	assert.Equal(t, 2, conv.Len())
}

func TestWithFrontendTagsEvents(t *testing.T) {
	rec := &memRecorder{}
	base := NewService(&fakeAsker{ans: gateway.Answer{Text: "ok"}}, rec, "web")
	_, err := base.WithFrontend("mcp").Submit(context.Background(), "mcp", history.NewConversation(), "q")
	require.NoError(t, err)
	assert.Equal(t, "mcp", rec.events[0].Frontend)
}
