// Package chat runs one turn end to end: store the question, ask the model,
// store the reply (or the fallback error), record the transcript.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"meowpedia/internal/catalog"
	"meowpedia/internal/gateway"
	"meowpedia/internal/history"
	"meowpedia/internal/llm"
	"meowpedia/internal/storage"
)

var ErrUnknownSuggestion = errors.New("chat: unknown suggestion")

// Asker is the model side of a turn. *gateway.Gateway implements it.
type Asker interface {
	Ask(ctx context.Context, prompt string, history []llm.Message) (gateway.Answer, error)
}

// Turn is the pair of messages a submission produced.
type Turn struct {
	User  history.Message
	Reply history.Message
}

type Service struct {
	asker    Asker
	recorder storage.Recorder
	frontend string
	now      func() time.Time
}

// NewService returns a service that tags recorded events with frontend.
// A nil recorder disables the transcript.
func NewService(asker Asker, recorder storage.Recorder, frontend string) *Service {
	if recorder == nil {
		recorder = storage.Nop{}
	}
	return &Service{asker: asker, recorder: recorder, frontend: frontend, now: time.Now}
}

// WithFrontend returns a copy that records under a different frontend name.
func (s *Service) WithFrontend(frontend string) *Service {
	cp := *s
	cp.frontend = frontend
	return &cp
}

// Submit runs a full turn for text on conv. It blocks until the reply is stored.
// Cancelling ctx does not abort a dispatched turn; the conversation always
// ends idle with exactly one reply appended.
func (s *Service) Submit(ctx context.Context, sessionKey string, conv *history.Conversation, text string) (Turn, error) {
	userMsg, err := conv.AppendUser(text)
	if err != nil {
		return Turn{}, err
	}

	prior := conv.History()
	prior = prior[:len(prior)-1]

	ans, err := s.asker.Ask(context.WithoutCancel(ctx), userMsg.Text, prior)
	var reply history.Message
	if err != nil {
		log.Error("turn failed", "session", sessionKey, "frontend", s.frontend, "err", err)
		reply = conv.AppendError(history.ErrorText)
	} else {
		reply = conv.AppendAssistant(ans.Text, ans.Citations)
		log.Info("turn completed", "session", sessionKey, "frontend", s.frontend,
			"model", ans.Model, "tokens", ans.TotalTokens, "citations", len(reply.Citations))
	}

	ev := storage.Event{
		Timestamp:         s.now().UTC(),
		SessionID:         sessionKey,
		Frontend:          s.frontend,
		UserMessage:       userMsg.Text,
		AssistantResponse: reply.Text,
		IsError:           reply.IsError,
		Citations:         reply.Citations,
		Model:             ans.Model,
	}
	if err := s.recorder.AppendInteraction(ev); err != nil {
		log.Warn("failed to record turn", "session", sessionKey, "err", err)
	}

	return Turn{User: userMsg, Reply: reply}, nil
}

// SubmitSuggestion submits the description of the catalog entry at index.
func (s *Service) SubmitSuggestion(ctx context.Context, sessionKey string, conv *history.Conversation, index int) (Turn, error) {
	sg, ok := catalog.Lookup(index)
	if !ok {
		return Turn{}, ErrUnknownSuggestion
	}
	return s.Submit(ctx, sessionKey, conv, sg.Description)
}
