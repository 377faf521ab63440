// Package gateway adapts a prompt and the conversation so far into one model
// request carrying the persona, and turns the reply into text plus citations.
package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/log"

	"meowpedia/internal/llm"
)

var ErrEmptyPrompt = errors.New("gateway: empty prompt")

// Error wraps any failure of the upstream call. No retry is attempted.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "gateway " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

type Answer struct {
	Text        string
	Citations   []llm.Citation
	Model       string
	TotalTokens int
}

type Gateway struct {
	client       llm.Client
	persona      string
	temperature  float32
	search       bool
	historyLimit int
}

type Option func(*Gateway)

func WithPersona(p string) Option {
	return func(g *Gateway) {
		if strings.TrimSpace(p) != "" {
			g.persona = p
		}
	}
}

func WithTemperature(t float32) Option { return func(g *Gateway) { g.temperature = t } }

func WithSearch(on bool) Option { return func(g *Gateway) { g.search = on } }

// WithHistoryLimit keeps only the last n history messages per request; 0 sends everything.
func WithHistoryLimit(n int) Option {
	return func(g *Gateway) {
		if n >= 0 {
			g.historyLimit = n
		}
	}
}

func New(client llm.Client, opts ...Option) *Gateway {
	g := &Gateway{
		client:      client,
		persona:     Persona,
		temperature: DefaultTemperature,
		search:      true,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Gateway) Ask(ctx context.Context, prompt string, history []llm.Message) (Answer, error) {
	if strings.TrimSpace(prompt) == "" {
		return Answer{}, ErrEmptyPrompt
	}

	if g.historyLimit > 0 && len(history) > g.historyLimit {
		history = history[len(history)-g.historyLimit:]
	}
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, h := range history {
		msgs = append(msgs, llm.Message{Role: h.Role, Content: h.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: prompt})

	resp, err := g.client.Generate(ctx, llm.Request{
		System:      g.persona,
		Messages:    msgs,
		Temperature: g.temperature,
		Search:      g.search,
	})
	if err != nil {
		return Answer{}, &Error{Op: "ask", Err: err}
	}

	log.Debug("model replied",
		"model", resp.Model,
		"history", len(history),
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens,
		"total_tokens", resp.TotalTokens,
		"citations", len(resp.Citations))

	text := resp.Content
	if strings.TrimSpace(text) == "" {
		text = DistractedText
	}
	return Answer{
		Text:        text,
		Citations:   usableCitations(resp.Citations),
		Model:       resp.Model,
		TotalTokens: resp.TotalTokens,
	}, nil
}

// usableCitations drops references missing either a URI or a title.
func usableCitations(in []llm.Citation) []llm.Citation {
	var out []llm.Citation
	for _, c := range in {
		if c.URI == "" || c.Title == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}
