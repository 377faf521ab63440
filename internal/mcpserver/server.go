// Package mcpserver exposes the cat encyclopedia as MCP tools. One server
// process holds one conversation.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"meowpedia/internal/catalog"
	"meowpedia/internal/chat"
	"meowpedia/internal/format"
	"meowpedia/internal/history"
)

const sessionKey = "mcp"

// AskParams are the arguments of ask_meow_doctor.
type AskParams struct {
	Question string `json:"question" mcp:"question about cats, in any language"`
}

type ListSuggestionsParams struct{}

type ResetParams struct{}

type Server struct {
	chat *chat.Service
	conv *history.Conversation
}

func New(svc *chat.Service) *Server {
	return &Server{chat: svc, conv: history.NewConversation()}
}

// Register adds the tools to server.
func (s *Server) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_meow_doctor",
		Description: "Asks Dr. Meow, a cat encyclopedia expert, a question. Follow-up questions share the conversation.",
	}, s.Ask)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_suggestions",
		Description: "Lists starter questions about cats",
	}, s.ListSuggestions)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "reset_conversation",
		Description: "Forgets the conversation so far",
	}, s.Reset)
}

func (s *Server) Ask(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[AskParams]) (*mcp.CallToolResultFor[any], error) {
	turn, err := s.chat.Submit(ctx, sessionKey, s.conv, params.Arguments.Question)
	switch {
	case errors.Is(err, history.ErrEmptyInput):
		return errorResult("❌ question is empty"), nil
	case errors.Is(err, history.ErrTurnInProgress):
		return errorResult("❌ still answering the previous question"), nil
	case err != nil:
		return errorResult(fmt.Sprintf("❌ %v", err)), nil
	}

	var b strings.Builder
	b.WriteString(turn.Reply.Text)
	if len(turn.Reply.Citations) > 0 {
		b.WriteString("\n\n")
		b.WriteString(format.CitationsHeading)
		for _, c := range turn.Reply.Citations {
			fmt.Fprintf(&b, "\n- %s: %s", c.Title, c.URI)
		}
	}

	log.Debug("mcp question answered", "is_error", turn.Reply.IsError, "citations", len(turn.Reply.Citations))
	return &mcp.CallToolResultFor[any]{
		IsError: turn.Reply.IsError,
		Content: []mcp.Content{
			&mcp.TextContent{Text: b.String()},
		},
		Meta: map[string]interface{}{
			"citations": len(turn.Reply.Citations),
			"messages":  s.conv.Len(),
		},
	}, nil
}

func (s *Server) ListSuggestions(_ context.Context, _ *mcp.ServerSession, _ *mcp.CallToolParamsFor[ListSuggestionsParams]) (*mcp.CallToolResultFor[any], error) {
	var b strings.Builder
	for i, sg := range catalog.Suggestions() {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s %s: %s", i+1, sg.Icon, sg.Title, sg.Description)
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: b.String()},
		},
	}, nil
}

func (s *Server) Reset(_ context.Context, _ *mcp.ServerSession, _ *mcp.CallToolParamsFor[ResetParams]) (*mcp.CallToolResultFor[any], error) {
	if err := s.conv.Reset(); err != nil {
		return errorResult("❌ still answering the previous question"), nil
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "✅ conversation reset"},
		},
	}, nil
}

func errorResult(text string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
