package llm

import "context"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

// Citation is a web reference attached by the provider's search grounding.
// Fields are passed through as received and may be empty.
type Citation struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type Request struct {
	System      string
	Messages    []Message
	Temperature float32
	// Search asks the provider to ground the answer with web search when it supports it.
	Search bool
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Citations        []Citation
}

type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}
