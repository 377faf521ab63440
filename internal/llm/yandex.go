package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/Morwran/yagpt"
)

// YandexClient exchanges the OAuth token for an IAM token on first use rather
// than at construction, keeping credential problems out of startup.
type YandexClient struct {
	oauthToken string
	folderID   string

	mu       sync.Mutex
	ya       yagpt.YaGPTFace
	iamToken string
}

func NewYandex(oauthToken, folderID string) *YandexClient {
	return &YandexClient{oauthToken: oauthToken, folderID: folderID}
}

func (c *YandexClient) init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ya != nil {
		return nil
	}
	// Create IAM token from OAuth token
	iam, err := yagpt.NewYaIam(c.oauthToken)
	if err != nil {
		return fmt.Errorf("failed to init yandex iam: %w", err)
	}
	resp, err := iam.Create()
	if err != nil {
		return fmt.Errorf("failed to create iam token: %w", err)
	}
	ya, err := yagpt.NewYagpt(c.folderID)
	if err != nil {
		return fmt.Errorf("failed to init yagpt: %w", err)
	}
	c.ya = ya
	c.iamToken = resp.IamToken
	return nil
}

func (c *YandexClient) Generate(ctx context.Context, req Request) (Response, error) {
	if err := c.init(); err != nil {
		return Response{}, err
	}

	var messages []yagpt.Message
	if req.System != "" {
		messages = append(messages, yagpt.Message{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msg := yagpt.Message{Role: "user", Content: m.Content}
		if m.Role == RoleAssistant {
			msg.Role = "assistant"
		}
		messages = append(messages, msg)
	}

	resp, err := c.ya.CompletionWithCtx(ctx, c.iamToken, messages)
	if err != nil {
		return Response{}, fmt.Errorf("yagpt completion failed: %w", err)
	}
	if resp == nil || len(resp.Alternatives) == 0 {
		return Response{}, fmt.Errorf("yagpt returned empty response")
	}
	out := Response{Content: resp.Alternatives[0].Message.Content, Model: yagpt.YaModelLite}
	out.PromptTokens = int(resp.Usage.InputTextTokens)
	out.CompletionTokens = int(resp.Usage.CompletionTokens)
	out.TotalTokens = int(resp.Usage.TotalTokens)
	return out, nil
}
