package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Chat answers through an OpenAI-compatible chat completions endpoint
// (OpenRouter, Together, DeepInfra, DeepSeek).
type Chat struct {
	endpoint string
	model    string
	http     *httpDoer
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

func (c *Chat) Fetch(ctx context.Context, query string) (string, error) {
	body, err := c.http.postJSON(ctx, strings.TrimRight(c.endpoint, "/")+"/chat/completions", chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: query}},
	})
	if err != nil {
		return "", err
	}
	if msg := gjson.GetBytes(body, "error.message").String(); msg != "" {
		return "", apiError(msg)
	}
	content := strings.TrimSpace(gjson.GetBytes(body, "choices.0.message.content").String())
	if content == "" {
		return "", errNoResult
	}
	return content, nil
}

func apiError(msg string) error {
	if msg == "" {
		msg = "unknown"
	}
	return fmt.Errorf("api error: %s", msg)
}
