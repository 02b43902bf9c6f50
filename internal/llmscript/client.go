// Package llmscript generates the intro and per-movie hook scripts.
package llmscript

import (
	"context"
	"fmt"
	"log"

	openai "github.com/sashabaranov/go-openai"
)

// Client wraps the chat-completion call the generator drives through its
// retry state machine. Kept thin and mockable: the generator owns all
// prompt-building, validation, and retry policy.
type Client struct {
	inner *openai.Client
	model string
}

// NewClient builds a Client bound to the given API key.
func NewClient(apiKey string) *Client {
	return &Client{inner: openai.NewClient(apiKey), model: "gpt-5-mini"}
}

// Complete issues a single chat-completion request and returns the first
// choice's message content. Transport errors are returned verbatim so the
// caller can apply its own backoff policy.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, error) {
	resp, err := c.inner.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}

	content := resp.Choices[0].Message.Content
	log.Printf("[llmscript] completion received (%d chars, temp=%.2f)", len(content), temperature)
	return content, nil
}
