package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements Client against an OpenAI-compatible chat
// completion endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds a client against model (e.g. "gpt-4o-mini").
// baseURL may be empty to use the default OpenAI API.
func NewOpenAIClient(apiKey, baseURL, model string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), model: model}
}

func (c *OpenAIClient) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

// Expand asks the model for up to n alternative phrasings of query,
// one per line (spec.md §4.7 step 4).
func (c *OpenAIClient) Expand(ctx context.Context, query string, n int) ([]string, error) {
	prompt := fmt.Sprintf("Rewrite this search query %d different ways, preserving its meaning. One rewrite per line, no numbering, no commentary.\n\nQuery: %s", n, query)
	out, err := c.complete(ctx, "You rewrite search queries for a code and notes retrieval system.", prompt)
	if err != nil {
		return nil, err
	}
	lines := splitNonEmptyLines(out)
	if len(lines) > n {
		lines = lines[:n]
	}
	return lines, nil
}

// Hypothesize generates a pseudo-answer document for HyDE-style vector
// search (spec.md Glossary "HyDE").
func (c *OpenAIClient) Hypothesize(ctx context.Context, query string) (string, error) {
	prompt := fmt.Sprintf("Write a short, plausible passage (2-4 sentences) that would appear in documentation or code comments answering this query. Do not mention that this is hypothetical.\n\nQuery: %s", query)
	return c.complete(ctx, "You write hypothetical documentation passages to aid semantic search.", prompt)
}

func (c *OpenAIClient) Available(ctx context.Context) bool {
	_, err := c.client.ListModels(ctx)
	return err == nil
}

var _ Client = (*OpenAIClient)(nil)
