package llmclient

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// Client wraps a Vertex AI Gemini model for the single-shot, non-streaming
// chat calls intent extraction and plan generation both need.
type Client struct {
	client *genai.Client
	model  string
}

// New creates a Client against the given project/location, using whatever
// credentials google.FindDefaultCredentials resolves (service account,
// workload identity, or local ADC), exactly as the rest of this module's
// Google Cloud adapters do.
func New(ctx context.Context, project, location, model string) (*Client, error) {
	c, err := genai.NewClient(ctx, project, location)
	if err != nil {
		return nil, fmt.Errorf("llmclient.New: %w", err)
	}
	return &Client{client: c, model: model}, nil
}

// Chat sends a system instruction and a single user turn, returning the
// concatenated text of the first candidate. Retries on rate-limit errors
// with the shared backoff schedule.
func (c *Client) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return withRetry(ctx, "llmclient.Chat", func() (string, error) {
		return c.chatOnce(ctx, systemPrompt, userPrompt)
	})
}

func (c *Client) chatOnce(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("llmclient.Chat: generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("llmclient.Chat: empty response from model")
	}

	var parts []string
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			parts = append(parts, string(t))
		}
	}
	return strings.Join(parts, ""), nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.client.Close()
}
