package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2/google"
)

// VertexProvider calls the Vertex AI text-embedding REST predict
// endpoint, handling both the global and regional endpoint shapes.
type VertexProvider struct {
	project  string
	location string
	model    string
	client   *http.Client
}

// NewVertexProvider builds a VertexProvider using application default
// credentials scoped to cloud-platform.
func NewVertexProvider(ctx context.Context, project, location, model string) (*VertexProvider, error) {
	client, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("embedclient.NewVertexProvider: %w", err)
	}
	return &VertexProvider{project: project, location: location, model: model, client: client}, nil
}

type vertexEmbedRequest struct {
	Instances []vertexEmbedInstance `json:"instances"`
}

type vertexEmbedInstance struct {
	Content  string `json:"content"`
	TaskType string `json:"task_type"`
}

type vertexEmbedResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

// EmbedTexts implements Provider.
func (p *VertexProvider) EmbedTexts(ctx context.Context, texts []string, taskType TaskType) ([][]float32, error) {
	instances := make([]vertexEmbedInstance, len(texts))
	for i, t := range texts {
		instances[i] = vertexEmbedInstance{Content: t, TaskType: string(taskType)}
	}

	body, err := json.Marshal(vertexEmbedRequest{Instances: instances})
	if err != nil {
		return nil, fmt.Errorf("embedclient.EmbedTexts: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpointURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedclient.EmbedTexts: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedclient.EmbedTexts: call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedclient.EmbedTexts: status %d: %s", resp.StatusCode, respBody)
	}

	var parsed vertexEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embedclient.EmbedTexts: decode: %w", err)
	}

	results := make([][]float32, len(parsed.Predictions))
	for i, p := range parsed.Predictions {
		results[i] = p.Embeddings.Values
	}
	return results, nil
}

func (p *VertexProvider) endpointURL() string {
	if p.location == "global" {
		return fmt.Sprintf(
			"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:predict",
			p.project, p.model,
		)
	}
	return fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		p.location, p.project, p.location, p.model,
	)
}

// HealthCheck embeds a tiny probe string to confirm the endpoint is reachable.
func (p *VertexProvider) HealthCheck(ctx context.Context) error {
	_, err := p.EmbedTexts(ctx, []string{"health check"}, TaskRetrievalQuery)
	if err != nil {
		return fmt.Errorf("embedclient.HealthCheck: %w", err)
	}
	return nil
}
