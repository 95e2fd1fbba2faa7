package vertexai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2/google"
)

// EmbeddingProvider calls the Vertex AI text embedding REST API. It
// implements the service-layer EmbeddingProvider interface consumed by the
// Embedder service.
type EmbeddingProvider struct {
	project    string
	location   string
	model      string
	maxRetries int
	client     *http.Client
}

// NewEmbeddingProvider creates an EmbeddingProvider using application default
// credentials.
func NewEmbeddingProvider(ctx context.Context, project, location, model string, maxRetries int) (*EmbeddingProvider, error) {
	client, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("vertexai.NewEmbeddingProvider: %w", err)
	}
	return &EmbeddingProvider{
		project:    project,
		location:   location,
		model:      model,
		maxRetries: maxRetries,
		client:     client,
	}, nil
}

type embeddingRequest struct {
	Instances []embeddingInstance `json:"instances"`
}

type embeddingInstance struct {
	Content  string `json:"content"`
	TaskType string `json:"task_type"`
}

type embeddingResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

// EmbedDocuments embeds chunk content using the RETRIEVAL_DOCUMENT task type.
func (p *EmbeddingProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embedWithTaskType(ctx, texts, "RETRIEVAL_DOCUMENT")
}

// EmbedQuery embeds a single search query using the RETRIEVAL_QUERY task
// type. text-embedding-004 produces distinct vector spaces per task type,
// optimized for asymmetric retrieval, so queries and documents must not be
// embedded with the same call.
func (p *EmbeddingProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embedWithTaskType(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("vertexai.EmbedQuery: empty response from model")
	}
	return vecs[0], nil
}

func (p *EmbeddingProvider) embedWithTaskType(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	return withRetry(ctx, "EmbedTexts", p.maxRetries, func() ([][]float32, error) {
		return p.doEmbed(ctx, texts, taskType)
	})
}

func (p *EmbeddingProvider) doEmbed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	instances := make([]embeddingInstance, len(texts))
	for i, t := range texts {
		instances[i] = embeddingInstance{Content: t, TaskType: taskType}
	}

	reqBody, err := json.Marshal(embeddingRequest{Instances: instances})
	if err != nil {
		return nil, fmt.Errorf("vertexai.EmbedTexts marshal: %w", err)
	}

	url := p.buildEndpointURL()

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("vertexai.EmbedTexts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vertexai.EmbedTexts call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vertexai.EmbedTexts: status %d: %s", resp.StatusCode, body)
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("vertexai.EmbedTexts decode: %w", err)
	}

	results := make([][]float32, len(embResp.Predictions))
	for i, pr := range embResp.Predictions {
		results[i] = pr.Embeddings.Values
	}
	return results, nil
}

// buildEndpointURL returns the correct Vertex AI endpoint URL. For "global"
// location, uses the non-regional endpoint.
func (p *EmbeddingProvider) buildEndpointURL() string {
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

// HealthCheck validates the embedding service connection.
func (p *EmbeddingProvider) HealthCheck(ctx context.Context) error {
	_, err := p.EmbedQuery(ctx, "health check")
	if err != nil {
		return fmt.Errorf("embedding health check failed: %w", err)
	}
	return nil
}
