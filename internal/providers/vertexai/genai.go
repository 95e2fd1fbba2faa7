package vertexai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"golang.org/x/oauth2/google"
)

// GenerationProvider wraps the Vertex AI Gemini client, implementing the
// service-layer GenerationProvider interface consumed by the Generator.
// Supports both regional endpoints (via the Go SDK) and the global endpoint
// (via REST), since the SDK has no global-endpoint support.
type GenerationProvider struct {
	client     *genai.Client // nil when using the REST path
	httpClient *http.Client  // used for global-endpoint REST calls
	project    string
	location   string
	model      string
	maxRetries int
	useREST    bool
}

// NewGenerationProvider creates a GenerationProvider. For location "global"
// it uses the REST API directly, since the vertexai/genai SDK does not
// support the global endpoint.
func NewGenerationProvider(ctx context.Context, project, location, model string, maxRetries int) (*GenerationProvider, error) {
	if location == "global" {
		httpClient, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			return nil, fmt.Errorf("vertexai.NewGenerationProvider: default credentials: %w", err)
		}
		return &GenerationProvider{
			httpClient: httpClient,
			project:    project,
			location:   location,
			model:      model,
			maxRetries: maxRetries,
			useREST:    true,
		}, nil
	}

	client, err := genai.NewClient(ctx, project, location)
	if err != nil {
		return nil, fmt.Errorf("vertexai.NewGenerationProvider: %w", err)
	}
	return &GenerationProvider{
		client:     client,
		project:    project,
		location:   location,
		model:      model,
		maxRetries: maxRetries,
	}, nil
}

// Generate sends a system + user prompt pair to Gemini and returns the raw
// text response. Retries on 429/RESOURCE_EXHAUSTED per the configured
// maxRetries, with 500ms->1000ms->2000ms backoff (4s ceiling).
func (p *GenerationProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return withRetry(ctx, "Generate", p.maxRetries, func() (string, error) {
		if p.useREST {
			return p.generateREST(ctx, systemPrompt, userPrompt)
		}
		return p.generateSDK(ctx, systemPrompt, userPrompt)
	})
}

func (p *GenerationProvider) generateSDK(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	model := p.client.GenerativeModel(p.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("vertexai.Generate: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("vertexai.Generate: empty response from model")
	}

	var parts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			parts = append(parts, string(t))
		}
	}
	return strings.Join(parts, ""), nil
}

type restGenerateRequest struct {
	Contents          []restContent         `json:"contents"`
	SystemInstruction *restContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *restGenerationConfig `json:"generationConfig,omitempty"`
}

type restContent struct {
	Role  string     `json:"role"`
	Parts []restPart `json:"parts"`
}

type restPart struct {
	Text string `json:"text"`
}

type restGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type restGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *GenerationProvider) generateREST(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	url := fmt.Sprintf(
		"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:generateContent",
		p.project, p.model,
	)

	reqBody := restGenerateRequest{
		Contents: []restContent{
			{Role: "user", Parts: []restPart{{Text: userPrompt}}},
		},
	}
	if systemPrompt != "" {
		reqBody.SystemInstruction = &restContent{
			Role:  "user",
			Parts: []restPart{{Text: systemPrompt}},
		}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("vertexai.Generate: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("vertexai.Generate: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("vertexai.Generate: call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("vertexai.Generate: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vertexai.Generate: status %d: %s", resp.StatusCode, respBody)
	}

	var genResp restGenerateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", fmt.Errorf("vertexai.Generate: decode: %w", err)
	}
	if genResp.Error != nil {
		return "", fmt.Errorf("vertexai.Generate: API error %d: %s", genResp.Error.Code, genResp.Error.Message)
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("vertexai.Generate: empty response from model")
	}

	var parts []string
	for _, part := range genResp.Candidates[0].Content.Parts {
		if part.Text != "" {
			parts = append(parts, part.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("vertexai.Generate: no text in response")
	}
	return strings.Join(parts, ""), nil
}

// HealthCheck validates the Vertex AI connection with a minimal call.
func (p *GenerationProvider) HealthCheck(ctx context.Context) error {
	resp, err := p.Generate(ctx, "", "Reply with only: OK")
	if err != nil {
		return fmt.Errorf("vertex AI health check failed (model: %s, location: %s): %w", p.model, p.location, err)
	}
	if resp == "" {
		return fmt.Errorf("vertex AI returned empty response (model: %s)", p.model)
	}
	slog.Info("vertex ai health check passed", "model", p.model, "location", p.location)
	return nil
}

// Close releases the underlying SDK client, when one is in use.
func (p *GenerationProvider) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
