package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// GenerationProvider abstracts the LLM backend (Vertex AI, or a
// deterministic stub in tests) for testability. Retrying on transient
// provider errors is the provider's own responsibility (vertexai.withRetry),
// not the Generator's.
type GenerationProvider interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const defaultSystemPrompt = `You are a retrieval-augmented assistant.
Rules:
- Answer only from the provided context chunks. Never speculate beyond them.
- Cite sources as [1], [2], [3] referencing the chunk indices below.
- If the context is insufficient to answer, say so explicitly.
- Be direct and concise.
- Return your response as JSON with this structure:
{"answer": "...", "citations": [{"chunkIndex": 1, "excerpt": "...", "relevance": 0.9}], "confidence": 0.85}`

// Citation maps an inline [N] citation marker in a generated answer back to
// the chunk it references.
type Citation struct {
	ChunkID   string
	Excerpt   string
	Relevance float64
	Index     int // 1-based, matching the [N] marker and the prompt's chunk numbering
}

// GeneratorService assembles a grounded prompt from retrieved chunks and
// calls the configured LLM provider.
type GeneratorService struct {
	provider GenerationProvider
}

// NewGeneratorService creates a GeneratorService.
func NewGeneratorService(provider GenerationProvider) *GeneratorService {
	return &GeneratorService{provider: provider}
}

// Generate builds a prompt that states the system role, enumerates the
// retrieved chunks with provenance and content, and echoes the query, then
// calls the LLM provider and parses its JSON answer/citations/confidence
// contract. It records a "generate" phase step on tracer (naming the
// citation count and confidence reached) and returns that same step to the
// caller for convenience.
func (s *GeneratorService) Generate(ctx context.Context, query string, chunks []RankedChunk, tracer *Tracer) (string, []model.ReasoningStep, error) {
	if query == "" {
		return "", nil, apperr.New(apperr.KindInvalidInput, "service.Generate: query is empty")
	}

	tracer.MarkPhaseStart(model.PhaseGenerate)

	userPrompt := buildUserPrompt(query, chunks)

	raw, err := s.provider.Generate(ctx, defaultSystemPrompt, userPrompt)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.KindProvider, "service.Generate", err)
	}

	answer, citations, confidence := parseGenerationResponse(raw, chunks)

	tracer.MarkPhaseEnd(model.PhaseGenerate, fmt.Sprintf("generated answer from %d chunks, %d citations, confidence %.2f", len(chunks), len(citations), confidence))
	_, steps := tracer.Snapshot()

	return answer, lastSteps(steps, model.PhaseGenerate), nil
}

// lastSteps returns the trailing run of steps matching phase, i.e. the
// step(s) just appended for this call.
func lastSteps(steps []model.ReasoningStep, phase model.ReasoningPhase) []model.ReasoningStep {
	var out []model.ReasoningStep
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Phase != phase {
			break
		}
		out = append([]model.ReasoningStep{steps[i]}, out...)
	}
	return out
}

// buildUserPrompt constructs the user message: retrieved chunks with
// provenance, followed by the query.
func buildUserPrompt(query string, chunks []RankedChunk) string {
	var sb strings.Builder

	sb.WriteString("=== RETRIEVED CONTEXT ===\n")
	for i, c := range chunks {
		sb.WriteString(fmt.Sprintf("[%d] (%s, score: %.4f)\n%s\n\n", i+1, c.Chunk.Slug(), c.EffectiveScore, c.Chunk.Content))
	}

	sb.WriteString("=== QUERY ===\n")
	sb.WriteString(query)
	sb.WriteString("\n\n")

	sb.WriteString("Respond with JSON: {\"answer\": \"...\", \"citations\": [{\"chunkIndex\": N, \"excerpt\": \"...\", \"relevance\": 0.0-1.0}], \"confidence\": 0.0-1.0}")

	return sb.String()
}

// generationJSON is the expected JSON structure of a provider's raw response.
type generationJSON struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	Citations  []struct {
		ChunkIndex int     `json:"chunkIndex"`
		Excerpt    string  `json:"excerpt"`
		Relevance  float64 `json:"relevance"`
	} `json:"citations"`
}

// parseGenerationResponse extracts the answer text, citations, and
// confidence from the provider's raw response, stripping a markdown code
// fence first if the model wrapped its JSON in one. A response that isn't
// valid JSON is treated as a plain-text answer with no citations and a
// neutral confidence rather than failing the request — a model that ignores
// the JSON contract shouldn't sink an otherwise-grounded answer.
func parseGenerationResponse(raw string, chunks []RankedChunk) (string, []Citation, float64) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		lines := strings.Split(cleaned, "\n")
		if len(lines) >= 3 {
			cleaned = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}
	cleaned = strings.TrimSpace(cleaned)

	var parsed generationJSON
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return raw, nil, 0.5
	}

	citations := make([]Citation, 0, len(parsed.Citations))
	for _, c := range parsed.Citations {
		if c.ChunkIndex < 1 || c.ChunkIndex > len(chunks) {
			continue // skip out-of-range citation indices
		}
		citations = append(citations, Citation{
			ChunkID:   chunks[c.ChunkIndex-1].Chunk.ID,
			Excerpt:   c.Excerpt,
			Relevance: c.Relevance,
			Index:     c.ChunkIndex,
		})
	}

	confidence := parsed.Confidence
	if confidence <= 0 && len(citations) > 0 {
		confidence = float64(len(citations)) * 0.2
		if confidence > 1.0 {
			confidence = 1.0
		}
	}

	return parsed.Answer, citations, confidence
}
