package service

import (
	"context"
	"fmt"
	"math"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
)

// maxBatchSize is the max texts sent to the provider per call.
const maxBatchSize = 250

// EmbeddingProvider abstracts the embedding backend (Vertex AI, or a
// deterministic stub in tests) for testability.
type EmbeddingProvider interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbedderService generates and compares vector embeddings. It holds a
// single provider handle for the life of the process.
type EmbedderService struct {
	provider EmbeddingProvider
	dim      int
}

// NewEmbedderService creates an EmbedderService expecting vectors of dim
// dimensions.
func NewEmbedderService(provider EmbeddingProvider, dim int) *EmbedderService {
	return &EmbedderService{provider: provider, dim: dim}
}

// Embed generates a single L2-normalized query vector.
func (s *EmbedderService) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "service.Embed: text must not be empty")
	}

	vec, err := s.provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProvider, "service.Embed", err)
	}
	if len(vec) != s.dim {
		return nil, apperr.New(apperr.KindProvider, fmt.Sprintf("service.Embed: vector has %d dimensions, want %d", len(vec), s.dim))
	}
	return l2Normalize(vec), nil
}

// EmbedBatch generates L2-normalized document vectors for a slice of texts,
// batching as needed to stay under the provider's per-call limit.
func (s *EmbedderService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "service.EmbedBatch: no texts provided")
	}

	allVectors := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		vectors, err := s.provider.EmbedDocuments(ctx, batch)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindProvider, fmt.Sprintf("service.EmbedBatch: batch %d-%d", i, end), err)
		}

		for j, vec := range vectors {
			if len(vec) != s.dim {
				return nil, apperr.New(apperr.KindProvider, fmt.Sprintf("service.EmbedBatch: vector %d has %d dimensions, want %d", i+j, len(vec), s.dim))
			}
			vectors[j] = l2Normalize(vec)
		}

		allVectors = append(allVectors, vectors...)
	}

	if len(allVectors) != len(texts) {
		return nil, apperr.New(apperr.KindInternal, fmt.Sprintf("service.EmbedBatch: got %d vectors for %d texts", len(allVectors), len(texts)))
	}

	return allVectors, nil
}

// Cosine returns the cosine similarity between two equal-length vectors.
// Both embeddings are already L2-normalized, so this is just their dot
// product; the general formula is still used so callers may pass
// non-normalized vectors safely.
func (s *EmbedderService) Cosine(a, b []float32) float64 {
	return cosine(a, b)
}

func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// l2Normalize normalizes a vector to unit length.
func l2Normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return vec
	}

	result := make([]float32, len(vec))
	for i, v := range vec {
		result[i] = float32(float64(v) / norm)
	}
	return result
}
