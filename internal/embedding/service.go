package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/pdfchat/pdfchat/internal/config"
)

// Service provides embedding generation functionality
type Service struct {
	cfg    *config.EmbeddingConfig
	client Client
}

// Client is the interface for embedding API clients
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// ServiceError wraps a failed call to an embedding backend.
// Retryable errors (timeouts, connection failures, 5xx responses) may be
// retried with backoff; the rest indicate bad input or configuration.
type ServiceError struct {
	Provider  string
	Err       error
	Retryable bool
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("embedding service (%s): %v", e.Provider, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a transient embedding service failure
func IsRetryable(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Retryable
	}
	return false
}

// NewService creates a new embedding service
func NewService(cfg *config.EmbeddingConfig) (*Service, error) {
	svc := &Service{cfg: cfg}

	var client Client
	var err error

	switch cfg.Provider {
	case "ollama":
		client, err = NewOllamaClient(cfg)
	case "openai":
		client, err = NewOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	svc.client = client
	return svc, nil
}

// NewServiceWithClient creates a service around an explicit client.
// Used by tests and callers that resolve the backend themselves.
func NewServiceWithClient(cfg *config.EmbeddingConfig, client Client) *Service {
	return &Service{cfg: cfg, client: client}
}

// Embed generates an embedding for a single text
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}
	vec, err := s.client.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	Normalize(vec)
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts, batched internally up
// to the configured batch size. The result has the same length and order as
// the input. A failure in any batch fails the whole call; no partial vector
// lists are returned.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	results := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[i:end]
		embeddings, err := s.client.EmbedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d-%d: %w", i, end, err)
		}
		if len(embeddings) != len(batch) {
			return nil, fmt.Errorf("embedding batch %d-%d: expected %d vectors, got %d",
				i, end, len(batch), len(embeddings))
		}

		for _, vec := range embeddings {
			Normalize(vec)
			results = append(results, vec)
		}
	}

	return results, nil
}

// Dimensions returns the dimension of the embeddings
func (s *Service) Dimensions() int {
	return s.client.Dimensions()
}

// Normalize scales vec to unit length in place, so cosine similarity reduces
// to a dot product. Zero vectors are left untouched.
func Normalize(vec []float32) {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return
	}
	inv := 1 / float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] *= inv
	}
}

// Similarity computes cosine similarity between two vectors
func Similarity(a, b []float32) float32 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vector dimension mismatch: %d vs %d", len(a), len(b)))
	}

	var dotProduct float32
	var normA float32
	var normB float32

	for i := 0; i < len(a); i++ {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

// Dot computes the dot product of two vectors of equal dimension.
// For unit vectors this equals cosine similarity.
func Dot(a, b []float32) float32 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vector dimension mismatch: %d vs %d", len(a), len(b)))
	}

	var sum float32
	for i := 0; i < len(a); i++ {
		sum += a[i] * b[i]
	}
	return sum
}
