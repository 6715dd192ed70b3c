package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pdfchat/pdfchat/internal/config"
)

// OllamaClient implements Client for a local Ollama runtime
type OllamaClient struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

// OllamaEmbedRequest is the request format for the Ollama embed API
type OllamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// OllamaEmbedResponse is the response from the Ollama embed API
type OllamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaClient creates a new Ollama embedding client
func NewOllamaClient(cfg *config.EmbeddingConfig) (*OllamaClient, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	model := cfg.Model
	if model == "" {
		return nil, fmt.Errorf("ollama embedding model is required")
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OllamaClient{
		baseURL:    baseURL,
		model:      model,
		dimensions: cfg.Dimensions,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Embed generates an embedding for a single text
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, &ServiceError{Provider: "ollama", Err: fmt.Errorf("no embedding returned")}
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts
func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody, err := json.Marshal(OllamaEmbedRequest{
		Model: c.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		c.baseURL+"/api/embed", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &ServiceError{Provider: "ollama", Err: err, Retryable: isTransportError(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{Provider: "ollama", Err: fmt.Errorf("failed to read response: %w", err), Retryable: true}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{
			Provider:  "ollama",
			Err:       fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body)),
			Retryable: resp.StatusCode >= 500,
		}
	}

	var apiResp OllamaEmbedResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, &ServiceError{Provider: "ollama", Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	if len(apiResp.Embeddings) != len(texts) {
		return nil, &ServiceError{
			Provider: "ollama",
			Err:      fmt.Errorf("expected %d embeddings, got %d", len(texts), len(apiResp.Embeddings)),
		}
	}

	return apiResp.Embeddings, nil
}

// Dimensions returns the dimension of the embeddings
func (c *OllamaClient) Dimensions() int {
	return c.dimensions
}

// isTransportError classifies connection-level failures as retryable
func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// Timeouts and refused connections surface as url.Error; both are
	// worth retrying against a model runtime that may still be starting.
	return true
}
