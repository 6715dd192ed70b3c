package generation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pdfchat/pdfchat/internal/config"
)

// OllamaClient talks to a local Ollama server's chat API
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
	timeout time.Duration
}

// NewOllamaClient creates an Ollama generation client
func NewOllamaClient(cfg *config.GenerationConfig) (*OllamaClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("generation model is required for ollama provider")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &OllamaClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   cfg.Model,
		// No client-level timeout: streams stay open as long as the
		// model is producing. The per-request context bounds the call.
		client:  &http.Client{},
		timeout: timeout,
	}, nil
}

// OllamaChatRequest is the request body for /api/chat
type OllamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []Message              `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// OllamaChatResponse is one NDJSON line of the /api/chat response
type OllamaChatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// Complete runs a non-streaming chat call and returns the full answer
func (c *OllamaClient) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.send(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chatResp OllamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", &ServiceError{Provider: "ollama", Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if chatResp.Error != "" {
		return "", &ServiceError{Provider: "ollama", Err: fmt.Errorf("model error: %s", chatResp.Error)}
	}
	return chatResp.Message.Content, nil
}

// Stream runs a streaming chat call. Increments arrive as NDJSON lines,
// one JSON object per line, with done=true on the final line.
func (c *OllamaClient) Stream(ctx context.Context, req Request) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	resp, err := c.send(ctx, req, true)
	if err != nil {
		cancel()
		return nil, err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	finished := false

	recv := func() (string, error) {
		if finished {
			return "", io.EOF
		}
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var chunk OllamaChatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue // Skip invalid JSON lines
			}
			if chunk.Error != "" {
				finished = true
				return "", &ServiceError{Provider: "ollama", Err: fmt.Errorf("model error: %s", chunk.Error)}
			}
			if chunk.Done {
				finished = true
				if chunk.Message.Content != "" {
					return chunk.Message.Content, nil
				}
				return "", io.EOF
			}
			if chunk.Message.Content != "" {
				return chunk.Message.Content, nil
			}
		}
		finished = true
		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", &ServiceError{Provider: "ollama", Err: fmt.Errorf("error reading stream: %w", err), Retryable: true}
		}
		return "", io.EOF
	}

	return NewStream(recv, cancel, resp.Body.Close), nil
}

func (c *OllamaClient) send(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	chatReq := OllamaChatRequest{
		Model:    c.model,
		Messages: req.Messages,
		Stream:   stream,
	}
	if req.Temperature > 0 {
		chatReq.Options = map[string]interface{}{"temperature": req.Temperature}
	}
	if req.MaxTokens > 0 {
		if chatReq.Options == nil {
			chatReq.Options = map[string]interface{}{}
		}
		chatReq.Options["num_predict"] = req.MaxTokens
	}

	jsonData, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &ServiceError{
			Provider:  "ollama",
			Err:       fmt.Errorf("failed to send request: %w", err),
			Retryable: isTransportError(err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &ServiceError{
			Provider:  "ollama",
			Err:       fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body)),
			Retryable: resp.StatusCode >= 500,
		}
	}
	return resp, nil
}

// isTransportError reports whether err is a network-level failure worth
// retrying, as opposed to a cancelled context.
func isTransportError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
