package generation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pdfchat/pdfchat/internal/config"
)

const openAIChatURL = "https://api.openai.com/v1/chat/completions"

// OpenAIClient talks to the OpenAI chat completions API
type OpenAIClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewOpenAIClient creates an OpenAI generation client
func NewOpenAIClient(cfg *config.GenerationConfig) (*OpenAIClient, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	model := cfg.OpenAIModel
	if model == "" {
		model = "gpt-4o-mini"
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &OpenAIClient{
		apiKey:  cfg.OpenAIAPIKey,
		model:   model,
		baseURL: openAIChatURL,
		client:  &http.Client{},
		timeout: timeout,
	}, nil
}

// OpenAIChatRequest is the request body for the chat completions endpoint
type OpenAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// OpenAIChatResponse is the non-streaming chat completions response
type OpenAIChatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// openAIChunk is one SSE data payload of a streaming response
type openAIChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete runs a non-streaming chat call and returns the full answer
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.send(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chatResp OpenAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", &ServiceError{Provider: "openai", Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if len(chatResp.Choices) == 0 {
		return "", &ServiceError{Provider: "openai", Err: fmt.Errorf("no choices in response")}
	}
	return chatResp.Choices[0].Message.Content, nil
}

// Stream runs a streaming chat call. Increments arrive as SSE events of the
// form "data: {...}" terminated by "data: [DONE]".
func (c *OpenAIClient) Stream(ctx context.Context, req Request) (*Stream, error) {
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
			line := scanner.Text()
			if line == "" {
				continue // Empty line between SSE chunks
			}
			if strings.HasPrefix(line, "data: ") {
				line = strings.TrimPrefix(line, "data: ")
			}
			if line == "[DONE]" {
				finished = true
				return "", io.EOF
			}

			var chunk openAIChunk
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				continue // Skip invalid JSON lines
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if chunk.Choices[0].FinishReason != nil && *chunk.Choices[0].FinishReason == "stop" {
				finished = true
				return "", io.EOF
			}
			if chunk.Choices[0].Delta.Content != "" {
				return chunk.Choices[0].Delta.Content, nil
			}
		}
		finished = true
		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", &ServiceError{Provider: "openai", Err: fmt.Errorf("error reading stream: %w", err), Retryable: true}
		}
		return "", io.EOF
	}

	return NewStream(recv, cancel, resp.Body.Close), nil
}

func (c *OpenAIClient) send(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	chatReq := OpenAIChatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Stream:      stream,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	jsonData, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &ServiceError{
			Provider:  "openai",
			Err:       fmt.Errorf("failed to send request: %w", err),
			Retryable: isTransportError(err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &ServiceError{
			Provider:  "openai",
			Err:       fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body)),
			Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}
	return resp, nil
}
