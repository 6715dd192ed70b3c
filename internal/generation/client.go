package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdfchat/pdfchat/internal/config"
)

// Message is a single conversation-style prompt entry
type Message struct {
	Role    string `json:"role"` // "system" | "user" | "assistant"
	Content string `json:"content"`
}

// Request describes one generation call
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Client is the interface for generation API clients.
// Complete blocks until the full answer is available; Stream returns a lazy,
// finite, non-restartable sequence of text increments.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Stream(ctx context.Context, req Request) (*Stream, error)
}

// ServiceError wraps a failed call to a generation backend.
type ServiceError struct {
	Provider  string
	Err       error
	Retryable bool
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("generation service (%s): %v", e.Provider, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a transient generation service failure
func IsRetryable(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Retryable
	}
	return false
}

// New creates a generation client for the configured provider
func New(cfg *config.GenerationConfig) (Client, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaClient(cfg)
	case "openai":
		return NewOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", cfg.Provider)
	}
}

// Stream is a pull-based producer of generated text increments.
// Recv returns io.EOF after the final increment. Close aborts the in-flight
// request; a closed stream cannot be restarted.
type Stream struct {
	recv   func() (string, error)
	cancel context.CancelFunc
	closer func() error
	closed bool
}

// NewStream builds a Stream from a recv function. cancel and closer may
// be nil.
func NewStream(recv func() (string, error), cancel context.CancelFunc, closer func() error) *Stream {
	return &Stream{recv: recv, cancel: cancel, closer: closer}
}

// Recv returns the next text increment. It returns io.EOF when generation
// has completed normally.
func (s *Stream) Recv() (string, error) {
	if s.closed {
		return "", errors.New("stream is closed")
	}
	return s.recv()
}

// Close aborts the stream and releases the underlying connection.
// Safe to call after normal completion.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	if s.closer != nil {
		return s.closer()
	}
	return nil
}
