package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pdfchat/pdfchat/internal/conversation"
	"github.com/pdfchat/pdfchat/internal/document"
	"github.com/pdfchat/pdfchat/internal/generation"
)

// ErrBusy is returned when a question arrives while another one is
// still being answered. Callers retry after the in-flight answer ends.
var ErrBusy = errors.New("agent is busy answering another question")

// ErrCancelled is returned when the caller aborts an in-flight answer
var ErrCancelled = errors.New("answer cancelled")

// State is the agent's lifecycle phase
type State int

const (
	StateIdle State = iota
	StateRetrieving
	StateGenerating
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRetrieving:
		return "retrieving"
	case StateGenerating:
		return "generating"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Retriever finds chunks relevant to a question
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]document.ScoredChunk, error)
}

// Options configures answering behavior
type Options struct {
	ContextChars int     // Prompt budget for retrieved chunk text
	HistoryTurns int     // Recent conversation turns included in prompts
	Temperature  float64 // Sampling temperature passed through to generation
	MaxTokens    int
}

// Events receives progress callbacks during Ask. Any field may be nil.
type Events struct {
	OnSources func([]document.ScoredChunk) // Called once, before generation starts
	OnDelta   func(string)                 // Called per streamed text increment
}

// Result is a completed answer
type Result struct {
	Answer  string
	Sources []document.ScoredChunk
}

const systemInstruction = "You are a helpful assistant answering questions about the user's documents. " +
	"Answer using only the provided context. If the context does not contain the answer, say so " +
	"instead of guessing. Cite the source file when it helps."

// Agent answers questions over an indexed document corpus, one at a
// time, persisting completed exchanges to a conversation.
type Agent struct {
	mu             sync.Mutex
	state          State
	retriever      Retriever
	generator      generation.Client
	store          *conversation.Store
	conversationID string
	opts           Options
}

// New creates an agent bound to one conversation
func New(retriever Retriever, generator generation.Client, store *conversation.Store, conversationID string, opts Options) *Agent {
	if opts.ContextChars <= 0 {
		opts.ContextChars = 6000
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = 6
	}
	return &Agent{
		state:          StateIdle,
		retriever:      retriever,
		generator:      generator,
		store:          store,
		conversationID: conversationID,
		opts:           opts,
	}
}

// State returns the agent's current phase
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// ConversationID returns the conversation this agent appends to
func (a *Agent) ConversationID() string {
	return a.conversationID
}

// begin claims the agent for a new question. Terminal states collapse
// back to accepting; an in-flight answer rejects with ErrBusy.
func (a *Agent) begin() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case StateRetrieving, StateGenerating:
		return ErrBusy
	}
	a.state = StateRetrieving
	return nil
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Ask answers question over the indexed corpus, streaming increments
// through events. On success the user/assistant exchange is appended to
// the conversation atomically. A cancelled answer persists nothing; a
// failed generation persists the user turn only.
func (a *Agent) Ask(ctx context.Context, question string, events Events) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}

	if err := a.begin(); err != nil {
		return nil, err
	}

	sources, err := a.retriever.Retrieve(ctx, question)
	if err != nil {
		if ctx.Err() != nil {
			a.setState(StateCancelled)
			return nil, ErrCancelled
		}
		a.setState(StateFailed)
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	if events.OnSources != nil {
		events.OnSources(sources)
	}

	history, err := a.store.Read(a.conversationID, a.opts.HistoryTurns*2)
	if err != nil {
		a.setState(StateFailed)
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	a.setState(StateGenerating)

	stream, err := a.generator.Stream(ctx, generation.Request{
		Messages:    a.buildPrompt(question, sources, history),
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
	})
	if err != nil {
		a.setState(StateFailed)
		a.persistUserTurn(question)
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	defer stream.Close()

	var answer strings.Builder
	for {
		delta, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				a.setState(StateCancelled)
				return nil, ErrCancelled
			}
			a.setState(StateFailed)
			a.persistUserTurn(question)
			return nil, fmt.Errorf("generation failed: %w", err)
		}
		if delta != "" && events.OnDelta != nil {
			events.OnDelta(delta)
		}
		answer.WriteString(delta)
	}

	if ctx.Err() != nil {
		a.setState(StateCancelled)
		return nil, ErrCancelled
	}

	if err := a.store.Append(a.conversationID,
		conversation.Message{Role: conversation.RoleUser, Content: question},
		conversation.Message{Role: conversation.RoleAssistant, Content: answer.String()},
	); err != nil {
		a.setState(StateFailed)
		return nil, fmt.Errorf("failed to persist exchange: %w", err)
	}

	a.setState(StateCompleted)
	return &Result{Answer: answer.String(), Sources: sources}, nil
}

// Query answers a one-shot question without touching the conversation
func (a *Agent) Query(ctx context.Context, question string) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}

	if err := a.begin(); err != nil {
		return nil, err
	}

	sources, err := a.retriever.Retrieve(ctx, question)
	if err != nil {
		a.setState(StateFailed)
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	a.setState(StateGenerating)

	answer, err := a.generator.Complete(ctx, generation.Request{
		Messages:    a.buildPrompt(question, sources, nil),
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
	})
	if err != nil {
		a.setState(StateFailed)
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	a.setState(StateCompleted)
	return &Result{Answer: answer, Sources: sources}, nil
}

// Reset clears the agent's conversation history
func (a *Agent) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateRetrieving || a.state == StateGenerating {
		return ErrBusy
	}
	if err := a.store.Reset(a.conversationID); err != nil {
		return err
	}
	a.state = StateIdle
	return nil
}

// persistUserTurn records the question after a failed generation, so
// the user can see what went unanswered.
func (a *Agent) persistUserTurn(question string) {
	_ = a.store.Append(a.conversationID, conversation.Message{
		Role:    conversation.RoleUser,
		Content: question,
	})
}

// buildPrompt assembles the generation request: system instruction with
// retrieved context, then recent history oldest-first, then the question.
func (a *Agent) buildPrompt(question string, sources []document.ScoredChunk, history []conversation.Message) []generation.Message {
	var sb strings.Builder
	sb.WriteString(systemInstruction)

	// Chunks are admitted whole, best first, until the budget runs out
	budget := a.opts.ContextChars
	var admitted int
	for _, src := range sources {
		if len(src.Text) > budget {
			continue
		}
		if admitted == 0 {
			sb.WriteString("\n\nContext:\n")
		}
		fmt.Fprintf(&sb, "[source: %s]\n%s\n\n", src.SourcePath, src.Text)
		budget -= len(src.Text)
		admitted++
	}

	messages := []generation.Message{{Role: "system", Content: sb.String()}}
	for _, msg := range history {
		messages = append(messages, generation.Message{Role: msg.Role, Content: msg.Content})
	}
	return append(messages, generation.Message{Role: "user", Content: question})
}
