package main

import (
	"fmt"

	"github.com/pdfchat/pdfchat/internal/agent"
	"github.com/pdfchat/pdfchat/internal/config"
	"github.com/pdfchat/pdfchat/internal/conversation"
	"github.com/pdfchat/pdfchat/internal/embedding"
	"github.com/pdfchat/pdfchat/internal/generation"
	"github.com/pdfchat/pdfchat/internal/index"
	"github.com/pdfchat/pdfchat/internal/retrieval"
)

// qaStack bundles everything a question-answering command needs
type qaStack struct {
	index *index.Index
	store *conversation.Store
	agent *agent.Agent
}

// Close releases the stack's resources
func (s *qaStack) Close() {
	if s.store != nil {
		s.store.Close()
	}
	if s.index != nil {
		s.index.Close()
	}
}

// newQAStack opens the index and conversation store and wires up the
// agent. newConversation starts a fresh conversation instead of
// resuming the most recent one.
func newQAStack(cfg *config.Config, newConversation bool) (*qaStack, error) {
	ix, err := index.Open(cfg.Index.Dir)
	if err != nil {
		return nil, err
	}
	if err := ix.ValidateDimension(cfg.Embedding.Dimensions); err != nil {
		ix.Close()
		return nil, fmt.Errorf("%w (rebuild with `pdfchat index -force`)", err)
	}

	embedder, err := embedding.NewService(&cfg.Embedding)
	if err != nil {
		ix.Close()
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	generator, err := generation.New(&cfg.Generation)
	if err != nil {
		ix.Close()
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}

	store, err := conversation.Open(cfg.Conversation.Path)
	if err != nil {
		ix.Close()
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}

	convID, err := resolveConversation(store, newConversation)
	if err != nil {
		store.Close()
		ix.Close()
		return nil, err
	}

	engine := retrieval.NewEngine(embedder, ix, retrieval.OptionsFromConfig(cfg.Search))
	qa := agent.New(engine, generator, store, convID, agent.Options{
		ContextChars: cfg.Search.ContextChars,
		HistoryTurns: cfg.Conversation.HistoryTurns,
		Temperature:  cfg.Generation.Temperature,
		MaxTokens:    cfg.Generation.MaxTokens,
	})

	return &qaStack{index: ix, store: store, agent: qa}, nil
}

// resolveConversation resumes the most recently updated conversation,
// or creates one when none exists (or a fresh one was asked for).
func resolveConversation(store *conversation.Store, startNew bool) (string, error) {
	if !startNew {
		convs, err := store.List()
		if err != nil {
			return "", fmt.Errorf("failed to list conversations: %w", err)
		}
		if len(convs) > 0 {
			return convs[0].ID, nil
		}
	}

	id, err := store.Create()
	if err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	return id, nil
}
