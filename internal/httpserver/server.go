package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pdfchat/pdfchat/internal/agent"
	"github.com/pdfchat/pdfchat/internal/conversation"
	"github.com/pdfchat/pdfchat/internal/document"
	"github.com/pdfchat/pdfchat/internal/index"
)

// Server exposes the question-answering agent over HTTP
type Server struct {
	agent     *agent.Agent
	store     *conversation.Store
	ix        *index.Index
	startedAt time.Time
}

// New creates an HTTP server around an agent and its open index
func New(qa *agent.Agent, store *conversation.Store, ix *index.Index) *Server {
	return &Server{
		agent:     qa,
		store:     store,
		ix:        ix,
		startedAt: time.Now(),
	}
}

// Handler returns the route mux
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/query", s.handleQuery)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/reset", s.handleReset)
	mux.HandleFunc("/api/stats", s.handleStats)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// QuestionRequest is the body of /api/query and /api/chat
type QuestionRequest struct {
	Question string `json:"question"`
}

// SourceRef is one retrieved chunk in an answer payload
type SourceRef struct {
	ID         string  `json:"id"`
	SourcePath string  `json:"source_path"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

// QueryResponse is the body of a successful /api/query
type QueryResponse struct {
	Answer  string      `json:"answer"`
	Sources []SourceRef `json:"sources"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuestion(w, r)
	if !ok {
		return
	}

	result, err := s.agent.Query(r.Context(), req.Question)
	if err != nil {
		status, msg := mapError(err)
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{
		Answer:  result.Answer,
		Sources: sourceRefs(result.Sources),
	})
}

// handleChat streams answer increments as chunked text/plain. Closing
// the connection cancels the in-flight generation via the request context.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuestion(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)

	started := false
	_, err := s.agent.Ask(r.Context(), req.Question, agent.Events{
		OnDelta: func(delta string) {
			if !started {
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.Header().Set("X-Conversation-ID", s.agent.ConversationID())
				w.WriteHeader(http.StatusOK)
				started = true
			}
			fmt.Fprint(w, delta)
			if canFlush {
				flusher.Flush()
			}
		},
	})
	if err != nil && !started {
		status, msg := mapError(err)
		writeError(w, status, msg)
	}
	// Errors after the first increment can only truncate the stream;
	// the status line is already on the wire.
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.agent.Reset(); err != nil {
		status, msg := mapError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// StatsResponse is the body of /api/stats
type StatsResponse struct {
	State         string    `json:"state"`
	Conversation  string    `json:"conversation"`
	Messages      int       `json:"messages"`
	Chunks        int       `json:"chunks"`
	Sources       int       `json:"sources"`
	Dimension     int       `json:"dimension"`
	Model         string    `json:"model"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartedAt     time.Time `json:"started_at"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := s.ix.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	messages, err := s.store.MessageCount(s.agent.ConversationID())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		State:         s.agent.State().String(),
		Conversation:  s.agent.ConversationID(),
		Messages:      messages,
		Chunks:        stats.ChunkCount,
		Sources:       stats.SourceCount,
		Dimension:     stats.Dimension,
		Model:         stats.Model,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		StartedAt:     s.startedAt,
	})
}

func decodeQuestion(w http.ResponseWriter, r *http.Request) (QuestionRequest, bool) {
	var req QuestionRequest
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return req, false
	}
	return req, true
}

// mapError translates domain errors to HTTP statuses
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, agent.ErrBusy):
		return http.StatusConflict, err.Error()
	case errors.Is(err, agent.ErrCancelled):
		return http.StatusRequestTimeout, err.Error()
	case index.IsIndexNotFound(err):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func sourceRefs(chunks []document.ScoredChunk) []SourceRef {
	refs := make([]SourceRef, len(chunks))
	for i, c := range chunks {
		refs[i] = SourceRef{
			ID:         c.ID,
			SourcePath: c.SourcePath,
			ChunkIndex: c.ChunkIndex,
			Score:      c.Score,
		}
	}
	return refs
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
