package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pdfchat/pdfchat/internal/agent"
	"github.com/pdfchat/pdfchat/internal/conversation"
	"github.com/pdfchat/pdfchat/internal/document"
	"github.com/pdfchat/pdfchat/internal/generation"
	"github.com/pdfchat/pdfchat/internal/index"
)

type stubRetriever struct {
	chunks []document.ScoredChunk
}

func (r *stubRetriever) Retrieve(ctx context.Context, query string) ([]document.ScoredChunk, error) {
	return r.chunks, nil
}

// stubGenerator streams canned parts; waitAt > -1 blocks at that
// increment until the context is cancelled.
type stubGenerator struct {
	parts   []string
	waitAt  int
	started chan struct{} // closed when the first increment is produced
}

func newStubGenerator(parts ...string) *stubGenerator {
	return &stubGenerator{parts: parts, waitAt: -1, started: make(chan struct{}, 8)}
}

func (g *stubGenerator) Complete(ctx context.Context, req generation.Request) (string, error) {
	return strings.Join(g.parts, ""), nil
}

func (g *stubGenerator) Stream(ctx context.Context, req generation.Request) (*generation.Stream, error) {
	i := 0
	recv := func() (string, error) {
		if i == 1 {
			select {
			case g.started <- struct{}{}:
			default:
			}
		}
		if g.waitAt >= 0 && i == g.waitAt {
			<-ctx.Done()
			return "", ctx.Err()
		}
		if i >= len(g.parts) {
			return "", io.EOF
		}
		part := g.parts[i]
		i++
		return part, nil
	}
	return generation.NewStream(recv, nil, nil), nil
}

func newTestServer(t *testing.T, generator generation.Client) (*Server, *conversation.Store, string) {
	t.Helper()

	ix, err := index.Create(t.TempDir(), index.Meta{Dimension: 4, Model: "test-model"})
	if err != nil {
		t.Fatalf("index.Create() error = %v", err)
	}
	t.Cleanup(func() { ix.Close() })

	store, err := conversation.Open(filepath.Join(t.TempDir(), "conversations.db"))
	if err != nil {
		t.Fatalf("conversation.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	convID, err := store.Create()
	if err != nil {
		t.Fatalf("store.Create() error = %v", err)
	}

	retriever := &stubRetriever{chunks: []document.ScoredChunk{
		{Chunk: document.Chunk{ID: "doc.pdf:0", SourcePath: "doc.pdf", Text: "context"}, Score: 0.9},
	}}
	qa := agent.New(retriever, generator, store, convID, agent.Options{})
	return New(qa, store, ix), store, convID
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, newStubGenerator("ok"))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("GET /api/health status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health status = %q, want ok", body["status"])
	}
}

func TestQuery(t *testing.T) {
	srv, _, _ := newTestServer(t, newStubGenerator("the answer"))

	w := postJSON(t, srv.Handler(), "/api/query", `{"question":"what?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/query status = %d, body %s", w.Code, w.Body.String())
	}

	var resp QueryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Answer != "the answer" {
		t.Errorf("answer = %q, want %q", resp.Answer, "the answer")
	}
	if len(resp.Sources) != 1 || resp.Sources[0].ID != "doc.pdf:0" {
		t.Errorf("sources = %+v, want the retrieved chunk", resp.Sources)
	}
}

func TestQueryValidation(t *testing.T) {
	srv, _, _ := newTestServer(t, newStubGenerator("unused"))
	handler := srv.Handler()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty question", `{"question":""}`, http.StatusBadRequest},
		{"malformed json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, handler, "/api/query", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/query", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/query status = %d, want 405", w.Code)
	}
}

func TestChatStreamsAndPersists(t *testing.T) {
	srv, store, convID := newTestServer(t, newStubGenerator("Hello ", "world"))

	w := postJSON(t, srv.Handler(), "/api/chat", `{"question":"greet me"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/chat status = %d, body %s", w.Code, w.Body.String())
	}
	if got := w.Body.String(); got != "Hello world" {
		t.Errorf("streamed body = %q, want %q", got, "Hello world")
	}
	if got := w.Header().Get("X-Conversation-ID"); got != convID {
		t.Errorf("X-Conversation-ID = %q, want %q", got, convID)
	}

	messages, err := store.Read(convID, 0)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("conversation has %d messages, want 2", len(messages))
	}
	if messages[1].Content != "Hello world" {
		t.Errorf("assistant message = %q, want %q", messages[1].Content, "Hello world")
	}
}

func TestChatBusyReturns409(t *testing.T) {
	generator := newStubGenerator("slow answer")
	generator.waitAt = 1
	srv, _, _ := newTestServer(t, generator)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		req, _ := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/api/chat", strings.NewReader(`{"question":"first"}`))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
	}()

	select {
	case <-generator.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first chat request never started streaming")
	}

	resp, err := http.Post(ts.URL+"/api/chat", "application/json", strings.NewReader(`{"question":"second"}`))
	if err != nil {
		t.Fatalf("second request error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("concurrent chat status = %d, want 409", resp.StatusCode)
	}

	cancel()
	<-firstDone
}

func TestChatDisconnectCancelsAndPersistsNothing(t *testing.T) {
	generator := newStubGenerator("partial")
	generator.waitAt = 1
	srv, store, convID := newTestServer(t, generator)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/api/chat", strings.NewReader(`{"question":"doomed"}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error = %v", err)
	}

	// Read the first increment, then hang up
	reader := bufio.NewReader(resp.Body)
	if _, err := reader.ReadByte(); err != nil {
		t.Fatalf("read first byte: %v", err)
	}
	cancel()
	resp.Body.Close()

	// The agent notices the disconnect and returns to an accepting state
	deadline := time.Now().Add(5 * time.Second)
	for {
		count, err := store.MessageCount(convID)
		if err != nil {
			t.Fatalf("MessageCount() error = %v", err)
		}
		w := postJSON(t, srv.Handler(), "/api/reset", "")
		if w.Code == http.StatusOK {
			if count != 0 {
				t.Errorf("MessageCount() after disconnect = %d, want 0", count)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("agent never returned to an accepting state after disconnect")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestReset(t *testing.T) {
	srv, store, convID := newTestServer(t, newStubGenerator("answer"))
	handler := srv.Handler()

	if w := postJSON(t, handler, "/api/chat", `{"question":"seed history"}`); w.Code != http.StatusOK {
		t.Fatalf("chat status = %d", w.Code)
	}

	w := postJSON(t, handler, "/api/reset", "")
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/reset status = %d", w.Code)
	}

	count, err := store.MessageCount(convID)
	if err != nil {
		t.Fatalf("MessageCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("MessageCount() after reset = %d, want 0", count)
	}
}

func TestStats(t *testing.T) {
	srv, _, convID := newTestServer(t, newStubGenerator("answer"))
	handler := srv.Handler()

	if w := postJSON(t, handler, "/api/chat", `{"question":"seed"}`); w.Code != http.StatusOK {
		t.Fatalf("chat status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/stats status = %d", w.Code)
	}

	var stats StatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if stats.Conversation != convID {
		t.Errorf("stats conversation = %q, want %q", stats.Conversation, convID)
	}
	if stats.Messages != 2 {
		t.Errorf("stats messages = %d, want 2", stats.Messages)
	}
	if stats.Dimension != 4 || stats.Model != "test-model" {
		t.Errorf("stats index meta = dim %d model %q, want 4 / test-model", stats.Dimension, stats.Model)
	}
	if stats.State != "completed" {
		t.Errorf("stats state = %q, want completed", stats.State)
	}
}
