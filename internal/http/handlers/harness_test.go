package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/deepdive-backend/internal/clients/openai"
	"github.com/yungbote/deepdive-backend/internal/platform/logger"
	"github.com/yungbote/deepdive-backend/internal/realtime"
	"github.com/yungbote/deepdive-backend/internal/services"
	"github.com/yungbote/deepdive-backend/internal/store/sessionstore"
)

type testEnv struct {
	router *gin.Engine
	store  *sessionstore.Store
}

// newTestEnv wires the full handler stack against a real store in a temp
// directory and the real upstream client pointed at the given test server.
func newTestEnv(t *testing.T, upstreamURL string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", upstreamURL)
	t.Setenv("OPENAI_MAX_RETRIES", "0")

	log := logger.NewNop()
	store, err := sessionstore.New(t.TempDir(), log)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	llm := openai.New(log)
	chain := services.NewChainBuilder(store, log)
	summarizer := services.NewSummarizer(store, llm, log)
	chatSvc := services.NewChatService(llm, chain, log)
	hub := realtime.NewHub(log)
	notifier := services.NewNotifier(hub, nil, log)
	manager := services.NewManager(store, chatSvc, summarizer, notifier, llm, log)
	if err := manager.Load(context.Background()); err != nil {
		t.Fatalf("load forest: %v", err)
	}

	sh := NewSessionHandler(log, store, summarizer, manager, notifier)
	ch := NewChatHandler(log, chatSvc)

	r := gin.New()
	r.GET("/sessions", sh.List)
	r.POST("/sessions", sh.Upsert)
	r.DELETE("/sessions/:id", sh.Delete)
	r.POST("/sessions/:id/summarize", sh.Summarize)
	r.POST("/sessions/:id/open", sh.Open)
	r.POST("/sessions/:id/messages", sh.SendMessage)
	r.POST("/sessions/:id/highlights", sh.AddHighlight)
	r.DELETE("/sessions/:id/highlights/:highlightId", sh.RemoveHighlight)
	r.POST("/sessions/:id/deepdive", sh.DeepDive)
	r.POST("/chat", ch.Complete)

	return &testEnv{router: r, store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// completionUpstream serves a fixed chat completion payload.
func completionUpstream(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, content)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// statusUpstream fails every request with the given status.
func statusUpstream(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"nope"}}`, status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// streamingUpstream emits the given raw SSE data payloads followed by the
// done sentinel.
func streamingUpstream(t *testing.T, payloads ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range payloads {
			fmt.Fprintf(w, "data: %s\n\n", p)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}
