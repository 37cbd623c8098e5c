package handlers

import (
	"net/http"
	"strings"
	"testing"
)

func TestChatRequiresMessages(t *testing.T) {
	upstream := completionUpstream(t, "unused")
	env := newTestEnv(t, upstream.URL)

	for _, body := range []map[string]any{
		{},
		{"messages": []any{}},
	} {
		w := env.do(t, http.MethodPost, "/chat", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %v: status = %d, want 400", body, w.Code)
		}
		if !strings.Contains(w.Body.String(), "messages") {
			t.Fatalf("body %v: error does not name messages: %s", body, w.Body.String())
		}
	}
}

func TestChatRelaysUpstreamPayloadVerbatim(t *testing.T) {
	upstream := completionUpstream(t, "hi there")
	env := newTestEnv(t, upstream.URL)

	w := env.do(t, http.MethodPost, "/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	want := `{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`
	if strings.TrimSpace(w.Body.String()) != want {
		t.Fatalf("payload altered in relay:\ngot  %s\nwant %s", w.Body.String(), want)
	}
}

func TestChatPreservesUpstreamStatus(t *testing.T) {
	upstream := statusUpstream(t, http.StatusUnauthorized)
	env := newTestEnv(t, upstream.URL)

	w := env.do(t, http.MethodPost, "/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if !strings.Contains(w.Body.String(), "upstream_error") {
		t.Fatalf("unexpected error body: %s", w.Body.String())
	}
}

func TestChatStreamRelaysChunksAndDone(t *testing.T) {
	upstream := streamingUpstream(t,
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{not json`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
	)
	env := newTestEnv(t, upstream.URL)

	w := env.do(t, http.MethodPost, "/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
		"stream":   true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	body := w.Body.String()
	if !strings.Contains(body, `data: {"choices":[{"delta":{"content":"Hel"}}]}`) ||
		!strings.Contains(body, `data: {"choices":[{"delta":{"content":"lo"}}]}`) {
		t.Fatalf("chunks not relayed: %s", body)
	}
	if strings.Contains(body, "{not json") {
		t.Fatalf("malformed chunk relayed instead of dropped: %s", body)
	}
	if !strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]") {
		t.Fatalf("stream not terminated with done sentinel: %s", body)
	}
}

func TestChatStreamUpstreamFailureBeforeFirstChunk(t *testing.T) {
	upstream := statusUpstream(t, http.StatusTooManyRequests)
	env := newTestEnv(t, upstream.URL)

	w := env.do(t, http.MethodPost, "/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
		"stream":   true,
	})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
}
