package handlers

import (
	"net/http"
	"testing"

	"github.com/yungbote/deepdive-backend/internal/domain/chat"
)

func TestUpsertListDelete(t *testing.T) {
	upstream := completionUpstream(t, "unused")
	env := newTestEnv(t, upstream.URL)

	w := env.do(t, http.MethodPost, "/sessions", chat.Conversation{ID: "root", Title: "Root"})
	if w.Code != http.StatusOK {
		t.Fatalf("upsert root: status = %d, body = %s", w.Code, w.Body.String())
	}
	var saved struct {
		Path string `json:"path"`
	}
	decodeJSON(t, w, &saved)
	if saved.Path == "" {
		t.Fatalf("upsert root: missing path in %s", w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/sessions", chat.Conversation{ID: "child", Title: "Child", ParentID: "root"})
	if w.Code != http.StatusOK {
		t.Fatalf("upsert child: status = %d, body = %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/sessions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: status = %d", w.Code)
	}
	var listed []chat.Conversation
	decodeJSON(t, w, &listed)
	if len(listed) != 2 {
		t.Fatalf("list: got %d sessions, want 2", len(listed))
	}

	w = env.do(t, http.MethodDelete, "/sessions/root", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: status = %d, body = %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/sessions", nil)
	listed = nil
	decodeJSON(t, w, &listed)
	if len(listed) != 0 {
		t.Fatalf("list after cascade delete: got %d sessions, want 0", len(listed))
	}
}

func TestUpsertMissingParentFails(t *testing.T) {
	upstream := completionUpstream(t, "unused")
	env := newTestEnv(t, upstream.URL)

	w := env.do(t, http.MethodPost, "/sessions", chat.Conversation{ID: "orphan", Title: "Orphan", ParentID: "ghost"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	w = env.do(t, http.MethodGet, "/sessions", nil)
	var listed []chat.Conversation
	decodeJSON(t, w, &listed)
	if len(listed) != 0 {
		t.Fatalf("rejected write left %d sessions on disk", len(listed))
	}
}

func TestUpsertRejectsMissingID(t *testing.T) {
	upstream := completionUpstream(t, "unused")
	env := newTestEnv(t, upstream.URL)

	w := env.do(t, http.MethodPost, "/sessions", chat.Conversation{Title: "No id"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestDeleteMissingSession(t *testing.T) {
	upstream := completionUpstream(t, "unused")
	env := newTestEnv(t, upstream.URL)

	w := env.do(t, http.MethodDelete, "/sessions/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestSummarizeEndpoint(t *testing.T) {
	upstream := completionUpstream(t, "They discussed pointers.")
	env := newTestEnv(t, upstream.URL)

	conv := chat.Conversation{
		ID:    "s1",
		Title: "Pointers",
		Messages: []chat.Message{
			{ID: "m1", Role: chat.RoleUser, Content: "what is a pointer"},
			{ID: "m2", Role: chat.RoleAssistant, Content: "an address"},
		},
	}
	if w := env.do(t, http.MethodPost, "/sessions", conv); w.Code != http.StatusOK {
		t.Fatalf("seed session: status = %d", w.Code)
	}

	w := env.do(t, http.MethodPost, "/sessions/s1/summarize", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("summarize: status = %d, body = %s", w.Code, w.Body.String())
	}
	var res struct {
		Summary      string `json:"summary"`
		MessageCount int    `json:"messageCount"`
		Skipped      bool   `json:"skipped"`
	}
	decodeJSON(t, w, &res)
	if res.Skipped {
		t.Fatalf("first summarize skipped")
	}
	if res.Summary != "They discussed pointers." || res.MessageCount != 2 {
		t.Fatalf("summarize result = %+v", res)
	}

	// No new messages: the second call must be a no-op.
	w = env.do(t, http.MethodPost, "/sessions/s1/summarize", nil)
	decodeJSON(t, w, &res)
	if !res.Skipped {
		t.Fatalf("second summarize was not skipped")
	}
}

func TestSummarizeThenSendKeepsSummary(t *testing.T) {
	upstream := completionUpstream(t, "a generated reply")
	env := newTestEnv(t, upstream.URL)

	conv := chat.Conversation{
		ID:    "s1",
		Title: "Pointers",
		Messages: []chat.Message{
			{ID: "m1", Role: chat.RoleUser, Content: "what is a pointer"},
			{ID: "m2", Role: chat.RoleAssistant, Content: "an address"},
		},
	}
	if w := env.do(t, http.MethodPost, "/sessions", conv); w.Code != http.StatusOK {
		t.Fatalf("seed session: status = %d", w.Code)
	}

	if w := env.do(t, http.MethodPost, "/sessions/s1/summarize", nil); w.Code != http.StatusOK {
		t.Fatalf("summarize: status = %d, body = %s", w.Code, w.Body.String())
	}

	// A follow-up send saves the full document; it must carry the summary
	// written by the summarize call, not a stale pre-summary copy.
	if w := env.do(t, http.MethodPost, "/sessions/s1/messages", map[string]any{"content": "go on"}); w.Code != http.StatusOK {
		t.Fatalf("send: status = %d, body = %s", w.Code, w.Body.String())
	}

	got, err := env.store.Get("s1")
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if got.Summary != "a generated reply" {
		t.Fatalf("summary lost after send: %q", got.Summary)
	}
	if got.LastSummarizedMessageCount != 2 {
		t.Fatalf("high-water mark regressed after send: %d, want 2", got.LastSummarizedMessageCount)
	}
	if len(got.Messages) != 4 {
		t.Fatalf("persisted %d messages, want 4", len(got.Messages))
	}
}

func TestSummarizeMissingSession(t *testing.T) {
	upstream := completionUpstream(t, "unused")
	env := newTestEnv(t, upstream.URL)

	w := env.do(t, http.MethodPost, "/sessions/ghost/summarize", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestSendMessagePersistsExchange(t *testing.T) {
	upstream := completionUpstream(t, "Hello there")
	env := newTestEnv(t, upstream.URL)

	if w := env.do(t, http.MethodPost, "/sessions", chat.Conversation{ID: "s1", Title: "Chat"}); w.Code != http.StatusOK {
		t.Fatalf("seed session: status = %d", w.Code)
	}

	w := env.do(t, http.MethodPost, "/sessions/s1/messages", map[string]any{"content": "hi"})
	if w.Code != http.StatusOK {
		t.Fatalf("send: status = %d, body = %s", w.Code, w.Body.String())
	}
	var reply chat.Message
	decodeJSON(t, w, &reply)
	if reply.Role != chat.RoleAssistant || reply.Content != "Hello there" {
		t.Fatalf("reply = %+v", reply)
	}

	got, err := env.store.Get("s1")
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(got.Messages))
	}
	if got.Messages[0].Role != chat.RoleUser || got.Messages[1].Role != chat.RoleAssistant {
		t.Fatalf("persisted roles = %s, %s", got.Messages[0].Role, got.Messages[1].Role)
	}
}

func TestHighlightAndDeepDiveFlow(t *testing.T) {
	upstream := completionUpstream(t, "Let us explore pointers.")
	env := newTestEnv(t, upstream.URL)

	conv := chat.Conversation{
		ID:    "s1",
		Title: "Memory",
		Messages: []chat.Message{
			{ID: "m1", Role: chat.RoleAssistant, Content: "a pointer holds an address"},
		},
	}
	if w := env.do(t, http.MethodPost, "/sessions", conv); w.Code != http.StatusOK {
		t.Fatalf("seed session: status = %d", w.Code)
	}

	w := env.do(t, http.MethodPost, "/sessions/s1/highlights", map[string]any{
		"messageId": "m1",
		"start":     2,
		"end":       9,
		"text":      "pointer",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("add highlight: status = %d, body = %s", w.Code, w.Body.String())
	}
	var hl chat.Highlight
	decodeJSON(t, w, &hl)
	if hl.ID == "" || hl.Text != "pointer" {
		t.Fatalf("highlight = %+v", hl)
	}

	w = env.do(t, http.MethodPost, "/sessions/s1/deepdive", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("deepdive: status = %d, body = %s", w.Code, w.Body.String())
	}
	var res struct {
		Children []chat.Conversation `json:"children"`
	}
	decodeJSON(t, w, &res)
	if len(res.Children) != 1 {
		t.Fatalf("spawned %d children, want 1", len(res.Children))
	}
	child := res.Children[0]
	if child.ParentID != "s1" || child.OriginTerm != "pointer" || child.OriginHighlightID != hl.ID {
		t.Fatalf("child = %+v", child)
	}

	parent, err := env.store.Get("s1")
	if err != nil {
		t.Fatalf("reload parent: %v", err)
	}
	if len(parent.PendingFragments) != 0 {
		t.Fatalf("parent kept %d pending fragments", len(parent.PendingFragments))
	}
}

func TestRemoveHighlightClearsFragment(t *testing.T) {
	upstream := completionUpstream(t, "unused")
	env := newTestEnv(t, upstream.URL)

	conv := chat.Conversation{
		ID:    "s1",
		Title: "Memory",
		Messages: []chat.Message{
			{ID: "m1", Role: chat.RoleAssistant, Content: "a pointer holds an address"},
		},
	}
	if w := env.do(t, http.MethodPost, "/sessions", conv); w.Code != http.StatusOK {
		t.Fatalf("seed session: status = %d", w.Code)
	}

	w := env.do(t, http.MethodPost, "/sessions/s1/highlights", map[string]any{
		"messageId": "m1", "start": 2, "end": 9, "text": "pointer",
	})
	var hl chat.Highlight
	decodeJSON(t, w, &hl)

	w = env.do(t, http.MethodDelete, "/sessions/s1/highlights/"+hl.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove highlight: status = %d, body = %s", w.Code, w.Body.String())
	}

	got, err := env.store.Get("s1")
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if len(got.PendingFragments) != 0 {
		t.Fatalf("fragment not cleared: %+v", got.PendingFragments)
	}
	if msg := got.Message("m1"); msg == nil || len(msg.Highlights) != 0 {
		t.Fatalf("highlight not cleared: %+v", msg)
	}
	if got.Message("m1").Content != "a pointer holds an address" {
		t.Fatalf("message content changed on highlight removal")
	}
}
