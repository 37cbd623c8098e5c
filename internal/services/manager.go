package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/deepdive-backend/internal/clients/openai"
	"github.com/yungbote/deepdive-backend/internal/domain/chat"
	pkgerrors "github.com/yungbote/deepdive-backend/internal/pkg/errors"
	"github.com/yungbote/deepdive-backend/internal/platform/logger"
	"github.com/yungbote/deepdive-backend/internal/store/sessionstore"
)

const divePromptInstruction = "You are opening a focused follow-up conversation about a term the user " +
	"highlighted in an assistant reply. Write one short assistant message (2-3 sentences) that invites " +
	"the user to dig into that term. Match the language of the source material."

const (
	divePromptTemperature = 0.7
	divePromptMaxTokens   = 160
)

// Manager owns the live conversation forest. It is constructed from the
// store at startup and mediates between the HTTP surface and the store,
// gateway and summarizer. The mutex guards only the map bookkeeping; saves
// remain full-document overwrites with last-writer-wins semantics.
type Manager struct {
	store      *sessionstore.Store
	chat       *ChatService
	summarizer *Summarizer
	notifier   *Notifier
	llm        openai.Client
	log        *logger.Logger

	mu        sync.Mutex
	forest    map[string]*chat.Conversation
	currentID string
}

func NewManager(store *sessionstore.Store, chatSvc *ChatService, summarizer *Summarizer, notifier *Notifier, llm openai.Client, log *logger.Logger) *Manager {
	return &Manager{
		store:      store,
		chat:       chatSvc,
		summarizer: summarizer,
		notifier:   notifier,
		llm:        llm,
		log:        log.With("component", "ConversationManager"),
		forest:     make(map[string]*chat.Conversation),
	}
}

// Load populates the in-memory forest from the store. Called once at
// startup; corrupt nodes were already skipped by the store.
func (m *Manager) Load(ctx context.Context) error {
	convs, err := m.store.ListAll()
	if err != nil {
		return fmt.Errorf("load conversation forest: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conv := range convs {
		m.forest[conv.ID] = conv
	}
	m.log.Info("conversation forest loaded", "conversations", len(convs))
	return nil
}

func (m *Manager) Get(id string) (*chat.Conversation, error) {
	m.mu.Lock()
	conv, ok := m.forest[id]
	m.mu.Unlock()
	if ok {
		return conv, nil
	}
	conv, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	m.Put(conv)
	return conv, nil
}

func (m *Manager) List() []*chat.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*chat.Conversation, 0, len(m.forest))
	for _, conv := range m.forest {
		out = append(out, conv)
	}
	return out
}

// Put replaces the in-memory copy of a conversation, e.g. after an HTTP
// upsert wrote a caller-supplied document.
func (m *Manager) Put(conv *chat.Conversation) {
	if conv == nil || conv.ID == "" {
		return
	}
	m.mu.Lock()
	m.forest[conv.ID] = conv
	m.mu.Unlock()
}

// Create registers a new draft conversation. Drafts live in memory only and
// are persisted on their first meaningful mutation; deep-dive children are
// persisted immediately by DeepDive instead.
func (m *Manager) Create(parentID, title string) (*chat.Conversation, error) {
	if parentID != "" {
		if _, err := m.store.FindPath(parentID); err != nil {
			return nil, err
		}
	}
	conv := chat.NewConversation(parentID, title)
	m.Put(conv)
	return conv, nil
}

// Open switches the active conversation. If the previously active one has
// messages beyond its summarized high-water mark, a background
// summarization is fired; its errors are logged, never surfaced.
func (m *Manager) Open(ctx context.Context, id string) (*chat.Conversation, error) {
	conv, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	prevID := m.currentID
	m.currentID = id
	prev := m.forest[prevID]
	m.mu.Unlock()

	if prev != nil && prevID != id && prev.HasUnsummarizedDelta() {
		m.summarizeInBackground(prevID)
	}
	return conv, nil
}

func (m *Manager) summarizeInBackground(id string) {
	go func() {
		// Detached from the request: the switch must not block on this.
		res, err := m.summarizer.Summarize(context.Background(), id)
		if err != nil {
			m.log.Warn("background summarization failed", "session_id", id, "error", err)
			return
		}
		if !res.Skipped {
			if conv, err := m.store.Get(id); err == nil {
				m.Put(conv)
			}
			m.notifier.Publish(context.Background(), EventSessionSummarized, id)
		}
	}()
}

// Send appends the user message, persists, completes against the full
// history (with ancestor context injected via the session id), appends the
// assistant reply and persists again. When onDelta is non-nil the reply is
// relayed incrementally as it streams in.
func (m *Manager) Send(ctx context.Context, id, content string, onDelta func(delta string)) (chat.Message, error) {
	if strings.TrimSpace(content) == "" {
		return chat.Message{}, fmt.Errorf("message content required: %w", pkgerrors.ErrInvalidArgument)
	}
	conv, err := m.Get(id)
	if err != nil {
		return chat.Message{}, err
	}

	userMsg := chat.NewMessage(chat.RoleUser, content)
	conv.Messages = append(conv.Messages, userMsg)
	if conv.Title == "" || conv.Title == chat.DefaultTitle {
		conv.Title = chat.DeriveTitle(content)
	}
	if _, err := m.store.Save(conv); err != nil {
		return chat.Message{}, err
	}
	m.notifier.Publish(ctx, EventSessionSaved, conv.ID)

	history := make([]openai.ChatMessage, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		history = append(history, openai.ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	in := CompletionInput{Messages: history, SessionID: conv.ID}

	var replyText string
	if onDelta != nil {
		var sb strings.Builder
		err = m.chat.StreamComplete(ctx, in, func(chunk json.RawMessage) {
			if delta := openai.ExtractDelta(chunk); delta != "" {
				sb.WriteString(delta)
				onDelta(delta)
			}
		})
		replyText = sb.String()
	} else {
		var raw json.RawMessage
		raw, err = m.chat.Complete(ctx, in)
		if err == nil {
			replyText, err = openai.ExtractMessageContent(raw)
		}
	}
	if err != nil {
		return chat.Message{}, fmt.Errorf("complete reply for %s: %w", id, err)
	}

	reply := chat.NewMessage(chat.RoleAssistant, replyText)
	conv.Messages = append(conv.Messages, reply)
	if _, err := m.store.Save(conv); err != nil {
		return chat.Message{}, err
	}
	m.notifier.Publish(ctx, EventSessionSaved, conv.ID)
	return reply, nil
}

// AddHighlight marks a span of an assistant message and stages it as a
// pending fragment for deep-dive promotion. The highlight id doubles as the
// fragment id and, after promotion, as the child's origin highlight id.
func (m *Manager) AddHighlight(ctx context.Context, id, messageID string, start, end int, text string) (chat.Highlight, error) {
	if start < 0 || end <= start {
		return chat.Highlight{}, fmt.Errorf("invalid highlight range [%d,%d): %w", start, end, pkgerrors.ErrInvalidArgument)
	}
	conv, err := m.Get(id)
	if err != nil {
		return chat.Highlight{}, err
	}
	msg := conv.Message(messageID)
	if msg == nil {
		return chat.Highlight{}, fmt.Errorf("message %s: %w", messageID, pkgerrors.ErrNotFound)
	}

	hl := chat.Highlight{ID: uuid.NewString(), Start: start, End: end, Text: text}
	msg.Highlights = append(msg.Highlights, hl)
	conv.PendingFragments = append(conv.PendingFragments, chat.Fragment{
		ID:        hl.ID,
		MessageID: messageID,
		Text:      text,
	})

	if _, err := m.store.Save(conv); err != nil {
		return chat.Highlight{}, err
	}
	m.notifier.Publish(ctx, EventSessionSaved, conv.ID)
	return hl, nil
}

// RemoveHighlight retracts a highlight before promotion: the highlight and
// its pending fragment are cleared, the message itself is never removed.
func (m *Manager) RemoveHighlight(ctx context.Context, id, highlightID string) error {
	conv, err := m.Get(id)
	if err != nil {
		return err
	}

	found := false
	for mi := range conv.Messages {
		hls := conv.Messages[mi].Highlights
		for hi := range hls {
			if hls[hi].ID == highlightID {
				conv.Messages[mi].Highlights = append(hls[:hi], hls[hi+1:]...)
				found = true
				break
			}
		}
		if found {
			break
		}
	}
	if !found {
		return fmt.Errorf("highlight %s: %w", highlightID, pkgerrors.ErrNotFound)
	}

	frags := conv.PendingFragments[:0]
	for _, f := range conv.PendingFragments {
		if f.ID != highlightID {
			frags = append(frags, f)
		}
	}
	conv.PendingFragments = frags

	if _, err := m.store.Save(conv); err != nil {
		return err
	}
	m.notifier.Publish(ctx, EventSessionSaved, conv.ID)
	return nil
}

// DeepDive promotes every pending fragment into a child conversation whose
// first message invites discussion of the fragment. The invitation is
// generated with a one-off session-less completion seeded with the parent's
// summary and the source message; generation failures fall back to a fixed
// template so the dive always succeeds. Children are persisted, the parent's
// fragments are cleared, a best-effort parent summarization is fired and the
// first child becomes the active conversation.
func (m *Manager) DeepDive(ctx context.Context, id string) ([]*chat.Conversation, error) {
	conv, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	frags := conv.PendingFragments
	if len(frags) == 0 {
		return []*chat.Conversation{}, nil
	}

	children := make([]*chat.Conversation, len(frags))
	g, gctx := errgroup.WithContext(ctx)
	for i, frag := range frags {
		i, frag := i, frag
		g.Go(func() error {
			child := chat.NewConversation(conv.ID, chat.DeriveTitle(frag.Text))
			child.OriginTerm = frag.Text
			child.OriginHighlightID = frag.ID
			child.Messages = []chat.Message{
				chat.NewMessage(chat.RoleAssistant, m.divePrompt(gctx, conv, frag)),
			}
			children[i] = child
			return nil
		})
	}
	// Prompt generation never fails hard, it falls back to the template.
	_ = g.Wait()

	for _, child := range children {
		if _, err := m.store.Save(child); err != nil {
			return nil, fmt.Errorf("persist deep-dive child: %w", err)
		}
		m.Put(child)
	}

	conv.PendingFragments = []chat.Fragment{}
	if _, err := m.store.Save(conv); err != nil {
		return nil, err
	}
	m.notifier.Publish(ctx, EventDeepDiveSpawned, conv.ID)

	if conv.HasUnsummarizedDelta() {
		m.summarizeInBackground(conv.ID)
	}

	m.mu.Lock()
	m.currentID = children[0].ID
	m.mu.Unlock()
	return children, nil
}

func (m *Manager) divePrompt(ctx context.Context, parent *chat.Conversation, frag chat.Fragment) string {
	fallback := fmt.Sprintf("Let's take a closer look at %q. What would you like to explore about it?", frag.Text)

	var seed strings.Builder
	fmt.Fprintf(&seed, "Highlighted term: %q\n", frag.Text)
	if parent.Summarized() {
		fmt.Fprintf(&seed, "Parent conversation summary: %s\n", parent.Summary)
	}
	if src := parent.Message(frag.MessageID); src != nil {
		fmt.Fprintf(&seed, "Source message:\n%s\n", src.Content)
	}

	text, err := m.llm.GenerateText(ctx, divePromptInstruction, seed.String(), openai.GenerateOptions{
		Temperature: divePromptTemperature,
		MaxTokens:   divePromptMaxTokens,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		m.log.Warn("dive prompt generation failed, using template", "fragment_id", frag.ID, "error", err)
		return fallback
	}
	return strings.TrimSpace(text)
}

// Delete removes a conversation and its subtree from the store and the
// in-memory forest.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(id); err != nil {
		return err
	}

	m.mu.Lock()
	doomed := map[string]bool{id: true}
	// Children reference parents, so sweep until no new descendants appear.
	for changed := true; changed; {
		changed = false
		for cid, conv := range m.forest {
			if !doomed[cid] && doomed[conv.ParentID] {
				doomed[cid] = true
				changed = true
			}
		}
	}
	for cid := range doomed {
		delete(m.forest, cid)
	}
	if doomed[m.currentID] {
		m.currentID = ""
	}
	m.mu.Unlock()

	m.notifier.Publish(ctx, EventSessionDeleted, id)
	return nil
}

// Forget drops only the in-memory copy, e.g. after an external delete.
func (m *Manager) Forget(id string) {
	m.mu.Lock()
	delete(m.forest, id)
	m.mu.Unlock()
}
