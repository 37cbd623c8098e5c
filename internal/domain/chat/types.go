// Package chat holds the conversation forest data model. A Conversation is
// one node of the forest: an ordered message log plus tree and summary
// metadata. Conversations spawned from a highlighted fragment of a parent
// message ("deep dives") carry the originating term and highlight id.
package chat

import (
	"strings"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// DefaultTitle is the label used until a title is derived from the first
// user message.
const DefaultTitle = "New conversation"

const titleMaxLen = 48

// Highlight is a user-marked span inside a message's content.
// Offsets delimit a half-open range into Content; Text is snapshotted at
// selection time and is authoritative over recomputing from offsets.
type Highlight struct {
	ID    string `json:"id"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

type Message struct {
	ID         string      `json:"id"`
	Role       string      `json:"role"`
	Content    string      `json:"content"`
	Highlights []Highlight `json:"highlights,omitempty"`
}

// Fragment is a highlight staged for deep-dive promotion. Its ID equals the
// originating highlight's ID and later becomes the spawned child's
// OriginHighlightID.
type Fragment struct {
	ID        string `json:"id"`
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

type Conversation struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	ParentID         string     `json:"parentId,omitempty"`
	Messages         []Message  `json:"messages"`
	PendingFragments []Fragment `json:"pendingFragments"`
	IsExpanded       bool       `json:"isExpanded"`

	// Summary is current iff len(Messages) <= LastSummarizedMessageCount.
	Summary                    string `json:"summary"`
	LastSummarizedMessageCount int    `json:"lastSummarizedMessageCount"`

	// Set only on conversations created via deep-dive. OriginHighlightID is
	// the preferred correlation key back to the parent's highlight;
	// OriginTerm is kept as a fallback even though identical terms can
	// collide.
	OriginTerm        string `json:"originTerm,omitempty"`
	OriginHighlightID string `json:"originHighlightId,omitempty"`
}

func NewConversation(parentID, title string) *Conversation {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	return &Conversation{
		ID:               uuid.NewString(),
		Title:            title,
		ParentID:         parentID,
		Messages:         []Message{},
		PendingFragments: []Fragment{},
		IsExpanded:       true,
	}
}

func NewMessage(role, content string) Message {
	return Message{ID: uuid.NewString(), Role: role, Content: content}
}

// HasUnsummarizedDelta reports whether messages were appended since the last
// successful summarization.
func (c *Conversation) HasUnsummarizedDelta() bool {
	return len(c.Messages) > c.LastSummarizedMessageCount
}

// Summarized reports whether the conversation has ever been summarized.
func (c *Conversation) Summarized() bool {
	return strings.TrimSpace(c.Summary) != ""
}

// Message returns the message with the given id, or nil.
func (c *Conversation) Message(id string) *Message {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return &c.Messages[i]
		}
	}
	return nil
}

// DeriveTitle builds a short label from the first user message.
func DeriveTitle(content string) string {
	t := strings.Join(strings.Fields(content), " ")
	if t == "" {
		return DefaultTitle
	}
	r := []rune(t)
	if len(r) > titleMaxLen {
		return strings.TrimSpace(string(r[:titleMaxLen])) + "…"
	}
	return t
}
