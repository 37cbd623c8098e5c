package services

import (
	"fmt"
	"strings"

	"github.com/yungbote/deepdive-backend/internal/platform/logger"
	"github.com/yungbote/deepdive-backend/internal/store/sessionstore"
)

// ChainNode is one ancestor in a conversation's lineage, root first.
type ChainNode struct {
	ID         string
	Title      string
	Summary    string
	OriginTerm string
	Summarized bool
}

// ChainBuilder assembles the ordered ancestor chain used to inject condensed
// context when continuing a child conversation.
type ChainBuilder struct {
	store *sessionstore.Store
	log   *logger.Logger
}

func NewChainBuilder(store *sessionstore.Store, log *logger.Logger) *ChainBuilder {
	return &ChainBuilder{store: store, log: log.With("component", "ChainBuilder")}
}

// BuildChain walks parent links from id up to a root and returns the nodes
// in root-to-leaf order. A lookup failure truncates the chain at that point
// rather than failing the whole operation: partial context beats none.
func (b *ChainBuilder) BuildChain(id string) []ChainNode {
	var chain []ChainNode
	seen := map[string]bool{}

	cur := strings.TrimSpace(id)
	for cur != "" && !seen[cur] {
		seen[cur] = true
		conv, err := b.store.Get(cur)
		if err != nil {
			b.log.Warn("context chain truncated", "session_id", cur, "error", err)
			break
		}
		chain = append([]ChainNode{{
			ID:         conv.ID,
			Title:      conv.Title,
			Summary:    conv.Summary,
			OriginTerm: conv.OriginTerm,
			Summarized: conv.Summarized(),
		}}, chain...)
		cur = conv.ParentID
	}
	return chain
}

// RenderContext turns an ancestor chain into the single synthetic system
// message injected ahead of the caller's messages. A chain without ancestry
// (one node or fewer) contributes no context and yields "".
func RenderContext(chain []ChainNode) string {
	if len(chain) <= 1 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("This conversation is a deep dive nested inside earlier conversations. ")
	sb.WriteString("Topic path from the root conversation to the current one:\n")
	for i, n := range chain {
		fmt.Fprintf(&sb, "%d. ", i+1)
		if i > 0 && strings.TrimSpace(n.OriginTerm) != "" {
			fmt.Fprintf(&sb, "(opened from the highlighted term %q) ", n.OriginTerm)
		}
		fmt.Fprintf(&sb, "%q", n.Title)
		switch {
		case i == len(chain)-1:
			sb.WriteString(" — the conversation being continued now.")
		case n.Summarized:
			fmt.Fprintf(&sb, ": %s", strings.TrimSpace(n.Summary))
		default:
			sb.WriteString(": not yet concluded.")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Stay within the context of the current topic.")
	return sb.String()
}
