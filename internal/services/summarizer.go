package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/deepdive-backend/internal/clients/openai"
	"github.com/yungbote/deepdive-backend/internal/domain/chat"
	"github.com/yungbote/deepdive-backend/internal/platform/logger"
	"github.com/yungbote/deepdive-backend/internal/store/sessionstore"
)

const summaryInstruction = "Summarize the following conversation in 3-4 sentences. " +
	"Write the summary in the dominant language of the transcript. " +
	"Capture what was asked and what was concluded."

const (
	summaryTemperature = 0.5
	summaryMaxTokens   = 220
)

type SummarizeResult struct {
	Summary      string `json:"summary"`
	MessageCount int    `json:"messageCount"`
	Skipped      bool   `json:"skipped"`
}

// Summarizer keeps a conversation's summary approximately current.
// LastSummarizedMessageCount gates upstream calls: a conversation is only
// re-summarized when messages were appended since the last run, so repeated
// triggers with no new content are free of side effects and upstream cost.
type Summarizer struct {
	store *sessionstore.Store
	llm   openai.Client
	log   *logger.Logger
}

func NewSummarizer(store *sessionstore.Store, llm openai.Client, log *logger.Logger) *Summarizer {
	return &Summarizer{store: store, llm: llm, log: log.With("component", "Summarizer")}
}

func (s *Summarizer) Summarize(ctx context.Context, id string) (SummarizeResult, error) {
	conv, err := s.store.Get(id)
	if err != nil {
		return SummarizeResult{}, err
	}

	if len(conv.Messages) == 0 {
		return SummarizeResult{Skipped: true}, nil
	}
	if !conv.HasUnsummarizedDelta() {
		return SummarizeResult{
			Summary:      conv.Summary,
			MessageCount: conv.LastSummarizedMessageCount,
			Skipped:      true,
		}, nil
	}

	messageCount := len(conv.Messages)
	text, err := s.llm.GenerateText(ctx, summaryInstruction, Transcript(conv.Messages), openai.GenerateOptions{
		Temperature: summaryTemperature,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		// No partial update: summary and high-water mark stay untouched.
		return SummarizeResult{}, fmt.Errorf("summarize session %s: %w", id, err)
	}

	conv.Summary = strings.TrimSpace(text)
	conv.LastSummarizedMessageCount = messageCount
	if _, err := s.store.Save(conv); err != nil {
		return SummarizeResult{}, fmt.Errorf("persist summary for %s: %w", id, err)
	}

	s.log.Debug("session summarized", "session_id", id, "message_count", messageCount)
	return SummarizeResult{
		Summary:      conv.Summary,
		MessageCount: messageCount,
	}, nil
}

// Transcript flattens messages into the "role: content" form fed to the
// summarization prompt.
func Transcript(messages []chat.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
