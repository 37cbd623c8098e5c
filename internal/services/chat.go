package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yungbote/deepdive-backend/internal/clients/openai"
	"github.com/yungbote/deepdive-backend/internal/domain/chat"
	pkgerrors "github.com/yungbote/deepdive-backend/internal/pkg/errors"
	"github.com/yungbote/deepdive-backend/internal/platform/logger"
)

const (
	chatTemperature = 0.7
	chatMaxTokens   = 2048
)

// CompletionInput is a caller-supplied message list, optionally scoped to a
// session whose ancestor chain should be injected as context.
type CompletionInput struct {
	Messages  []openai.ChatMessage
	SessionID string
}

// ChatService forwards message lists to the upstream model, prepending the
// session's ancestor-chain context when the conversation has ancestry. The
// caller's own messages are never reordered or altered.
type ChatService struct {
	llm   openai.Client
	chain *ChainBuilder
	log   *logger.Logger
}

func NewChatService(llm openai.Client, chain *ChainBuilder, log *logger.Logger) *ChatService {
	return &ChatService{llm: llm, chain: chain, log: log.With("component", "ChatService")}
}

func (s *ChatService) buildMessages(in CompletionInput) ([]openai.ChatMessage, error) {
	if len(in.Messages) == 0 {
		return nil, fmt.Errorf("messages required: %w", pkgerrors.ErrInvalidArgument)
	}
	msgs := in.Messages
	if in.SessionID != "" {
		if ctxMsg := RenderContext(s.chain.BuildChain(in.SessionID)); ctxMsg != "" {
			msgs = append([]openai.ChatMessage{{Role: chat.RoleSystem, Content: ctxMsg}}, msgs...)
		}
	}
	return msgs, nil
}

// Complete issues a one-shot completion and relays the upstream payload
// verbatim.
func (s *ChatService) Complete(ctx context.Context, in CompletionInput) (json.RawMessage, error) {
	msgs, err := s.buildMessages(in)
	if err != nil {
		return nil, err
	}
	return s.llm.ChatCompletion(ctx, openai.ChatRequest{
		Messages:    msgs,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
}

// StreamComplete relays the upstream token stream chunk by chunk.
func (s *ChatService) StreamComplete(ctx context.Context, in CompletionInput, onChunk func(chunk json.RawMessage)) error {
	msgs, err := s.buildMessages(in)
	if err != nil {
		return err
	}
	return s.llm.StreamChatCompletion(ctx, openai.ChatRequest{
		Messages:    msgs,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	}, onChunk)
}
