package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/yungbote/deepdive-backend/internal/clients/openai"
)

// fakeLLM implements openai.Client for service tests.
type fakeLLM struct {
	mu sync.Mutex

	generateText  string
	generateErr   error
	generateCalls int

	completeContent string
	completeErr     error

	streamDeltas []string
	streamErr    error
}

func (f *fakeLLM) GenerateText(ctx context.Context, system, user string, opts openai.GenerateOptions) (string, error) {
	f.mu.Lock()
	f.generateCalls++
	f.mu.Unlock()
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return f.generateText, nil
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generateCalls
}

func (f *fakeLLM) ChatCompletion(ctx context.Context, req openai.ChatRequest) (json.RawMessage, error) {
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	payload := map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": f.completeContent}},
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (f *fakeLLM) StreamChatCompletion(ctx context.Context, req openai.ChatRequest, onChunk func(json.RawMessage)) error {
	if f.streamErr != nil {
		return f.streamErr
	}
	for _, d := range f.streamDeltas {
		chunk := fmt.Sprintf(`{"choices":[{"delta":{"content":%q}}]}`, d)
		if onChunk != nil {
			onChunk(json.RawMessage(chunk))
		}
	}
	return nil
}
