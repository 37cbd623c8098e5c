// Package openai is a hand-rolled client for an OpenAI-compatible chat
// completions API. Non-streaming responses are relayed verbatim so callers
// can pass the upstream payload through unchanged; streaming responses are
// parsed as SSE and relayed chunk by chunk.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yungbote/deepdive-backend/internal/pkg/httpx"
	"github.com/yungbote/deepdive-backend/internal/platform/envutil"
	"github.com/yungbote/deepdive-backend/internal/platform/logger"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// Client is the upstream completion gateway used by the rest of the backend.
type Client interface {
	// ChatCompletion issues a one-shot completion and returns the upstream
	// JSON payload verbatim.
	ChatCompletion(ctx context.Context, req ChatRequest) (json.RawMessage, error)

	// StreamChatCompletion relays the upstream token stream. onChunk receives
	// each parseable data chunk; malformed chunks are dropped without
	// terminating the stream. Returns once the upstream sends its done
	// sentinel, errors, or ctx is cancelled.
	StreamChatCompletion(ctx context.Context, req ChatRequest, onChunk func(chunk json.RawMessage)) error

	// GenerateText is a one-shot system+user prompt returning plain text.
	GenerateText(ctx context.Context, system string, user string, opts GenerateOptions) (string, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
}

// New builds the client from the environment. A missing OPENAI_API_KEY does
// not fail construction; every call then fails with a clear error so the
// server can still start without a credential.
func New(log *logger.Logger) Client {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		log.Warn("OPENAI_API_KEY not set; upstream completion calls will fail")
	}
	baseURL := strings.TrimRight(envutil.Str("OPENAI_BASE_URL", "https://api.openai.com"), "/")
	return &client{
		log:        log.With("component", "OpenAIClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      envutil.Str("OPENAI_MODEL", "gpt-4o-mini"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		// Retries default off: a replayed completion duplicates a costly
		// call. OPENAI_MAX_RETRIES opts in for idempotent-enough setups.
		maxRetries: envutil.Int("OPENAI_MAX_RETRIES", 0),
	}
}

type upstreamHTTPError struct {
	StatusCode int
	Body       string
}

func (e *upstreamHTTPError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, truncate(e.Body, 512))
}

func (e *upstreamHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

var errMissingCredential = errors.New("openai: missing OPENAI_API_KEY")

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

func (c *client) newRequest(ctx context.Context, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *client) doOnce(ctx context.Context, body any) (*http.Response, []byte, error) {
	req, err := c.newRequest(ctx, body)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &upstreamHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, body any) ([]byte, error) {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, body)
		if err == nil {
			return raw, nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return nil, err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("upstream request retrying",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}

	return nil, fmt.Errorf("unreachable retry loop")
}

func (c *client) ChatCompletion(ctx context.Context, req ChatRequest) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, errMissingCredential
	}
	raw, err := c.do(ctx, chatCompletionsRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func (c *client) StreamChatCompletion(ctx context.Context, req ChatRequest, onChunk func(chunk json.RawMessage)) error {
	if c.apiKey == "" {
		return errMissingCredential
	}

	httpReq, err := c.newRequest(ctx, chatCompletionsRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	// Streams are never retried: a replay could duplicate a costly call.
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return &upstreamHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	err = streamSSE(resp.Body, func(_ string, data string) error {
		data = strings.TrimSpace(data)
		if data == "" {
			return nil
		}
		if data == "[DONE]" {
			return errStreamDone
		}
		// A chunk that fails to parse must not terminate an otherwise
		// healthy stream.
		var probe map[string]any
		if err := json.Unmarshal([]byte(data), &probe); err != nil {
			return nil
		}
		if onChunk != nil {
			onChunk(json.RawMessage(data))
		}
		return nil
	})
	if errors.Is(err, errStreamDone) {
		return nil
	}
	if err != nil && ctx.Err() != nil {
		// Downstream went away; surface the cancellation, not the read error.
		return ctx.Err()
	}
	return err
}

func (c *client) GenerateText(ctx context.Context, system string, user string, opts GenerateOptions) (string, error) {
	msgs := make([]ChatMessage, 0, 2)
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, ChatMessage{Role: "system", Content: strings.TrimSpace(system)})
	}
	msgs = append(msgs, ChatMessage{Role: "user", Content: user})

	raw, err := c.ChatCompletion(ctx, ChatRequest{
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	text, err := ExtractMessageContent(raw)
	if err != nil {
		return "", err
	}
	return text, nil
}

// errStreamDone marks the upstream [DONE] sentinel inside the SSE loop.
var errStreamDone = errors.New("stream done")

func streamSSE(r io.Reader, onEvent func(event string, data string) error) error {
	br := bufio.NewReader(r)
	var (
		eventName string
		dataLines []string
	)

	flush := func() error {
		if len(dataLines) == 0 {
			eventName = ""
			return nil
		}
		data := strings.Join(dataLines, "\n")
		dataLines = nil
		ev := eventName
		eventName = ""
		if onEvent == nil {
			return nil
		}
		return onEvent(ev, data)
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return flush()
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		// Blank line ends event.
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}

		// Comment.
		if strings.HasPrefix(line, ":") {
			continue
		}

		if strings.HasPrefix(line, "event:") {
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}

		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			continue
		}
	}
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ExtractMessageContent pulls the assistant text out of a verbatim
// non-streaming completion payload.
func ExtractMessageContent(raw json.RawMessage) (string, error) {
	var resp chatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// ExtractDelta pulls the incremental text out of a streaming chunk; returns
// "" for chunks that carry no content delta (role preludes, finish markers).
func ExtractDelta(raw json.RawMessage) string {
	var chunk chatCompletionChunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		return ""
	}
	if len(chunk.Choices) == 0 {
		return ""
	}
	return chunk.Choices[0].Delta.Content
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
