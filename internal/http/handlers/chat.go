package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/deepdive-backend/internal/clients/openai"
	pkgerrors "github.com/yungbote/deepdive-backend/internal/pkg/errors"
	"github.com/yungbote/deepdive-backend/internal/platform/logger"
	"github.com/yungbote/deepdive-backend/internal/services"
)

type ChatHandler struct {
	log  *logger.Logger
	chat *services.ChatService
}

func NewChatHandler(log *logger.Logger, chat *services.ChatService) *ChatHandler {
	return &ChatHandler{log: log, chat: chat}
}

type chatCompletionRequest struct {
	Messages  []openai.ChatMessage `json:"messages"`
	SessionID string               `json:"sessionId"`
	Stream    bool                 `json:"stream"`
}

// POST /chat
// One-shot mode relays the upstream completion payload verbatim; streaming
// mode relays raw chunk payloads as SSE data events terminated by
// `data: [DONE]`. Upstream failure before any chunk has been written keeps
// the upstream status; after that the stream carries an error event instead.
func (h *ChatHandler) Complete(c *gin.Context) {
	var req chatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if len(req.Messages) == 0 {
		RespondError(c, http.StatusBadRequest, "messages_required",
			fmt.Errorf("messages required: %w", pkgerrors.ErrInvalidArgument))
		return
	}

	in := services.CompletionInput{Messages: req.Messages, SessionID: req.SessionID}

	if !req.Stream {
		payload, err := h.chat.Complete(c.Request.Context(), in)
		if err != nil {
			respondMappedError(c, err, true)
			return
		}
		c.Data(http.StatusOK, "application/json", payload)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		RespondError(c, http.StatusInternalServerError, "streaming_unsupported", errNoFlusher)
		return
	}

	wroteAny := false
	err := h.chat.StreamComplete(c.Request.Context(), in, func(chunk json.RawMessage) {
		if !wroteAny {
			writeSSEHeaders(c)
			wroteAny = true
		}
		_, _ = fmt.Fprintf(c.Writer, "data: %s\n\n", chunk)
		flusher.Flush()
	})
	if err != nil {
		if !wroteAny {
			respondMappedError(c, err, true)
			return
		}
		h.log.Warn("chat stream aborted mid-flight", "error", err)
		_, _ = fmt.Fprintf(c.Writer, "event: error\ndata: %s\n\n", jsonBody(gin.H{"message": err.Error()}))
		flusher.Flush()
		return
	}
	if !wroteAny {
		writeSSEHeaders(c)
	}
	_, _ = c.Writer.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}
