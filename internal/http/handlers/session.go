package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/deepdive-backend/internal/domain/chat"
	"github.com/yungbote/deepdive-backend/internal/pkg/httpx"
	"github.com/yungbote/deepdive-backend/internal/platform/logger"
	"github.com/yungbote/deepdive-backend/internal/services"
	"github.com/yungbote/deepdive-backend/internal/store/sessionstore"
)

type SessionHandler struct {
	log        *logger.Logger
	store      *sessionstore.Store
	summarizer *services.Summarizer
	manager    *services.Manager
	notifier   *services.Notifier
}

func NewSessionHandler(log *logger.Logger, store *sessionstore.Store, summarizer *services.Summarizer, manager *services.Manager, notifier *services.Notifier) *SessionHandler {
	return &SessionHandler{
		log:        log,
		store:      store,
		summarizer: summarizer,
		manager:    manager,
		notifier:   notifier,
	}
}

// GET /sessions
func (h *SessionHandler) List(c *gin.Context) {
	convs, err := h.store.ListAll()
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, convs)
}

// POST /sessions
// Full-document upsert: create and update are the same write.
func (h *SessionHandler) Upsert(c *gin.Context) {
	var conv chat.Conversation
	if err := c.ShouldBindJSON(&conv); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_session", err)
		return
	}
	if strings.TrimSpace(conv.ID) == "" {
		RespondError(c, http.StatusBadRequest, "invalid_session", errMissingID)
		return
	}

	path, err := h.store.Save(&conv)
	if err != nil {
		respondMappedError(c, err, false)
		return
	}
	h.manager.Put(&conv)
	h.notifier.Publish(c.Request.Context(), services.EventSessionSaved, conv.ID)
	RespondOK(c, gin.H{"path": path})
}

// DELETE /sessions/:id
func (h *SessionHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.manager.Delete(c.Request.Context(), id); err != nil {
		respondMappedError(c, err, false)
		return
	}
	RespondOK(c, gin.H{"deleted": id})
}

// POST /sessions/:id/summarize
func (h *SessionHandler) Summarize(c *gin.Context) {
	id := c.Param("id")
	res, err := h.summarizer.Summarize(c.Request.Context(), id)
	if err != nil {
		respondMappedError(c, err, true)
		return
	}
	if !res.Skipped {
		// Refresh the manager's cached copy, or the next send would save the
		// stale document and wipe the fresh summary.
		if conv, err := h.store.Get(id); err == nil {
			h.manager.Put(conv)
		}
		h.notifier.Publish(c.Request.Context(), services.EventSessionSummarized, id)
	}
	RespondOK(c, res)
}

// POST /sessions/:id/open
// Switch semantics: activating a conversation fires a best-effort background
// summarization of the previously active one.
func (h *SessionHandler) Open(c *gin.Context) {
	conv, err := h.manager.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondMappedError(c, err, false)
		return
	}
	RespondOK(c, conv)
}

type sendMessageRequest struct {
	Content string `json:"content"`
	Stream  bool   `json:"stream"`
}

// POST /sessions/:id/messages
func (h *SessionHandler) SendMessage(c *gin.Context) {
	id := c.Param("id")

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	if !req.Stream {
		reply, err := h.manager.Send(c.Request.Context(), id, req.Content, nil)
		if err != nil {
			respondMappedError(c, err, true)
			return
		}
		RespondOK(c, reply)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		RespondError(c, http.StatusInternalServerError, "streaming_unsupported", errNoFlusher)
		return
	}

	wroteAny := false
	reply, err := h.manager.Send(c.Request.Context(), id, req.Content, func(delta string) {
		if !wroteAny {
			writeSSEHeaders(c)
			wroteAny = true
		}
		payload := jsonBody(gin.H{"delta": delta})
		_ = httpx.WriteSSE(c.Writer, "message.delta", payload)
		flusher.Flush()
	})
	if err != nil {
		if !wroteAny {
			respondMappedError(c, err, true)
			return
		}
		_ = httpx.WriteSSE(c.Writer, "error", jsonBody(gin.H{"message": err.Error()}))
		flusher.Flush()
		return
	}
	if !wroteAny {
		writeSSEHeaders(c)
	}
	_ = httpx.WriteSSE(c.Writer, "message.completed", jsonBody(reply))
	_, _ = c.Writer.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

type addHighlightRequest struct {
	MessageID string `json:"messageId"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Text      string `json:"text"`
}

// POST /sessions/:id/highlights
func (h *SessionHandler) AddHighlight(c *gin.Context) {
	var req addHighlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	hl, err := h.manager.AddHighlight(c.Request.Context(), c.Param("id"), req.MessageID, req.Start, req.End, req.Text)
	if err != nil {
		respondMappedError(c, err, false)
		return
	}
	RespondOK(c, hl)
}

// DELETE /sessions/:id/highlights/:highlightId
func (h *SessionHandler) RemoveHighlight(c *gin.Context) {
	if err := h.manager.RemoveHighlight(c.Request.Context(), c.Param("id"), c.Param("highlightId")); err != nil {
		respondMappedError(c, err, false)
		return
	}
	RespondOK(c, gin.H{"removed": c.Param("highlightId")})
}

// POST /sessions/:id/deepdive
func (h *SessionHandler) DeepDive(c *gin.Context) {
	children, err := h.manager.DeepDive(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondMappedError(c, err, false)
		return
	}
	RespondOK(c, gin.H{"children": children})
}
