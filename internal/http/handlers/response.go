package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	pkgerrors "github.com/yungbote/deepdive-backend/internal/pkg/errors"
	"github.com/yungbote/deepdive-backend/internal/pkg/httpx"
)

var (
	errMissingID = errors.New("session id is required")
	errNoFlusher = errors.New("response writer does not support flushing")
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func writeSSEHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
}

func jsonBody(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// respondMappedError translates service errors into HTTP responses:
// sentinel lookups become 404/400, upstream failures keep their original
// status, everything else is a 502 for upstream transport faults at the
// caller's discretion, or a 500.
func respondMappedError(c *gin.Context, err error, upstreamTransport bool) {
	var sc httpx.HTTPStatusCoder
	switch {
	case errors.Is(err, pkgerrors.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, pkgerrors.ErrInvalidArgument):
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
	case errors.As(err, &sc):
		RespondError(c, sc.HTTPStatusCode(), "upstream_error", err)
	case upstreamTransport:
		RespondError(c, http.StatusBadGateway, "upstream_unreachable", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
