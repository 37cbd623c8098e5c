package httpx

import (
	"fmt"
	"io"
	"strings"
)

// WriteSSE writes one server-sent event. Multi-line data is split across
// data: lines per the SSE framing rules.
func WriteSSE(w io.Writer, event string, data string) error {
	if strings.TrimSpace(event) != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", strings.TrimSpace(event)); err != nil {
			return err
		}
	}
	for _, line := range strings.Split(data, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(w, "\n")
	return err
}
