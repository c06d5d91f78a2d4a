package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SSESink writes server-sent events: one data line per fragment carrying
// {"content": ...}, comment lines as keep-alives and "data: [DONE]" last.
type SSESink struct {
	w     http.ResponseWriter
	rc    *http.ResponseController
	write time.Duration
}

// NewSSESink sets the event-stream headers on w. Every write extends the
// connection's write deadline by writeTimeout when it is positive.
func NewSSESink(w http.ResponseWriter, writeTimeout time.Duration) *SSESink {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &SSESink{w: w, rc: http.NewResponseController(w), write: writeTimeout}
}

type contentEvent struct {
	Content string `json:"content"`
}

func (s *SSESink) Fragment(text string) error {
	b, err := json.Marshal(contentEvent{Content: text})
	if err != nil {
		return err
	}
	return s.send("data: %s\n\n", b)
}

func (s *SSESink) KeepAlive() error { return s.send(": keep-alive\n\n") }

func (s *SSESink) Done() error { return s.send("data: [DONE]\n\n") }

func (s *SSESink) send(format string, args ...any) error {
	if s.write > 0 {
		// Not every ResponseWriter supports deadlines.
		_ = s.rc.SetWriteDeadline(time.Now().Add(s.write))
	}
	if _, err := fmt.Fprintf(s.w, format, args...); err != nil {
		return err
	}
	return s.rc.Flush()
}
