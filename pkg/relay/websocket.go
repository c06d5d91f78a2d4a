package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketSink writes JSON text frames: {"content": ...} per fragment and
// {"done": true} at the end. Keep-alives are ping control frames.
type WebSocketSink struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
}

// NewWebSocketSink wraps an upgraded connection. Writes time out after
// writeTimeout (10s when zero).
func NewWebSocketSink(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketSink {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WebSocketSink{conn: conn, timeout: writeTimeout}
}

// Frame is the JSON shape of a WebSocket message.
type Frame struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (s *WebSocketSink) Fragment(text string) error { return s.WriteFrame(Frame{Content: text}) }

func (s *WebSocketSink) Done() error { return s.WriteFrame(Frame{Done: true}) }

func (s *WebSocketSink) KeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.timeout))
}

// WriteFrame sends one frame, e.g. an error before a turn starts.
func (s *WebSocketSink) WriteFrame(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(f)
}
