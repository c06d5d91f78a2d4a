package relay

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordSink struct {
	mu        sync.Mutex
	events    []string
	onFrag    func(string) error
	keepAlive int
}

func (s *recordSink) Fragment(text string) error {
	if s.onFrag != nil {
		if err := s.onFrag(text); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, text)
	return nil
}

func (s *recordSink) KeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keepAlive++
	return nil
}

func (s *recordSink) Done() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "[DONE]")
	return nil
}

func seq(frags ...string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, f := range frags {
			if !yield(f) {
				return
			}
		}
	}
}

func TestRelayForwardsInOrder(t *testing.T) {
	sink := &recordSink{}
	require.NoError(t, Relay(context.Background(), seq("a", "b", "c"), sink, time.Second))
	assert.Equal(t, []string{"a", "b", "c", "[DONE]"}, sink.events)

	empty := &recordSink{}
	require.NoError(t, Relay(context.Background(), seq(), empty, time.Second))
	assert.Equal(t, []string{"[DONE]"}, empty.events, "an empty sequence still terminates")
}

func TestRelayDoesNotReadAhead(t *testing.T) {
	var pulled atomic.Int32
	producer := func(yield func(string) bool) {
		for _, f := range []string{"1", "2", "3"} {
			pulled.Add(1)
			if !yield(f) {
				return
			}
		}
	}
	release := make(chan struct{})
	sink := &recordSink{onFrag: func(f string) error {
		if f == "1" {
			<-release
		}
		return nil
	}}
	done := make(chan error, 1)
	go func() { done <- Relay(context.Background(), producer, sink, time.Second) }()

	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 1, pulled.Load(), "the producer waits while the sink is busy")
	close(release)
	require.NoError(t, <-done)
	assert.EqualValues(t, 3, pulled.Load())
}

func TestRelayKeepAliveWhileIdle(t *testing.T) {
	slow := func(yield func(string) bool) {
		time.Sleep(60 * time.Millisecond)
		yield("late")
	}
	sink := &recordSink{}
	require.NoError(t, Relay(context.Background(), slow, sink, 10*time.Millisecond))
	assert.GreaterOrEqual(t, sink.keepAlive, 2)
	assert.Equal(t, []string{"late", "[DONE]"}, sink.events)
}

func TestRelayStopsProducerOnSinkError(t *testing.T) {
	stopped := make(chan struct{})
	producer := func(yield func(string) bool) {
		defer close(stopped)
		for {
			if !yield("x") {
				return
			}
		}
	}
	broken := errors.New("client gone")
	sink := &recordSink{onFrag: func(string) error { return broken }}
	err := Relay(context.Background(), producer, sink, time.Second)
	assert.ErrorIs(t, err, broken)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("producer kept running")
	}
}

func TestRelayContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	block := func(yield func(string) bool) {
		yield("first")
		<-ctx.Done()
	}
	sink := &recordSink{onFrag: func(string) error { cancel(); return nil }}
	err := Relay(ctx, block, sink, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, sink.events, "[DONE]")
}

// A sequence stuck in work that ignores ctx, like a slow tool, must finish
// before Relay hands control back to the caller.
func TestRelayWaitsForSequenceAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	working := make(chan struct{})
	unblock := make(chan struct{})
	var finished atomic.Bool
	busy := func(yield func(string) bool) {
		defer finished.Store(true)
		if !yield("thinking") {
			return
		}
		close(working)
		<-unblock
		yield("after tool")
	}

	returned := make(chan error, 1)
	go func() { returned <- Relay(ctx, busy, &recordSink{}, time.Hour) }()

	select {
	case <-working:
	case <-time.After(time.Second):
		t.Fatal("sequence never reached the blocking step")
	}
	cancel()

	select {
	case <-returned:
		t.Fatal("Relay returned while the sequence was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(unblock)
	select {
	case err := <-returned:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Relay did not return after the sequence finished")
	}
	assert.True(t, finished.Load())
}

func TestSSESink(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := NewSSESink(rec, time.Second)
	require.NoError(t, sink.Fragment(`he said "hi"`))
	require.NoError(t, sink.KeepAlive())
	require.NoError(t, sink.Done())

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "data: {\"content\":\"he said \\\"hi\\\"\"}\n\n: keep-alive\n\ndata: [DONE]\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestWebSocketSink(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		sink := NewWebSocketSink(conn, time.Second)
		_ = Relay(r.Context(), seq("你好", "!"), sink, time.Second)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	var frames []Frame
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		frames = append(frames, f)
		if f.Done {
			break
		}
	}
	assert.Equal(t, []Frame{{Content: "你好"}, {Content: "!"}, {Done: true}}, frames)
}
