// Package fake provides a scripted LLM for tests and offline development.
package fake

import (
	"context"
	"iter"
	"strconv"
	"sync"

	"github.com/wilhg/daybook/pkg/adapters/llm"
)

// Turn is one scripted decision. When ToolCalls is empty the decision is a
// final answer and the following Stream call yields Fragments.
type Turn struct {
	ToolCalls []llm.ToolCall
	Text      string
	Err       error
	// Fragments are streamed after a decision without tool calls. If empty,
	// Text is streamed as one fragment.
	Fragments []string
	StreamErr error
}

// Model replays Turns in order; once exhausted it repeats the last one. It
// records every request and counts calls.
type Model struct {
	mu      sync.Mutex
	turns   []Turn
	next    int
	current Turn

	// Requests holds a copy of every Generate request in call order.
	Requests []llm.Request
	// StreamRequests holds every Stream request in call order.
	StreamRequests []llm.Request
	// Pulled counts fragments handed to the consumer across all streams.
	Pulled int
	// Decide, when set, replaces the script.
	Decide func(req llm.Request) Turn
}

// New returns a Model that plays the given turns.
func New(turns ...Turn) *Model { return &Model{turns: turns} }

// AlwaysCall returns a Model that requests the named tool on every decision.
func AlwaysCall(tool, args string) *Model {
	m := &Model{}
	n := 0
	m.Decide = func(llm.Request) Turn {
		n++
		return Turn{ToolCalls: []llm.ToolCall{{ID: "call_" + strconv.Itoa(n), Name: tool, Arguments: args}}}
	}
	return m
}

func (m *Model) Name() string { return "fake" }

func (m *Model) Generate(ctx context.Context, req llm.Request) (llm.GenerateResult, error) {
	if err := ctx.Err(); err != nil {
		return llm.GenerateResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	req.Messages = append([]llm.Message(nil), req.Messages...)
	m.Requests = append(m.Requests, req)
	var t Turn
	switch {
	case m.Decide != nil:
		t = m.Decide(req)
	case len(m.turns) == 0:
		t = Turn{Text: "ok"}
	case m.next < len(m.turns):
		t = m.turns[m.next]
		m.next++
	default:
		t = m.turns[len(m.turns)-1]
	}
	m.current = t
	if t.Err != nil {
		return llm.GenerateResult{}, t.Err
	}
	return llm.GenerateResult{Text: t.Text, ToolCalls: t.ToolCalls, Model: "fake"}, nil
}

func (m *Model) Stream(ctx context.Context, req llm.Request) iter.Seq2[string, error] {
	m.mu.Lock()
	req.Messages = append([]llm.Message(nil), req.Messages...)
	m.StreamRequests = append(m.StreamRequests, req)
	t := m.current
	m.mu.Unlock()
	frags := t.Fragments
	if len(frags) == 0 && t.Text != "" {
		frags = []string{t.Text}
	}
	return func(yield func(string, error) bool) {
		for _, f := range frags {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			m.mu.Lock()
			m.Pulled++
			m.mu.Unlock()
			if !yield(f, nil) {
				return
			}
		}
		if t.StreamErr != nil {
			yield("", t.StreamErr)
		}
	}
}

// Decisions reports how many Generate calls were made.
func (m *Model) Decisions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// Fragments reports how many stream fragments were pulled by consumers.
func (m *Model) Fragments() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Pulled
}

// Factory builds a Model that always answers with cfg["reply"] (default "ok").
func Factory(_ context.Context, cfg map[string]any) (llm.LLM, error) {
	reply := "ok"
	if v, ok := cfg["reply"].(string); ok && v != "" {
		reply = v
	}
	return New(Turn{Text: reply}), nil
}

func init() {
	_ = llm.Register("fake", Factory)
}
