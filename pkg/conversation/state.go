// Package conversation holds the message history of an assistant session and
// its retention policy, plus an event journal that makes sessions durable.
package conversation

import (
	"slices"

	"github.com/wilhg/daybook/pkg/adapters/llm"
)

// MaxHistory is the number of most recent messages kept before each model
// decision. Older messages are discarded: this bounds prompt cost at the price
// of forgetting earlier context.
const MaxHistory = 10

// State is the ordered history of one session. It is not safe for concurrent
// use; Sessions serializes turns of the same session.
type State struct {
	msgs []llm.Message
}

// New returns a state seeded with msgs.
func New(msgs ...llm.Message) *State {
	return &State{msgs: slices.Clone(msgs)}
}

// Append wraps plain text into a message of the given role.
func (s *State) Append(role, content string) {
	s.msgs = append(s.msgs, llm.Message{Role: role, Content: content})
}

// AppendMessage appends a structured message as is, e.g. an assistant turn
// carrying tool calls or a tool result.
func (s *State) AppendMessage(m llm.Message) {
	m.ToolCalls = slices.Clone(m.ToolCalls)
	s.msgs = append(s.msgs, m)
}

// Truncate keeps the n most recent messages in their original order and
// reports how many were dropped.
func (s *State) Truncate(n int) int {
	if n < 0 || len(s.msgs) <= n {
		return 0
	}
	drop := len(s.msgs) - n
	s.msgs = slices.Clone(s.msgs[drop:])
	return drop
}

// PromptMessages returns the system message followed by the history. The
// system prompt is never stored.
func (s *State) PromptMessages(system string) []llm.Message {
	out := make([]llm.Message, 0, len(s.msgs)+1)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: system})
	return append(out, s.msgs...)
}

// Clear forgets the whole history.
func (s *State) Clear() { s.msgs = nil }

// Messages returns a copy of the history.
func (s *State) Messages() []llm.Message { return slices.Clone(s.msgs) }

// Len reports the number of messages in the history.
func (s *State) Len() int { return len(s.msgs) }
