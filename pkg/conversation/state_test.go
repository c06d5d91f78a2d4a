package conversation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/daybook/pkg/adapters/llm"
)

// Truncation is lossy on purpose: the oldest messages are gone for good.
func TestTruncateKeepsMostRecentInOrder(t *testing.T) {
	s := New()
	for i := range 13 {
		s.Append(llm.RoleUser, fmt.Sprintf("m%d", i))
	}
	assert.Equal(t, 3, s.Truncate(MaxHistory))
	require.Equal(t, MaxHistory, s.Len())
	msgs := s.Messages()
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("m%d", i+3), m.Content)
	}
	assert.Zero(t, s.Truncate(MaxHistory), "already within the ceiling")
}

func TestPromptMessages(t *testing.T) {
	s := New()
	s.Append(llm.RoleUser, "hi")
	s.AppendMessage(llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "1", Name: "get_tasks", Arguments: "{}"}}})
	s.AppendMessage(llm.Message{Role: llm.RoleTool, ToolCallID: "1", Name: "get_tasks", Content: `{"success":true}`})

	got := s.PromptMessages("system v1")
	require.Len(t, got, 4)
	assert.Equal(t, llm.Message{Role: llm.RoleSystem, Content: "system v1"}, got[0])
	assert.Equal(t, "1", got[3].ToolCallID)
	assert.Equal(t, 3, s.Len(), "the system prompt is not stored")

	got[1].Content = "mutated"
	assert.Equal(t, "hi", s.Messages()[0].Content)

	s.Clear()
	assert.Zero(t, s.Len())
	assert.Len(t, s.PromptMessages("x"), 1)
}
