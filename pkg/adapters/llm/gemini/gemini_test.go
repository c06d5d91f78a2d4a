package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wilhg/daybook/pkg/adapters/llm"
)

func TestToContents(t *testing.T) {
	contents, cfg := toContents([]llm.Message{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "free time tomorrow?"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "find_free_time", Arguments: `{"date":"2025-01-02"}`}}},
		{Role: llm.RoleTool, ToolCallID: "c1", Name: "find_free_time", Content: `{"success":true}`},
	})
	require.NotNil(t, cfg.SystemInstruction)
	require.Len(t, contents, 3)
	require.NotNil(t, contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "2025-01-02", contents[1].Parts[0].FunctionCall.Args["date"])
	require.NotNil(t, contents[2].Parts[0].FunctionResponse)
	assert.Equal(t, "find_free_time", contents[2].Parts[0].FunctionResponse.Name)
}
