package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wilhg/daybook/pkg/adapters/llm"
)

func TestToMessages_CarriesToolCalls(t *testing.T) {
	mm := toMessages([]llm.Message{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "get_tasks", Arguments: `{}`}}},
		{Role: llm.RoleTool, ToolCallID: "c1", Content: `{"success":true}`},
		{Role: llm.RoleAssistant, Content: "done"},
	})
	require.Len(t, mm, 5)
	require.NotNil(t, mm[2].OfAssistant)
	require.Len(t, mm[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "c1", mm[2].OfAssistant.ToolCalls[0].OfFunction.ID)
	require.NotNil(t, mm[3].OfTool)
	assert.Equal(t, "c1", mm[3].OfTool.ToolCallID)
}

func TestFactory_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := Factory(t.Context(), map[string]any{})
	assert.Error(t, err)
	m, err := Factory(t.Context(), map[string]any{"api_key": "k", "base_url": "http://localhost:1/v1", "model": "m"})
	require.NoError(t, err)
	assert.Equal(t, "openai", m.Name())
}
