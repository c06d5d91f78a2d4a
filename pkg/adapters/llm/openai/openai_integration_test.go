//go:build integration

package openai

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/wilhg/daybook/pkg/adapters/llm"
)

func TestOpenAIChatGenerate(t *testing.T) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		t.Skip("OPENAI_API_KEY not set")
	}
	ctx := context.Background()
	m, err := Factory(ctx, map[string]any{"base_url": os.Getenv("OPENAI_BASE_URL")})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	req := llm.Request{Messages: []llm.Message{{Role: "user", Content: "What time is it? Use the tool."}},
		Tools: []llm.ToolSpec{{Name: "get_current_time", Description: "Returns the current time",
			Parameters: []byte(`{"type":"object","properties":{}}`)}}}
	res, err := m.Generate(ctx, req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Text == "" && len(res.ToolCalls) == 0 {
		t.Fatalf("empty decision")
	}
}

func TestOpenAIChatStream(t *testing.T) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		t.Skip("OPENAI_API_KEY not set")
	}
	ctx := context.Background()
	m, err := Factory(ctx, map[string]any{"base_url": os.Getenv("OPENAI_BASE_URL")})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	var sb strings.Builder
	for frag, err := range m.Stream(ctx, llm.Request{Messages: []llm.Message{{Role: "user", Content: "Say 'pong'"}}}) {
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		sb.WriteString(frag)
	}
	if sb.Len() == 0 {
		t.Fatalf("empty response text")
	}
}
