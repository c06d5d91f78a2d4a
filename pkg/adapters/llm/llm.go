// Package llm defines the model collaborator used by the orchestrator: a
// non-streaming decision call that may return tool calls, and a streaming call
// that yields answer text fragments. Providers register factories by name.
package llm

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a tool invocation requested by the model. Arguments is the raw
// JSON text the model emitted and may be malformed.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message represents a chat message. Assistant messages may carry ToolCalls;
// tool messages carry the ToolCallID they answer.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	// Name is the tool name on tool messages. Some providers need it to
	// correlate function responses.
	Name string `json:"name,omitempty"`
}

// ToolSpec is the {name, description, parameters} triple offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object.
	Parameters []byte
}

// Request is one model call. Tools are ignored by Stream.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolSpec
	Temperature *float64
	MaxTokens   int
}

// GenerateResult contains the model's text output, requested tool calls and token usage if available.
type GenerateResult struct {
	Text         string
	ToolCalls    []ToolCall
	PromptTokens int
	OutputTokens int
	TotalTokens  int
	Model        string
}

// LLM defines the chat interface the orchestrator drives.
type LLM interface {
	// Name returns provider name (e.g., "openai").
	Name() string
	// Generate performs a non-streaming call; the full decision (text and
	// tool calls) is available atomically.
	Generate(ctx context.Context, req Request) (GenerateResult, error)
	// Stream performs a streaming call with tool calling disabled. The
	// sequence yields text fragments in generation order and at most one
	// terminal error. Breaking out of the loop releases the upstream request.
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]
}

// Factory constructs an LLM from provider-specific config.
// Common keys: api_key, model, base_url.
type Factory func(ctx context.Context, cfg map[string]any) (LLM, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers an LLM factory under a provider name.
func Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("llm: empty provider name")
	}
	if f == nil {
		return fmt.Errorf("llm: nil factory for %q", name)
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := factories[name]; exists {
		return fmt.Errorf("llm: provider %q already registered", name)
	}
	factories[name] = f
	return nil
}

// Resolve gets a registered factory by name.
func Resolve(name string) (Factory, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// Range iterates all registered factories.
func Range(fn func(name string, f Factory)) {
	regMu.RLock()
	defer regMu.RUnlock()
	for n, f := range factories {
		fn(n, f)
	}
}

// Providers lists registered provider names in sorted order.
func Providers() []string {
	var out []string
	Range(func(name string, _ Factory) { out = append(out, name) })
	sort.Strings(out)
	return out
}

// New resolves the provider and constructs a model from cfg.
func New(ctx context.Context, provider string, cfg map[string]any) (LLM, error) {
	f, ok := Resolve(provider)
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q", provider)
	}
	return f(ctx, cfg)
}

// StreamText adapts a complete text into a single-fragment stream. Providers
// without native streaming can use it.
func StreamText(text string, err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err != nil {
			yield("", err)
			return
		}
		if text != "" {
			yield(text, nil)
		}
	}
}

// DropOrphanToolMessages removes tool messages whose ToolCallID was not
// announced by a preceding assistant message. History truncation can cut an
// assistant tool-call message while keeping its results, and providers reject
// such sequences.
func DropOrphanToolMessages(msgs []Message) []Message {
	announced := map[string]bool{}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			for _, tc := range m.ToolCalls {
				announced[tc.ID] = true
			}
		case RoleTool:
			if !announced[m.ToolCallID] {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}
