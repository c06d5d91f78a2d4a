package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/wilhg/daybook/pkg/adapters/llm"
	genai "google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash-lite"

type clientWrapper struct {
	client *genai.Client
	model  string
}

func (c *clientWrapper) Name() string { return "gemini" }

func (c *clientWrapper) modelFor(req llm.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.model
}

func (c *clientWrapper) Generate(ctx context.Context, req llm.Request) (llm.GenerateResult, error) {
	model := c.modelFor(req)
	contents, cfg := toContents(llm.DropOrphanToolMessages(req.Messages))
	applyParams(cfg, req)
	if len(req.Tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: toDeclarations(req.Tools)}}
	}
	res, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return llm.GenerateResult{}, err
	}
	out := llm.GenerateResult{Text: res.Text(), Model: model}
	for _, fc := range res.FunctionCalls() {
		args, _ := json.Marshal(fc.Args)
		id := fc.ID
		if id == "" {
			// Gemini API does not always assign call ids.
			id = "call_" + uuid.NewString()
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{ID: id, Name: fc.Name, Arguments: string(args)})
	}
	if u := res.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
		out.TotalTokens = int(u.TotalTokenCount)
	}
	return out, nil
}

func (c *clientWrapper) Stream(ctx context.Context, req llm.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		contents, cfg := toContents(llm.DropOrphanToolMessages(req.Messages))
		applyParams(cfg, req)
		for res, err := range c.client.Models.GenerateContentStream(ctx, c.modelFor(req), contents, cfg) {
			if err != nil {
				yield("", err)
				return
			}
			if t := res.Text(); t != "" {
				if !yield(t, nil) {
					return
				}
			}
		}
	}
}

func applyParams(cfg *genai.GenerateContentConfig, req llm.Request) {
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
}

// toContents maps the chat history onto Gemini contents. System messages become
// the system instruction; tool results become function responses.
func toContents(msgs []llm.Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{}
	var system []string
	var out []*genai.Content
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
		case llm.RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal([]byte(tc.Arguments), &args)
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, args))
			}
			if len(parts) > 0 {
				out = append(out, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		case llm.RoleTool:
			var resp map[string]any
			if err := json.Unmarshal([]byte(m.Content), &resp); err != nil {
				resp = map[string]any{"output": m.Content}
			}
			out = append(out, genai.NewContentFromParts([]*genai.Part{genai.NewPartFromFunctionResponse(m.Name, resp)}, genai.RoleUser))
		default:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return out, cfg
}

func toDeclarations(specs []llm.ToolSpec) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, s := range specs {
		var schema any
		if len(s.Parameters) > 0 {
			_ = json.Unmarshal(s.Parameters, &schema)
		}
		out = append(out, &genai.FunctionDeclaration{
			Name:                 s.Name,
			Description:          s.Description,
			ParametersJsonSchema: schema,
		})
	}
	return out
}

// Factory creates a Gemini LLM client using GOOGLE_API_KEY by default.
func Factory(ctx context.Context, cfg map[string]any) (llm.LLM, error) { // nolint: revive
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if v, ok := cfg["api_key"].(string); ok && v != "" {
		apiKey = v
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: missing API key; set GOOGLE_API_KEY or cfg.api_key")
	}
	cc := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if v, ok := cfg["base_url"].(string); ok && v != "" {
		cc.HTTPOptions.BaseURL = v
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	model := defaultModel
	if v, ok := cfg["model"].(string); ok && v != "" {
		model = v
	}
	return &clientWrapper{client: client, model: model}, nil
}

func init() {
	_ = llm.Register("gemini", Factory)
}
