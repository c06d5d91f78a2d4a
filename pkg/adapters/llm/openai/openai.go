package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"

	oa "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/wilhg/daybook/pkg/adapters/llm"
)

const (
	defaultModel = "gpt-5-nano"
)

type clientWrapper struct {
	client oa.Client
	model  string
}

func (c *clientWrapper) Name() string { return "openai" }

func (c *clientWrapper) params(req llm.Request, withTools bool) oa.ChatCompletionNewParams {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	p := oa.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: toMessages(llm.DropOrphanToolMessages(req.Messages)),
	}
	if req.Temperature != nil {
		p.Temperature = oa.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		p.MaxTokens = oa.Int(int64(req.MaxTokens))
	}
	if withTools && len(req.Tools) > 0 {
		p.Tools = toTools(req.Tools)
	}
	return p
}

func (c *clientWrapper) Generate(ctx context.Context, req llm.Request) (llm.GenerateResult, error) {
	p := c.params(req, true)
	resp, err := c.client.Chat.Completions.New(ctx, p)
	if err != nil {
		return llm.GenerateResult{}, err
	}
	var out llm.GenerateResult
	if len(resp.Choices) > 0 {
		msg := resp.Choices[0].Message
		out.Text = msg.Content
		for _, tc := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	usage := resp.Usage
	out.PromptTokens = int(usage.PromptTokens)
	out.OutputTokens = int(usage.CompletionTokens)
	out.TotalTokens = int(usage.TotalTokens)
	out.Model = string(p.Model)
	return out, nil
}

func (c *clientWrapper) Stream(ctx context.Context, req llm.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(req, false))
		defer func() { _ = stream.Close() }()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if d := chunk.Choices[0].Delta.Content; d != "" {
				if !yield(d, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield("", err)
		}
	}
}

func toMessages(msgs []llm.Message) []oa.ChatCompletionMessageParamUnion {
	mm := make([]oa.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			mm = append(mm, oa.SystemMessage(m.Content))
		case llm.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				mm = append(mm, oa.AssistantMessage(m.Content))
				continue
			}
			am := oa.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				am.Content.OfString = oa.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				am.ToolCalls = append(am.ToolCalls, oa.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &oa.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: oa.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					},
				})
			}
			mm = append(mm, oa.ChatCompletionMessageParamUnion{OfAssistant: &am})
		case llm.RoleTool:
			mm = append(mm, oa.ToolMessage(m.Content, m.ToolCallID))
		default:
			mm = append(mm, oa.UserMessage(m.Content))
		}
	}
	return mm
}

func toTools(specs []llm.ToolSpec) []oa.ChatCompletionToolUnionParam {
	out := make([]oa.ChatCompletionToolUnionParam, 0, len(specs))
	for _, s := range specs {
		params := shared.FunctionParameters{}
		if len(s.Parameters) > 0 {
			_ = json.Unmarshal(s.Parameters, &params)
		}
		out = append(out, oa.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        s.Name,
			Description: oa.String(s.Description),
			Parameters:  params,
		}))
	}
	return out
}

// Factory registers the OpenAI LLM provider: cfg keys: api_key, model, base_url.
// base_url points the client at any OpenAI-compatible endpoint.
func Factory(ctx context.Context, cfg map[string]any) (llm.LLM, error) { // nolint: revive
	_ = ctx
	apiKey := os.Getenv("OPENAI_API_KEY")
	if v, ok := cfg["api_key"].(string); ok && v != "" {
		apiKey = v
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: missing API key; set OPENAI_API_KEY or cfg.api_key")
	}
	model := defaultModel
	if v, ok := cfg["model"].(string); ok && v != "" {
		model = v
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if v, ok := cfg["base_url"].(string); ok && v != "" {
		opts = append(opts, option.WithBaseURL(v))
	}
	c := oa.NewClient(opts...)
	return &clientWrapper{client: c, model: model}, nil
}

func init() {
	_ = llm.Register("openai", Factory)
}
