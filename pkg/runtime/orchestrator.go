// Package runtime drives one assistant turn: it asks the model whether tools
// are needed, dispatches them through the registry, folds the results back
// into the conversation and finally streams the answer.
package runtime

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wilhg/daybook/pkg/adapters/llm"
	"github.com/wilhg/daybook/pkg/agent"
	"github.com/wilhg/daybook/pkg/conversation"
	"github.com/wilhg/daybook/pkg/prompt"
)

// DefaultMaxIterations bounds the model decisions of one turn.
const DefaultMaxIterations = 5

// Fixed user-facing texts.
const (
	ResetMessage       = "Sorry, this request took too many steps, so I have reset our conversation. Please describe what you need again, ideally one thing at a time."
	EmptyAnswerMessage = "Sorry, I couldn't understand your question, please rephrase."
	cancelledToolError = "cancelled before execution"
)

func tracer() trace.Tracer { return otel.Tracer("runtime/orchestrator") }

// Orchestrator runs turns against one conversation state. It is bound to a
// model, a user's tool registry and a state for the duration of a request.
type Orchestrator struct {
	model llm.LLM
	reg   *agent.Registry
	state *conversation.State

	maxIter     int
	now         func() time.Time
	loc         *time.Location
	log         *slog.Logger
	journal     *conversation.Journal
	session     string
	modelName   string
	temperature *float64
	maxTokens   int
	estimate    conversation.TokenEstimator
	prompt      prompt.Prompt
}

// Option configures the Orchestrator at construction time.
type Option func(*Orchestrator)

// WithMaxIterations overrides the decision budget; n <= 0 is ignored.
func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxIter = n
		}
	}
}

// WithClock sets the time source used for the system prompt.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLocation sets the user's time zone.
func WithLocation(loc *time.Location) Option {
	return func(o *Orchestrator) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithLogger sets the logger for turn diagnostics; nil keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithJournal records every message and reset of the turn under session.
func WithJournal(j *conversation.Journal, session string) Option {
	return func(o *Orchestrator) {
		o.journal = j
		o.session = session
	}
}

// WithModelParams sets the model name, temperature and output token limit
// of every request. Zero values leave the provider defaults.
func WithModelParams(model string, temperature *float64, maxTokens int) Option {
	return func(o *Orchestrator) {
		o.modelName = model
		o.temperature = temperature
		o.maxTokens = maxTokens
	}
}

// WithTokenEstimator enables prompt size estimates on decision spans.
func WithTokenEstimator(est conversation.TokenEstimator) Option {
	return func(o *Orchestrator) { o.estimate = est }
}

// WithPrompt replaces the system prompt template. It is rendered with
// prompt.AssistantData.
func WithPrompt(p prompt.Prompt) Option {
	return func(o *Orchestrator) {
		if p.Body != "" {
			o.prompt = p
		}
	}
}

// NewOrchestrator returns an orchestrator with a budget of
// DefaultMaxIterations decisions per turn.
func NewOrchestrator(model llm.LLM, reg *agent.Registry, state *conversation.State, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		model:   model,
		reg:     reg,
		state:   state,
		maxIter: DefaultMaxIterations,
		now:     time.Now,
		loc:     time.Local,
		log:     slog.Default(),
		prompt:  prompt.DefaultAssistant,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Process runs one turn for message. The returned sequence yields the answer
// fragments in generation order and always ends. It is single use. Breaking
// out of the loop stops the turn: no further model tokens are requested and
// the partial answer is not stored.
func (o *Orchestrator) Process(ctx context.Context, message string) iter.Seq[string] {
	return func(yield func(string) bool) {
		ctx, span := tracer().Start(ctx, "Orchestrator.Process", trace.WithAttributes(
			attribute.String("session.id", o.session),
			attribute.Int("message.length", len(message)),
		))
		defer span.End()

		system := o.systemPrompt(message)
		o.append(ctx, llm.Message{Role: llm.RoleUser, Content: message})
		tools := o.toolSpecs()

		for i := 1; i <= o.maxIter; i++ {
			if dropped := o.state.Truncate(conversation.MaxHistory); dropped > 0 {
				o.log.Debug("history truncated", "session", o.session, "dropped", dropped)
			}
			res, err := o.decide(ctx, i, system, tools)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				span.RecordError(err)
				span.SetStatus(codes.Error, "model decision failed")
				o.log.Error("model decision failed", "session", o.session, "iteration", i, "error", err)
				yield(failureText(err))
				return
			}
			if len(res.ToolCalls) == 0 {
				span.SetAttributes(attribute.Int("turn.iterations", i))
				o.answer(ctx, system, yield)
				return
			}
			o.execute(ctx, res)
			if ctx.Err() != nil {
				return
			}
		}

		span.SetAttributes(attribute.Bool("turn.reset", true))
		o.log.Warn("iteration budget exhausted, resetting conversation", "session", o.session, "budget", o.maxIter)
		o.state.Clear()
		if o.journal != nil {
			if err := o.journal.Reset(context.WithoutCancel(ctx), o.session, "iteration budget exhausted"); err != nil {
				o.log.Error("journal reset failed", "session", o.session, "error", err)
			}
		}
		yield(ResetMessage)
	}
}

func (o *Orchestrator) request(system string, tools []llm.ToolSpec) llm.Request {
	return llm.Request{
		Model:       o.modelName,
		Messages:    o.state.PromptMessages(system),
		Tools:       tools,
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	}
}

func (o *Orchestrator) decide(ctx context.Context, iteration int, system string, tools []llm.ToolSpec) (llm.GenerateResult, error) {
	req := o.request(system, tools)
	ctx, span := tracer().Start(ctx, "Orchestrator.Decide", trace.WithAttributes(
		attribute.Int("iteration", iteration),
		attribute.Int("messages", len(req.Messages)),
	))
	defer span.End()
	if o.estimate != nil {
		span.SetAttributes(attribute.Int("prompt.tokens_estimate", conversation.EstimateMessages(o.estimate, req.Messages)))
	}
	res, err := o.model.Generate(ctx, req)
	if err != nil {
		span.RecordError(err)
		return res, err
	}
	span.SetAttributes(attribute.Int("tool_calls", len(res.ToolCalls)), attribute.Int("usage.total_tokens", res.TotalTokens))
	return res, nil
}

// execute dispatches the requested calls in order and appends the assistant
// message followed by one tool message per call. Calls not yet started when
// ctx ends are answered with a failure so the history stays well formed.
func (o *Orchestrator) execute(ctx context.Context, res llm.GenerateResult) {
	calls := make([]llm.ToolCall, len(res.ToolCalls))
	for i, tc := range res.ToolCalls {
		if tc.ID == "" {
			tc.ID = "call_" + uuid.NewString()
		}
		calls[i] = tc
	}
	o.append(ctx, llm.Message{Role: llm.RoleAssistant, Content: res.Text, ToolCalls: calls})
	for _, tc := range calls {
		var r agent.Result
		if ctx.Err() != nil {
			r = agent.Result{CallID: tc.ID, Tool: tc.Name, Error: cancelledToolError, Code: agent.CodeExecution}
		} else {
			r = o.reg.Dispatch(ctx, agent.Call{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
		if r.Success {
			o.log.Info("tool executed", "session", o.session, "tool", tc.Name)
		} else {
			o.log.Warn("tool failed", "session", o.session, "tool", tc.Name, "code", r.Code, "error", r.Error)
		}
		o.append(ctx, llm.Message{Role: llm.RoleTool, ToolCallID: tc.ID, Name: tc.Name, Content: r.Content()})
	}
}

// answer streams the final answer without tools.
func (o *Orchestrator) answer(ctx context.Context, system string, yield func(string) bool) {
	ctx, span := tracer().Start(ctx, "Orchestrator.Answer")
	defer span.End()
	var b strings.Builder
	fragments := 0
	for frag, err := range o.model.Stream(ctx, o.request(system, nil)) {
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			span.RecordError(err)
			o.log.Error("answer stream failed", "session", o.session, "fragments", fragments, "error", err)
			yield(failureText(err))
			return
		}
		if frag == "" {
			continue
		}
		b.WriteString(frag)
		fragments++
		if !yield(frag) {
			span.SetAttributes(attribute.Bool("consumer.stopped", true))
			return
		}
	}
	text := b.String()
	if strings.TrimSpace(text) == "" {
		text = EmptyAnswerMessage
		if !yield(text) {
			return
		}
	}
	span.SetAttributes(attribute.Int("fragments", fragments))
	o.append(ctx, llm.Message{Role: llm.RoleAssistant, Content: text})
}

func (o *Orchestrator) append(ctx context.Context, m llm.Message) {
	o.state.AppendMessage(m)
	if o.journal == nil {
		return
	}
	if err := o.journal.Record(context.WithoutCancel(ctx), o.session, m); err != nil {
		o.log.Error("journal record failed", "session", o.session, "role", m.Role, "error", err)
	}
}

func (o *Orchestrator) toolSpecs() []llm.ToolSpec {
	ds := o.reg.Descriptors()
	out := make([]llm.ToolSpec, 0, len(ds))
	for _, d := range ds {
		out = append(out, llm.ToolSpec{Name: d.Name, Description: d.Description, Parameters: d.InputSchema})
	}
	return out
}

// systemPrompt renders the prompt template with the current time. A broken
// template falls back to the built-in one.
func (o *Orchestrator) systemPrompt(message string) string {
	ds := o.reg.Descriptors()
	lines := make([]prompt.ToolLine, 0, len(ds))
	for _, d := range ds {
		lines = append(lines, prompt.ToolLine{Name: d.Name, Description: d.Description})
	}
	data := prompt.NewAssistantData(o.now().In(o.loc), message, lines)
	text, err := prompt.Render(o.prompt, data)
	if err == nil {
		return text
	}
	o.log.Error("system prompt render failed, using default", "version", o.prompt.Version, "error", err)
	text, _ = prompt.Render(prompt.DefaultAssistant, data)
	return text
}

// failureText turns a model channel error into a sentence for the user.
func failureText(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Sorry, the assistant took too long to respond. Please try again in a moment."
	default:
		return "Sorry, the assistant service is unavailable right now. Please try again later."
	}
}
