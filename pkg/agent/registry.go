package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/wilhg/daybook/pkg/errmodel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrDuplicateTool is returned by Register when the name is already taken. The
// first registration is kept.
var ErrDuplicateTool = errors.New("tool already registered")

// Registry keeps tools by name in registration order. It is safe for
// concurrent use; tools are normally registered once when an agent is built
// and read-only afterwards.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	tools   map[string]Tool
	allowed map[string]bool
}

// RegistryOption configures a Registry at construction time.
type RegistryOption func(*Registry)

// WithAllowedPermissions restricts dispatch to tools whose permissions are all
// in the set. Without this option every permission is granted.
func WithAllowedPermissions(perms ...string) RegistryOption {
	return func(r *Registry) {
		r.allowed = map[string]bool{}
		for _, p := range perms {
			r.allowed[p] = true
		}
	}
}

// NewRegistry constructs an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{tools: map[string]Tool{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register registers a Tool by its descriptor name.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool is nil")
	}
	d := t.Describe()
	if d.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if err := CompileJSONSchema(d.InputSchema); err != nil {
		return fmt.Errorf("tool %q: input schema: %w", d.Name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[d.Name]; exists {
		return fmt.Errorf("tool %q: %w", d.Name, ErrDuplicateTool)
	}
	r.tools[d.Name] = t
	r.order = append(r.order, d.Name)
	return nil
}

// Resolve returns a Tool by name.
func (r *Registry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Descriptors returns the descriptors in registration order.
func (r *Registry) Descriptors() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.tools[n].Describe())
	}
	return out
}

// Dispatch looks the tool up by name, parses the raw JSON arguments, validates
// and invokes it. It never returns an error and never panics; every failure is
// reported through Result.
func (r *Registry) Dispatch(ctx context.Context, call Call) (res Result) {
	tr := otel.Tracer("agent/registry")
	ctx, span := tr.Start(ctx, "Registry.Dispatch", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	))
	defer func() {
		span.SetAttributes(attribute.Bool("tool.success", res.Success))
		if !res.Success {
			span.SetStatus(codes.Error, res.Error)
		}
		span.End()
	}()

	t, ok := r.Resolve(call.Name)
	if !ok {
		return failure(call, CodeNotFound, "tool not found")
	}
	args, err := parseArguments(call.Arguments)
	if err != nil {
		return failure(call, CodeParseArguments, "failed to parse arguments: "+err.Error())
	}
	out, err := r.invoke(ctx, t, args)
	if err != nil {
		return failure(call, failureCode(err), failureMessage(err))
	}
	if out == nil {
		out = map[string]any{}
	}
	return Result{CallID: call.ID, Tool: call.Name, Success: true, Payload: out}
}

func (r *Registry) invoke(ctx context.Context, t Tool, args map[string]any) (out map[string]any, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, errmodel.New(errmodel.CategoryTool, CodePanic, fmt.Sprintf("tool panicked: %v", p), nil)
		}
	}()
	return SafeInvoke(ctx, t, args, r.allowed, JSONSchemaValidator)
}

// parseArguments accepts an empty string as {} and otherwise requires a JSON object.
func parseArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func failureCode(err error) string {
	ce := errmodel.From(err)
	switch {
	case ce.Code == "invalid_input":
		return CodeInvalidArgument
	case ce.Code == CodePanic:
		return CodePanic
	case ce.Category == errmodel.CategoryPolicy:
		return CodeForbidden
	default:
		return CodeExecution
	}
}

func failureMessage(err error) string {
	var ce *errmodel.Error
	if !errors.As(err, &ce) {
		return err.Error()
	}
	if ce.Code == "invalid_input" {
		if detail, ok := ce.Context["error"].(string); ok && detail != "" {
			return "invalid arguments: " + detail
		}
		return "invalid arguments"
	}
	return ce.Message
}
