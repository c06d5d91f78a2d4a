package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/wilhg/daybook/pkg/errmodel"
)

// FuncTool adapts a typed Go function into a Tool. Each tool has its own
// argument type In and result type Out; the schemas are derived from those
// types, so the registry boundary checks exactly what the function decodes.
type FuncTool[In, Out any] struct {
	desc     ToolDescriptor
	defaults map[string]any
	fn       func(context.Context, In) (Out, error)
}

// SchemaOption adjusts a derived input schema or the tool's declared permissions.
type SchemaOption func(*toolSpec) error

type toolSpec struct {
	schema *jsonschema.Schema
	perms  []ToolPermission
}

// WithEnum restricts a top-level property to the given values.
func WithEnum(prop string, values ...any) SchemaOption {
	return func(s *toolSpec) error {
		p, err := property(s.schema, prop)
		if err != nil {
			return err
		}
		p.Enum = values
		return nil
	}
}

// WithDefault declares a default for an optional top-level property. Missing
// arguments are filled with it before the function is called.
func WithDefault(prop string, value any) SchemaOption {
	return func(s *toolSpec) error {
		p, err := property(s.schema, prop)
		if err != nil {
			return err
		}
		b, err := json.Marshal(value)
		if err != nil {
			return err
		}
		p.Default = b
		return nil
	}
}

// WithRange bounds a numeric top-level property (inclusive).
func WithRange(prop string, minimum, maximum float64) SchemaOption {
	return func(s *toolSpec) error {
		p, err := property(s.schema, prop)
		if err != nil {
			return err
		}
		p.Minimum = &minimum
		p.Maximum = &maximum
		return nil
	}
}

// WithPattern constrains a string top-level property with a regular expression.
func WithPattern(prop, pattern string) SchemaOption {
	return func(s *toolSpec) error {
		p, err := property(s.schema, prop)
		if err != nil {
			return err
		}
		p.Pattern = pattern
		return nil
	}
}

// WithPermissions records the permissions the tool needs.
func WithPermissions(perms ...string) SchemaOption {
	return func(s *toolSpec) error {
		for _, p := range perms {
			s.perms = append(s.perms, ToolPermission{Name: p})
		}
		return nil
	}
}

func property(s *jsonschema.Schema, name string) (*jsonschema.Schema, error) {
	p, ok := s.Properties[name]
	if !ok || p == nil {
		return nil, fmt.Errorf("schema has no property %q", name)
	}
	return p, nil
}

// NewFuncTool derives the input and output schemas from In and Out with
// jsonschema-go and wraps fn. In must be a struct type.
func NewFuncTool[In, Out any](name, description string, fn func(context.Context, In) (Out, error), opts ...SchemaOption) (*FuncTool[In, Out], error) {
	in, err := jsonschema.For[In](nil)
	if err != nil {
		return nil, fmt.Errorf("tool %q: input schema: %w", name, err)
	}
	if in.Type != "object" {
		return nil, fmt.Errorf("tool %q: input type must be a struct", name)
	}
	spec := &toolSpec{schema: in}
	for _, opt := range opts {
		if err := opt(spec); err != nil {
			return nil, fmt.Errorf("tool %q: %w", name, err)
		}
	}
	defaults := map[string]any{}
	for k, p := range in.Properties {
		if len(p.Default) == 0 {
			continue
		}
		var v any
		if err := json.Unmarshal(p.Default, &v); err == nil {
			defaults[k] = v
		}
	}
	inBytes, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	var outBytes []byte
	if reflect.TypeFor[Out]().Kind() == reflect.Struct {
		out, err := jsonschema.For[Out](nil)
		if err != nil {
			return nil, fmt.Errorf("tool %q: output schema: %w", name, err)
		}
		if outBytes, err = json.Marshal(out); err != nil {
			return nil, err
		}
	}
	return &FuncTool[In, Out]{
		desc: ToolDescriptor{
			Name:         name,
			Description:  description,
			InputSchema:  inBytes,
			OutputSchema: outBytes,
			Permissions:  spec.perms,
		},
		defaults: defaults,
		fn:       fn,
	}, nil
}

// MustFuncTool is NewFuncTool that panics on a schema error. Use it for tools
// declared at build time.
func MustFuncTool[In, Out any](name, description string, fn func(context.Context, In) (Out, error), opts ...SchemaOption) *FuncTool[In, Out] {
	t, err := NewFuncTool(name, description, fn, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *FuncTool[In, Out]) Describe() ToolDescriptor { return t.desc }

// Invoke fills declared defaults, decodes args into In, runs the function and
// encodes Out as a generic object.
func (t *FuncTool[In, Out]) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	filled := make(map[string]any, len(args)+len(t.defaults))
	for k, v := range t.defaults {
		filled[k] = v
	}
	for k, v := range args {
		filled[k] = v
	}
	raw, err := json.Marshal(filled)
	if err != nil {
		return nil, errmodel.Validation("invalid_input", "arguments are not encodable", map[string]any{"tool": t.desc.Name, "error": err.Error()})
	}
	var in In
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, errmodel.Validation("invalid_input", "arguments do not match the tool", map[string]any{"tool": t.desc.Name, "error": err.Error()})
	}
	out, err := t.fn(ctx, in)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", t.desc.Name, err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%s result is not an object: %w", t.desc.Name, err)
	}
	return m, nil
}
