package agent

import (
	"context"

	"github.com/wilhg/daybook/pkg/errmodel"
)

// ToolPermission describes a capability a tool requires.
// Example: tasks:read, tasks:write, ledger:write, network:outbound
type ToolPermission struct {
	// Name is a stable identifier of the permission.
	Name string `json:"name"`
	// Description explains what the permission allows.
	Description string `json:"description,omitempty"`
}

// ToolDescriptor declares the static interface of a tool.
// InputSchema and OutputSchema are JSON Schemas (draft 2020-12) in UTF-8 bytes.
type ToolDescriptor struct {
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	InputSchema  []byte           `json:"input_schema"`
	OutputSchema []byte           `json:"output_schema"`
	Permissions  []ToolPermission `json:"permissions,omitempty"`
}

// Tool defines a callable unit with schema-validated inputs/outputs and a permission model.
type Tool interface {
	// Describe returns the public descriptor (schemas, permissions).
	Describe() ToolDescriptor
	// Invoke executes the tool with validated args. The args MUST conform to InputSchema.
	// The returned map MUST conform to OutputSchema.
	Invoke(ctx context.Context, args map[string]any) (map[string]any, error)
}

// SafeInvoke validates input against the tool's schema, invokes it, and validates output.
// Permission checks are passed in by the caller via allowed set; a nil set grants every
// permission, otherwise missing permissions cause a policy error.
func SafeInvoke(ctx context.Context, t Tool, args map[string]any, allowed map[string]bool, validate ValidateFunc) (map[string]any, error) {
	if t == nil {
		return nil, errmodel.Validation("bad_tool", "tool is nil", nil)
	}
	if validate == nil {
		validate = JSONSchemaValidator
	}
	d := t.Describe()
	if allowed != nil {
		for _, p := range d.Permissions {
			if !allowed[p.Name] {
				return nil, errmodel.Policy("forbidden", "permission denied for tool", map[string]any{"permission": p.Name, "tool": d.Name})
			}
		}
	}
	if err := validate(d.InputSchema, args); err != nil {
		return nil, errmodel.Validation("invalid_input", "tool input validation failed", map[string]any{"tool": d.Name, "error": err.Error()})
	}
	out, err := t.Invoke(ctx, args)
	if err != nil {
		return nil, err
	}
	if err := validate(d.OutputSchema, out); err != nil {
		return nil, errmodel.Validation("invalid_output", "tool output validation failed", map[string]any{"tool": d.Name, "error": err.Error()})
	}
	return out, nil
}
