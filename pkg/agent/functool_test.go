package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greetIn struct {
	Name  string `json:"name" jsonschema:"who to greet"`
	Times int    `json:"times,omitempty"`
	Tone  string `json:"tone,omitempty"`
}

type greetOut struct {
	Greeting string `json:"greeting"`
}

func newGreet(t *testing.T) *FuncTool[greetIn, greetOut] {
	t.Helper()
	tool, err := NewFuncTool("greet", "Greets someone",
		func(_ context.Context, in greetIn) (greetOut, error) {
			g := ""
			for i := 0; i < in.Times; i++ {
				g += "hi " + in.Name + "(" + in.Tone + ") "
			}
			return greetOut{Greeting: g}, nil
		},
		WithDefault("times", 1),
		WithDefault("tone", "warm"),
		WithEnum("tone", "warm", "cold"),
		WithRange("times", 1, 3),
		WithPermissions("cpu"),
	)
	require.NoError(t, err)
	return tool
}

func TestFuncTool_Schema(t *testing.T) {
	d := newGreet(t).Describe()
	var schema map[string]any
	require.NoError(t, json.Unmarshal(d.InputSchema, &schema))
	assert.Equal(t, []any{"name"}, schema["required"])
	props := schema["properties"].(map[string]any)
	assert.Equal(t, "who to greet", props["name"].(map[string]any)["description"])
	assert.Equal(t, []any{"warm", "cold"}, props["tone"].(map[string]any)["enum"])
	assert.EqualValues(t, 1, props["times"].(map[string]any)["default"])
	assert.Equal(t, []ToolPermission{{Name: "cpu"}}, d.Permissions)
	assert.NotEmpty(t, d.OutputSchema)
}

func TestFuncTool_DispatchFillsDefaultsAndValidates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newGreet(t)))

	res := reg.Dispatch(context.Background(), Call{ID: "1", Name: "greet", Arguments: `{"name":"ada"}`})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "hi ada(warm) ", res.Payload["greeting"])

	res = reg.Dispatch(context.Background(), Call{ID: "2", Name: "greet", Arguments: `{"name":"ada","tone":"loud"}`})
	assert.False(t, res.Success)
	assert.Equal(t, CodeInvalidArgument, res.Code)

	res = reg.Dispatch(context.Background(), Call{ID: "3", Name: "greet", Arguments: `{"name":"ada","times":9}`})
	assert.False(t, res.Success)

	res = reg.Dispatch(context.Background(), Call{ID: "4", Name: "greet", Arguments: `{}`})
	assert.False(t, res.Success, "name is required")
}

func TestFuncTool_UnknownOptionProperty(t *testing.T) {
	_, err := NewFuncTool("x", "", func(context.Context, greetIn) (greetOut, error) { return greetOut{}, nil },
		WithEnum("missing", "a"))
	assert.Error(t, err)
}
