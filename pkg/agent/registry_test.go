package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panicTool struct{}

func (panicTool) Describe() ToolDescriptor {
	return ToolDescriptor{Name: "boom", InputSchema: []byte(`{"type":"object"}`)}
}

func (panicTool) Invoke(context.Context, map[string]any) (map[string]any, error) {
	panic("kaboom")
}

type failTool struct{}

func (failTool) Describe() ToolDescriptor {
	return ToolDescriptor{Name: "fail", InputSchema: []byte(`{"type":"object"}`)}
}

func (failTool) Invoke(context.Context, map[string]any) (map[string]any, error) {
	return nil, errors.New("task not found")
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register(testTool{}))
	require.NoError(t, reg.Register(panicTool{}))
	require.NoError(t, reg.Register(failTool{}))
	return reg
}

func TestRegistry_OrderAndDuplicates(t *testing.T) {
	reg := newTestRegistry(t)
	err := reg.Register(testTool{})
	require.ErrorIs(t, err, ErrDuplicateTool)

	var names []string
	for _, d := range reg.Descriptors() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"sum", "boom", "fail"}, names)
	assert.Equal(t, 3, reg.Len())
}

func TestDispatch_FailuresNeverEscape(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	cases := []struct {
		name string
		call Call
		code string
		msg  string
	}{
		{"unknown tool", Call{ID: "1", Name: "nope", Arguments: `{}`}, CodeNotFound, "tool not found"},
		{"unparsable json", Call{ID: "2", Name: "sum", Arguments: `{"a":1,`}, CodeParseArguments, "failed to parse arguments"},
		{"non-object json", Call{ID: "3", Name: "sum", Arguments: `[1,2]`}, CodeParseArguments, "failed to parse arguments"},
		{"schema mismatch", Call{ID: "4", Name: "sum", Arguments: `{"a":"x","b":2}`}, CodeInvalidArgument, "invalid arguments"},
		{"execution error", Call{ID: "5", Name: "fail", Arguments: ``}, CodeExecution, "task not found"},
		{"panic", Call{ID: "6", Name: "boom", Arguments: `{}`}, CodePanic, "kaboom"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var res Result
			require.NotPanics(t, func() { res = reg.Dispatch(ctx, tc.call) })
			assert.False(t, res.Success)
			assert.Equal(t, tc.call.ID, res.CallID)
			assert.Equal(t, tc.code, res.Code)
			assert.Contains(t, res.Error, tc.msg)
		})
	}
}

func TestDispatch_PermissionDenied(t *testing.T) {
	reg := NewRegistry(WithAllowedPermissions("tasks:read"))
	require.NoError(t, reg.Register(testTool{}))
	res := reg.Dispatch(context.Background(), Call{ID: "1", Name: "sum", Arguments: `{"a":1,"b":2}`})
	assert.False(t, res.Success)
	assert.Equal(t, CodeForbidden, res.Code)
}

func TestResultContent(t *testing.T) {
	reg := newTestRegistry(t)
	ok := reg.Dispatch(context.Background(), Call{ID: "c1", Name: "sum", Arguments: `{"a":1,"b":2}`})
	require.True(t, ok.Success)
	assert.JSONEq(t, `{"success":true,"tool":"sum","result":{"sum":3}}`, ok.Content())

	bad := reg.Dispatch(context.Background(), Call{ID: "c2", Name: "fail"})
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(bad.Content()), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "fail", body["tool"])
	assert.Equal(t, "task not found", body["error"])
}
