package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/daybook/pkg/agent"
)

type echoIn struct {
	Text string `json:"text"`
}

type echoOut struct {
	Echo string `json:"echo"`
}

func testRegistry(t *testing.T) *agent.Registry {
	t.Helper()
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(agent.MustFuncTool("echo", "Echoes text",
		func(_ context.Context, in echoIn) (echoOut, error) { return echoOut{Echo: in.Text}, nil })))
	require.NoError(t, reg.Register(agent.MustFuncTool("fail", "Always fails",
		func(context.Context, echoIn) (echoOut, error) { return echoOut{}, errors.New("boom") })))
	return reg
}

func connect(t *testing.T, srv *mcp.Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	ct, st := mcp.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, st, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })
	c := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := c.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func textOf(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &body))
	return body
}

func TestListAndCall(t *testing.T) {
	ctx := context.Background()
	cs := connect(t, NewServer(testRegistry(t)))

	list, err := cs.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, list.Tools, 2)
	assert.Equal(t, "echo", list.Tools[0].Name)
	assert.Equal(t, "fail", list.Tools[1].Name)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "echo", Arguments: map[string]any{"text": "hi"}})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	body := textOf(t, res)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]any{"echo": "hi"}, body["result"])
}

func TestFailuresAreToolErrors(t *testing.T) {
	ctx := context.Background()
	cs := connect(t, NewServer(testRegistry(t)))

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "fail", Arguments: map[string]any{"text": "x"}})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "boom", textOf(t, res)["error"])

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{Name: "echo", Arguments: map[string]any{"text": 3}})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandlerRejectsUnknownUser(t *testing.T) {
	h := Handler(func(r *http.Request) (*agent.Registry, error) {
		if r.Header.Get("X-User-ID") == "" {
			return nil, errors.New("missing user")
		}
		return testRegistry(t), nil
	}, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Post(srv.URL, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.GreaterOrEqual(t, resp.StatusCode, 400)

	ctx := context.Background()
	c := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := c.Connect(ctx, &mcp.StreamableClientTransport{
		Endpoint:   srv.URL,
		HTTPClient: &http.Client{Transport: userTransport{"7"}},
	}, nil)
	require.NoError(t, err)
	defer cs.Close()
	list, err := cs.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	assert.Len(t, list.Tools, 2)
}

type userTransport struct{ id string }

func (u userTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("X-User-ID", u.id)
	return http.DefaultTransport.RoundTrip(r)
}
