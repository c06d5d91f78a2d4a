// Package mcpserver exposes a user's tool registry over the Model Context
// Protocol. Calls go through Registry.Dispatch, so MCP clients get the same
// validation and failure reporting as the model does.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wilhg/daybook/pkg/agent"
)

// Implementation names this server during the MCP handshake.
var Implementation = &mcp.Implementation{Name: "daybook", Version: "v1"}

// NewServer builds an MCP server listing every tool of reg in registration
// order.
func NewServer(reg *agent.Registry) *mcp.Server {
	srv := mcp.NewServer(Implementation, nil)
	for _, d := range reg.Descriptors() {
		srv.AddTool(toolFor(d), handlerFor(reg, d.Name))
	}
	return srv
}

func toolFor(d agent.ToolDescriptor) *mcp.Tool {
	t := &mcp.Tool{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: json.RawMessage(d.InputSchema),
	}
	if len(d.OutputSchema) > 0 {
		t.OutputSchema = json.RawMessage(d.OutputSchema)
	}
	return t
}

func handlerFor(reg *agent.Registry, name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		call := agent.Call{Name: name}
		if req.Params != nil {
			call.Arguments = string(req.Params.Arguments)
		}
		res := reg.Dispatch(ctx, call)
		out := &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: res.Content()}},
			IsError: !res.Success,
		}
		if res.Success {
			out.StructuredContent = res.Payload
		}
		return out, nil
	}
}

// RegistryFunc builds the registry for the user behind a request.
type RegistryFunc func(r *http.Request) (*agent.Registry, error)

// Handler serves MCP over streamable HTTP. A server is built per session
// from the registry of the user that opened it.
func Handler(build RegistryFunc, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		reg, err := build(r)
		if err != nil {
			log.Warn("mcp session rejected", "error", err)
			return nil
		}
		return NewServer(reg)
	}, nil)
}
