// Package agent defines the capability contract between the orchestrator and
// the side-effecting operations it exposes to a language model.
//
// A Tool declares a name, a natural-language description and JSON Schemas
// (draft 2020-12) for its input and output. A Registry holds the tools bound to
// one acting user and dispatches model-requested calls by name. Dispatch is a
// hard boundary: unknown tools, malformed arguments, schema mismatches,
// execution errors and panics all come back as failure Results, never as Go
// errors or panics, so a single failing call cannot abort a conversation turn.
//
// Example usage:
//
//	reg := agent.NewRegistry()
//	_ = reg.Register(agent.MustFuncTool("add", "Adds two numbers",
//		func(ctx context.Context, in struct{ A, B float64 }) (map[string]any, error) {
//			return map[string]any{"sum": in.A + in.B}, nil
//		}))
//	res := reg.Dispatch(ctx, agent.Call{ID: "c1", Name: "add", Arguments: `{"A":1,"B":2}`})
package agent

import (
	"bytes"
	"encoding/json"
)

// Call is a tool invocation requested by the model. Arguments is the raw JSON
// text and has not been checked.
type Call struct {
	// ID correlates the call with its result in the conversation.
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Failure codes carried by Result.Code.
const (
	CodeNotFound        = "not_found"
	CodeParseArguments  = "parse_arguments"
	CodeInvalidArgument = "invalid_arguments"
	CodeExecution       = "execution"
	CodePanic           = "panic"
	CodeForbidden       = "forbidden"
)

// Result is the outcome of one dispatched call.
type Result struct {
	CallID  string         `json:"call_id"`
	Tool    string         `json:"tool"`
	Success bool           `json:"success"`
	Payload map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Code    string         `json:"code,omitempty"`
}

// Content renders the tool-role message body fed back to the model:
// {"success":true,"tool":name,"result":...} or {"success":false,"tool":name,"error":...}.
func (r Result) Content() string {
	body := map[string]any{"success": r.Success, "tool": r.Tool}
	if r.Success {
		body["result"] = r.Payload
	} else {
		body["error"] = r.Error
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return `{"success":false,"tool":` + quote(r.Tool) + `,"error":"unencodable result"}`
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

func failure(call Call, code, msg string) Result {
	return Result{CallID: call.ID, Tool: call.Name, Success: false, Code: code, Error: msg}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
