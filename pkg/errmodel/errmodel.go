// Package errmodel is the compact categorized error used across the
// assistant: tool failures fed back to the model, admission rejections and
// HTTP error envelopes.
package errmodel

import (
	"encoding/json"
	"errors"
	"net/http"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
)

// Category values for compact errors.
const (
	CategoryValidation = "validation"
	CategoryTool       = "tool"
	CategoryNetwork    = "network"
	CategoryModel      = "model"
	CategoryPolicy     = "policy"
	CategorySystem     = "system"
)

const (
	maxMessage = 512
	maxValue   = 256
)

// Error is the compact error payload returned by APIs and used internally.
// The first cause is kept for errors.Is and errors.As.
type Error struct {
	Category string         `json:"category"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`
	Causes   []Error        `json:"causes,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// New constructs a compact error. Messages and string context values are
// shortened on rune boundaries.
func New(category, code, message string, ctx map[string]any, causes ...error) *Error {
	ce := &Error{Category: category, Code: code, Message: truncate(message, maxMessage)}
	if len(ctx) > 0 {
		ce.Context = truncateContext(ctx)
	}
	for _, c := range causes {
		if c == nil {
			continue
		}
		if ce.cause == nil {
			ce.cause = c
		}
		ce.Causes = append(ce.Causes, *From(c))
	}
	return ce
}

// From converts any error into a compact Error. An *Error anywhere in the
// chain is returned as is; anything else becomes system/internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Category: CategorySystem, Code: "internal", Message: truncate(err.Error(), maxMessage), cause: err}
}

func Validation(code, message string, ctx map[string]any) *Error {
	return New(CategoryValidation, code, message, ctx)
}

func Policy(code, message string, ctx map[string]any) *Error {
	return New(CategoryPolicy, code, message, ctx)
}

func System(code, message string, ctx map[string]any, cause error) *Error {
	return New(CategorySystem, code, message, ctx, cause)
}

// Tool reports a failure raised while executing a tool on behalf of the model.
// The message is what the model reads.
func Tool(code, message string, ctx map[string]any) *Error {
	return New(CategoryTool, code, message, ctx)
}

// Model reports a failure of the upstream language model channel.
func Model(code, message string, ctx map[string]any, cause error) *Error {
	return New(CategoryModel, code, message, ctx, cause)
}

// NotFound is a validation error for an owned record that does not exist for the acting user.
func NotFound(message string, ctx map[string]any) *Error {
	return New(CategoryValidation, "not_found", message, ctx)
}

// RateLimited is the admission failure returned before any model call is made.
func RateLimited(message string, ctx map[string]any) *Error {
	return New(CategoryPolicy, "rate_limited", message, ctx)
}

// codeStatus overrides the category default for specific codes.
var codeStatus = map[string]int{
	CategoryValidation + "/not_found":         http.StatusNotFound,
	CategoryValidation + "/conflict":          http.StatusConflict,
	CategoryPolicy + "/unauthorized":          http.StatusUnauthorized,
	CategoryPolicy + "/method_not_allowed":    http.StatusMethodNotAllowed,
	CategoryPolicy + "/rate_limited":          http.StatusTooManyRequests,
	CategoryModel + "/timeout":                http.StatusGatewayTimeout,
	CategoryValidation + "/request_too_large": http.StatusRequestEntityTooLarge,
}

var categoryStatus = map[string]int{
	CategoryValidation: http.StatusBadRequest,
	CategoryPolicy:     http.StatusForbidden,
	CategoryNetwork:    http.StatusBadGateway,
	CategoryTool:       http.StatusBadGateway,
	CategoryModel:      http.StatusBadGateway,
}

// HTTPStatus maps category/code to HTTP status.
func HTTPStatus(e *Error) int {
	if e == nil {
		return http.StatusInternalServerError
	}
	if s, ok := codeStatus[e.Category+"/"+e.Code]; ok {
		return s
	}
	if s, ok := categoryStatus[e.Category]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WriteHTTP writes {"error": ..., "trace_id": ...}. The trace id is empty
// when the request carries no sampled span.
func WriteHTTP(w http.ResponseWriter, r *http.Request, err error) {
	ce := From(err)
	if ce == nil {
		ce = &Error{Category: CategorySystem, Code: "internal", Message: "unknown error"}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(ce))

	traceID := ""
	if r != nil {
		if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":    ce,
		"trace_id": traceID,
	})
}

// truncate shortens s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	const ellipsis = "..."
	cut := max - len(ellipsis)
	if cut <= 0 {
		cut, max = max, 0
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if max == 0 {
		return s[:cut]
	}
	return s[:cut] + ellipsis
}

// truncateContext keeps strings and scalars, and replaces anything else with
// a shortened JSON preview.
func truncateContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		switch t := v.(type) {
		case string:
			out[k] = truncate(t, maxValue)
		case bool, int, int64, float64:
			out[k] = t
		default:
			b, err := json.Marshal(t)
			if err != nil {
				out[k] = t
				continue
			}
			out[k] = truncate(string(b), maxValue)
		}
	}
	return out
}

// IsCode reports whether err carries the given compact error code.
func IsCode(err error, code string) bool {
	ce := From(err)
	return ce != nil && ce.Code == code
}
