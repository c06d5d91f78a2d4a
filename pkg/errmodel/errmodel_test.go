package errmodel

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNewAndFrom(t *testing.T) {
	e := Validation("missing", "field missing", map[string]any{"field": "session_id"})
	if e.Category != CategoryValidation || e.Code != "missing" {
		t.Fatalf("unexpected: %#v", e)
	}
	if got := From(e); got != e {
		t.Fatalf("From should return same error instance")
	}
	wrapped := fmt.Errorf("update task: %w", NotFound("task not found", nil))
	if !IsCode(wrapped, "not_found") {
		t.Fatalf("wrapped error lost its code: %v", wrapped)
	}
	if got := From(errors.New("boom")); got.Category != CategorySystem || got.Code != "internal" {
		t.Fatalf("plain error mapped to %+v", got)
	}
}

func TestWriteHTTP_StatusAndEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	WriteHTTP(rr, req, Validation("bad_json", "oops", nil))
	if rr.Code != 400 {
		t.Fatalf("status=%d want 400", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "\"category\":\"validation\"") {
		t.Fatalf("body missing category: %s", body)
	}
	if !strings.Contains(body, "\"code\":\"bad_json\"") {
		t.Fatalf("body missing code: %s", body)
	}
}

func TestHTTPStatus_RateLimited(t *testing.T) {
	if got := HTTPStatus(RateLimited("slow down", nil)); got != 429 {
		t.Fatalf("status=%d want 429", got)
	}
	if got := HTTPStatus(Model("upstream", "model unavailable", nil, errors.New("eof"))); got != 502 {
		t.Fatalf("status=%d want 502", got)
	}
}

func TestCauseIsKept(t *testing.T) {
	sentinel := errors.New("store: not found")
	e := System("store", "lookup failed", nil, fmt.Errorf("get: %w", sentinel))
	if !errors.Is(e, sentinel) {
		t.Fatal("errors.Is should reach the cause")
	}
	if len(e.Causes) != 1 || e.Causes[0].Code != "internal" {
		t.Fatalf("causes=%+v", e.Causes)
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	msg := strings.Repeat("课", 300) // 900 bytes
	e := Validation("long", msg, map[string]any{"title": msg, "n": 3, "ids": []int{1, 2}})
	if !utf8.ValidString(e.Message) || len(e.Message) > 512 || !strings.HasSuffix(e.Message, "...") {
		t.Fatalf("bad message truncation: %d bytes", len(e.Message))
	}
	if s := e.Context["title"].(string); !utf8.ValidString(s) || len(s) > 256 {
		t.Fatalf("bad context truncation: %d bytes", len(s))
	}
	if e.Context["n"] != 3 || e.Context["ids"] != "[1,2]" {
		t.Fatalf("context=%v", e.Context)
	}
}

func TestHTTPStatus_Table(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{NotFound("task not found", nil), 404},
		{Validation("bad_date", "bad date", nil), 400},
		{Policy("unauthorized", "missing user", nil), 401},
		{Policy("forbidden", "no", nil), 403},
		{Tool("no_free_window", "none", nil), 502},
		{System("x", "y", nil, nil), 500},
		{nil, 500},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v)=%d want %d", tc.err, got, tc.want)
		}
	}
}
