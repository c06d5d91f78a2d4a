package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/wilhg/daybook/pkg/store"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	if got := getEnv("FOO", "default"); got != "bar" {
		t.Fatalf("getEnv returned %q, want %q", got, "bar")
	}
	if got := getEnv("MISSING", "default"); got != "default" {
		t.Fatalf("getEnv returned %q, want %q", got, "default")
	}
}

func TestParseFlags(t *testing.T) {
	t.Setenv("DAYBOOK_ADDR", ":9090")
	o, err := parseFlags([]string{"-db", "sqlite:file:x?mode=memory", "-log-level", "debug"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if o.addr != ":9090" || o.databaseURL != "sqlite:file:x?mode=memory" || o.logLevel != "debug" {
		t.Fatalf("unexpected options %+v", o)
	}
	if _, err := parseFlags([]string{"-nope"}, io.Discard); err == nil {
		t.Fatal("expected an error for an unknown flag")
	}
}

func TestMCPPermissionsFlag(t *testing.T) {
	o, err := parseFlags(nil, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if got := splitList(o.mcpPermissions); len(got) != 3 || got[0] != "tasks:read" {
		t.Fatalf("default MCP permissions = %v", got)
	}
	o, err = parseFlags([]string{"-mcp-permissions", " tasks:read, tasks:write ,,"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if got := splitList(o.mcpPermissions); len(got) != 2 || got[1] != "tasks:write" {
		t.Fatalf("parsed MCP permissions = %v", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{"": slog.LevelInfo, "DEBUG": slog.LevelDebug, " warning ": slog.LevelWarn, "error": slog.LevelError}
	for in, want := range cases {
		got, err := parseLogLevel(in)
		if err != nil || got != want {
			t.Fatalf("parseLogLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := parseLogLevel("loud"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestOpenStore(t *testing.T) {
	for _, dsn := range []string{"memory", "sqlite:file:maintest?mode=memory&cache=shared&_pragma=busy_timeout(5000)"} {
		st, err := openStore(t.Context(), dsn)
		if err != nil {
			t.Fatalf("%s: %v", dsn, err)
		}
		task, err := st.CreateTask(t.Context(), store.Task{UserID: 1, Title: "t", Date: "2025-03-03"})
		if err != nil {
			t.Fatalf("%s: %v", dsn, err)
		}
		if _, err := st.GetTask(t.Context(), 1, task.ID); err != nil {
			t.Fatalf("%s: %v", dsn, err)
		}
		_ = st.Close()
	}
	if _, err := openStore(t.Context(), "mysql://x"); err == nil {
		t.Fatal("expected an error for an unsupported scheme")
	}
	if got := storeKind("postgres://db"); got != "postgres" {
		t.Fatalf("storeKind = %q", got)
	}
}

func TestDefaultSettingsFromEnv(t *testing.T) {
	t.Setenv("DAYBOOK_MODEL_PROVIDER", "gemini")
	t.Setenv("DAYBOOK_MODEL", "gemini-2.5-flash")
	t.Setenv("DAYBOOK_TIMEZONE", "Asia/Shanghai")
	s := defaultSettings()
	if err := s.Validate(); err != nil {
		t.Fatal(err)
	}
	if s.Model.Provider != "gemini" || s.Model.Name != "gemini-2.5-flash" || s.Location().String() != "Asia/Shanghai" {
		t.Fatalf("unexpected settings %+v", s.Model)
	}
}
