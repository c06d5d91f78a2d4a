package prompt

import (
	"strings"
	"testing"
	"time"
)

func TestStore_VersioningAndLint(t *testing.T) {
	s := NewStore()

	if _, issues, err := s.Save(Prompt{Name: "", Body: "hello"}); err == nil {
		t.Fatal("expected lint failure for missing name")
	} else if len(issues) == 0 {
		t.Fatal("expected issues")
	}

	v1, issues, err := s.Save(Prompt{Name: "welcome", Body: "Hi {{.User}}"})
	if err != nil {
		t.Fatalf("save v1: %v (%v)", err, issues)
	}
	if v1.Version != 1 {
		t.Fatalf("v1 version=%d", v1.Version)
	}
	v2, _, err := s.Save(Prompt{Name: "welcome", Body: "Hello {{.User}}!"})
	if err != nil {
		t.Fatal(err)
	}
	if v2.Version != 2 {
		t.Fatalf("v2 version=%d", v2.Version)
	}

	got, ok := s.Get("welcome", 0)
	if !ok || got.Version != 2 {
		t.Fatalf("get latest=%+v ok=%v", got, ok)
	}
	got1, ok := s.Get("welcome", 1)
	if !ok || got1.Version != 1 {
		t.Fatalf("get v1=%+v ok=%v", got1, ok)
	}
	if all := s.List("welcome"); len(all) != 2 || all[0].Version != 1 || all[1].Version != 2 {
		t.Fatalf("list=%+v", all)
	}
}

func TestLint(t *testing.T) {
	cases := map[string]Prompt{
		"security.secrets": {Name: "x", Body: "use key SK-abc"},
		"template.parse":   {Name: "x", Body: "Hi {{.User"},
		"body.required":    {Name: "x", Body: "  "},
	}
	for rule, p := range cases {
		found := false
		for _, is := range Lint(p) {
			found = found || is.Rule == rule
		}
		if !found {
			t.Errorf("%s: not reported for %q", rule, p.Body)
		}
	}
}

func TestSeed(t *testing.T) {
	s := NewStore()
	if err := s.Seed(DefaultAssistant); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Save(Prompt{Name: AssistantName, Body: "v2 {{.Now}}"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Seed(DefaultAssistant); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Get(AssistantName, 0); got.Version != 2 {
		t.Fatalf("seed overwrote a newer version: %+v", got)
	}
}

func TestRenderAssistant(t *testing.T) {
	now := time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC)
	data := NewAssistantData(now, "What do I have on my schedule tomorrow afternoon?", []ToolLine{{Name: "get_tasks", Description: "List tasks"}})
	out, err := Render(DefaultAssistant, data)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"2025-03-03 09:30:00", "Monday", "Reply in English", "- get_tasks: List tasks"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered prompt lacks %q:\n%s", want, out)
		}
	}
	if _, err := Render(Prompt{Name: "m", Body: "{{.missing}}"}, map[string]any{}); err == nil {
		t.Fatal("expected missing key error")
	}
}

func TestDetectLanguage(t *testing.T) {
	if got := LanguageName(DetectLanguage("帮我看看明天下午有没有空闲时间安排一个小时的学习")); got != "Chinese" {
		t.Fatalf("got %q", got)
	}
	if got := DetectLanguage("ok"); got != DefaultLanguage && LanguageName(got) != "English" {
		t.Fatalf("short text should fall back, got %v", got)
	}
}
