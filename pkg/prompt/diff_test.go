package prompt

import "testing"

func TestUnifiedDiff(t *testing.T) {
	cases := []struct {
		name, a, b, want string
	}{
		{"equal", "same", "same", ""},
		{"replace", "Hello\nWorld", "Hello\nEveryone", "--- a\n+++ b\n Hello\n-World\n+Everyone\n"},
		{"insert keeps tail", "a\nc", "a\nb\nc", "--- a\n+++ b\n a\n+b\n c\n"},
		{"delete", "a\nb\nc", "a\nc", "--- a\n+++ b\n a\n-b\n c\n"},
	}
	for _, tc := range cases {
		if got := UnifiedDiff(tc.a, tc.b); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestStoreDiff(t *testing.T) {
	s := NewStore()
	p1, _, err := s.Save(Prompt{Name: "assistant", Body: "Reply in {{.Language}}."})
	if err != nil {
		t.Fatal(err)
	}
	p2, _, err := s.Save(Prompt{Name: "assistant", Body: "Reply briefly in {{.Language}}."})
	if err != nil {
		t.Fatal(err)
	}
	if d := s.Diff("assistant", p1.Version, p2.Version); d == "" {
		t.Fatal("expected diff")
	}
	if d := s.Diff("assistant", p1.Version, 9); d != "" {
		t.Fatalf("missing version should give no diff, got %q", d)
	}
}
