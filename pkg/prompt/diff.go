package prompt

import (
	"strings"
)

// UnifiedDiff returns a line diff of a and b: unchanged lines are prefixed
// with a space, removed lines with "-" and added lines with "+". Identical
// inputs give "".
func UnifiedDiff(a, b string) string {
	if a == b {
		return ""
	}
	al := strings.Split(a, "\n")
	bl := strings.Split(b, "\n")

	// lcs[i][j] is the longest common subsequence of al[i:] and bl[j:].
	lcs := make([][]int, len(al)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(bl)+1)
	}
	for i := len(al) - 1; i >= 0; i-- {
		for j := len(bl) - 1; j >= 0; j-- {
			if al[i] == bl[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("--- a\n+++ b\n")
	i, j := 0, 0
	for i < len(al) || j < len(bl) {
		switch {
		case i < len(al) && j < len(bl) && al[i] == bl[j]:
			sb.WriteString(" " + al[i] + "\n")
			i++
			j++
		case i < len(al) && (j == len(bl) || lcs[i+1][j] >= lcs[i][j+1]):
			sb.WriteString("-" + al[i] + "\n")
			i++
		default:
			sb.WriteString("+" + bl[j] + "\n")
			j++
		}
	}
	return sb.String()
}

// Diff compares two versions of a prompt. It returns "" when either version
// is missing or the bodies are equal.
func (s *Store) Diff(name string, v1, v2 int) string {
	p1, ok1 := s.Get(name, v1)
	p2, ok2 := s.Get(name, v2)
	if !ok1 || !ok2 {
		return ""
	}
	return UnifiedDiff(p1.Body, p2.Body)
}
