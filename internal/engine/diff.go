package engine

import (
	"fmt"
	"strings"
)

// formatDiff renders the changed middle of two prompts, lines prefixed
// with - (removed) and + (added).
func formatDiff(oldText, newText string) string {
	oldLines := strings.Split(oldText, "\n")
	newLines := strings.Split(newText, "\n")

	head := commonPrefix(oldLines, newLines)
	tail := commonSuffix(oldLines[head:], newLines[head:])
	removed := oldLines[head : len(oldLines)-tail]
	added := newLines[head : len(newLines)-tail]

	if len(removed) == 0 && len(added) == 0 {
		return "(no changes)"
	}

	var sb strings.Builder
	if head > 0 {
		fmt.Fprintf(&sb, " ... (%d unchanged lines)\n", head)
	}
	for _, l := range removed {
		sb.WriteString("- " + l + "\n")
	}
	for _, l := range added {
		sb.WriteString("+ " + l + "\n")
	}
	if tail > 0 {
		fmt.Fprintf(&sb, " ... (%d unchanged lines)\n", tail)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func commonPrefix(a, b []string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func commonSuffix(a, b []string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[len(a)-1-i] != b[len(b)-1-i] {
			return i
		}
	}
	return n
}
