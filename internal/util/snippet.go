package util

import (
	"strings"
)

// ExtractSnippet returns lines [start,end] (1-based, inclusive) of content widened by
// context lines on each side. Out-of-range bounds are clamped; empty content yields "".
func ExtractSnippet(content string, start, end, context int) string {
	if content == "" {
		return ""
	}
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if start < 1 {
		start = 1
	}
	if end < start {
		end = start
	}
	s := max(0, start-1-context)
	e := min(len(lines)-1, end-1+context)
	if s > e {
		return ""
	}
	return strings.Join(lines[s:e+1], "\n")
}

// LineWindow returns the lines of content from line-before to line (1-based), clamped.
func LineWindow(content string, line, before int) []string {
	lines := strings.Split(content, "\n")
	if line > len(lines) {
		line = len(lines)
	}
	from := max(1, line-before)
	if line < from {
		return nil
	}
	return lines[from-1 : line]
}
