package util

import (
	"strings"
	"testing"
)

func TestExtractSnippet(t *testing.T) {
	src := "a\nb\nc\nd\ne\n"
	tests := []struct {
		start, end, ctx int
		want            string
	}{
		{2, 2, 0, "b"},
		{2, 3, 1, "a\nb\nc\nd"},
		{0, 0, 0, "a"},
		{5, 9, 2, "c\nd\ne"},
		{9, 9, 0, ""},
	}
	for _, tc := range tests {
		if got := ExtractSnippet(src, tc.start, tc.end, tc.ctx); got != tc.want {
			t.Errorf("ExtractSnippet(%d,%d,%d) = %q, want %q", tc.start, tc.end, tc.ctx, got, tc.want)
		}
	}
}

func TestLineWindow(t *testing.T) {
	src := "1\n2\n3\n4\n5"
	if got := strings.Join(LineWindow(src, 4, 2), ","); got != "2,3,4" {
		t.Errorf("window = %q", got)
	}
	if got := strings.Join(LineWindow(src, 1, 5), ","); got != "1" {
		t.Errorf("window at start = %q", got)
	}
}

func TestFingerprintIgnoresWhitespaceAndLines(t *testing.T) {
	a := Fingerprint("R", "lib.rs", "f", "a  /  b")
	b := Fingerprint("R", "lib.rs", "f", "a / b")
	if a != b {
		t.Fatalf("fingerprints differ: %s %s", a, b)
	}
	if a == Fingerprint("R", "lib.rs", "g", "a / b") {
		t.Fatal("function should change the fingerprint")
	}
	if len(a) != 32 {
		t.Fatalf("len = %d", len(a))
	}
}
