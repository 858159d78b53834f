package testutil

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
)

// StripANSI removes ANSI escape sequences from a string.
func StripANSI(s string) string {
	return ansi.Strip(s)
}

// AssertContainsPlain fails if output (after stripping ANSI) does not contain expected.
func AssertContainsPlain(t *testing.T, output, expected string) {
	t.Helper()
	plain := StripANSI(output)
	if !strings.Contains(plain, expected) {
		t.Errorf("output does not contain expected string\nExpected to find: %q\nIn output (plain):\n%s", expected, truncateForError(plain))
	}
}

// AssertNotContainsPlain fails if output (after stripping ANSI) contains unexpected.
func AssertNotContainsPlain(t *testing.T, output, unexpected string) {
	t.Helper()
	plain := StripANSI(output)
	if strings.Contains(plain, unexpected) {
		t.Errorf("output contains unexpected string\nDid not expect to find: %q\nIn output (plain):\n%s", unexpected, truncateForError(plain))
	}
}

// LineContaining returns the first plain line of output that contains needle.
func LineContaining(t *testing.T, output, needle string) string {
	t.Helper()
	for _, line := range strings.Split(StripANSI(output), "\n") {
		if strings.Contains(line, needle) {
			return line
		}
	}
	t.Fatalf("no line contains %q\nIn output (plain):\n%s", needle, truncateForError(StripANSI(output)))
	return ""
}

func truncateForError(s string) string {
	const max = 2000
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}
