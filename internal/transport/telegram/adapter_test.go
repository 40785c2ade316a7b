package telegram

import (
	"strings"
	"testing"
)

func TestSplitTextShort(t *testing.T) {
	t.Parallel()

	got := splitText("hello", 100, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("splitText = %#v", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()

	lines := make([]string, 40)
	for i := range lines {
		lines[i] = strings.Repeat("x", 10)
	}
	s := strings.Join(lines, "\n")

	chunks := splitText(s, 100, "")
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 100 {
			t.Errorf("chunk %d exceeds limit: %d runes", i, len([]rune(c)))
		}
		for _, ln := range strings.Split(c, "\n") {
			if ln != strings.Repeat("x", 10) {
				t.Fatalf("chunk %d split mid-line: %q", i, ln)
			}
		}
	}
}

func TestSplitTextAvoidsOpenTags(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("a", 95) + "<b>bold text here</b>" + strings.Repeat("c", 50)
	chunks := splitText(s, 100, "HTML")
	for i, c := range chunks {
		if strings.Count(c, "<") != strings.Count(c, ">") {
			t.Errorf("chunk %d has dangling tag: %q", i, c)
		}
	}
}

func TestSplitTextNoEmptyChunks(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("line\n\n\n", 200)
	for i, c := range splitText(s, 50, "") {
		if strings.TrimSpace(c) == "" {
			t.Fatalf("chunk %d is empty", i)
		}
	}
}
