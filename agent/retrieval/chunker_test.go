package retrieval

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitTextShortInput(t *testing.T) {
	t.Parallel()

	got, err := SplitText(context.Background(), "  one short paragraph  ", 600, 100)
	if err != nil {
		t.Fatalf("SplitText() error = %v", err)
	}
	if len(got) != 1 || got[0] != "one short paragraph" {
		t.Fatalf("SplitText() = %q", got)
	}

	blank, err := SplitText(context.Background(), "   ", 600, 100)
	if err != nil || blank != nil {
		t.Fatalf("SplitText(blank) = %q, %v; want nil, nil", blank, err)
	}
}

func TestSplitTextRespectsSize(t *testing.T) {
	t.Parallel()

	sentence := "მიწოდება სამ დღეში ხდება. "
	text := strings.Repeat(sentence, 60)

	chunks, err := SplitText(context.Background(), text, 200, 40)
	if err != nil {
		t.Fatalf("SplitText() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 200 {
			t.Fatalf("chunk %d has %d runes, want <= 200", i, n)
		}
		if strings.TrimSpace(c) == "" {
			t.Fatalf("chunk %d is blank", i)
		}
	}

	joined := strings.Join(chunks, " ")
	if !strings.Contains(joined, "მიწოდება სამ დღეში ხდება.") {
		t.Fatalf("sentences lost while splitting: %q", chunks[0])
	}
}

func TestSplitTextKeepsParagraphsApart(t *testing.T) {
	t.Parallel()

	first := strings.Repeat("a", 70)
	second := strings.Repeat("b", 70)
	chunks, err := SplitText(context.Background(), first+"\n\n"+second, 100, 0)
	if err != nil {
		t.Fatalf("SplitText() error = %v", err)
	}
	if len(chunks) != 2 || chunks[0] != first || chunks[1] != second {
		t.Fatalf("SplitText() = %q", chunks)
	}
}
