package retrieval

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/schema"
)

const (
	DefaultChunkSize    = 600
	DefaultChunkOverlap = 100
)

// policySeparators are tried in order: paragraphs, lines, sentences, words.
var policySeparators = []string{"\n\n", "\n", ". ", "? ", "! ", "; ", " "}

// SplitText cuts text into chunks of at most size runes that overlap by about
// overlap runes. Blank chunks are dropped.
func SplitText(ctx context.Context, text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	splitter, err := recursive.NewSplitter(ctx, &recursive.Config{
		ChunkSize:   size,
		OverlapSize: overlap,
		Separators:  policySeparators,
		LenFunc:     utf8.RuneCountInString,
		KeepType:    recursive.KeepTypeEnd,
	})
	if err != nil {
		return nil, fmt.Errorf("create text splitter: %w", err)
	}

	docs, err := splitter.Transform(ctx, []*schema.Document{{ID: "policy", Content: text}})
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}

	chunks := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		if c := strings.TrimSpace(doc.Content); c != "" {
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}
