// Package normalizer holds the deterministic text transforms used around the
// spoken conversation: digits to words for TTS, closing-phrase detection and
// phone number normalization.
package normalizer

import (
	"strings"
)

const (
	LanguageGeorgian = "ka"
	LanguageEnglish  = "en"
)

var digitWords = map[string][10]string{
	LanguageGeorgian: {"ნული", "ერთი", "ორი", "სამი", "ოთხი", "ხუთი", "ექვსი", "შვიდი", "რვა", "ცხრა"},
	LanguageEnglish:  {"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"},
}

// SupportedLanguage reports whether NumberToSpokenWords has a table for lang.
func SupportedLanguage(lang string) bool {
	_, ok := digitWords[strings.ToLower(strings.TrimSpace(lang))]
	return ok
}

// NumberToSpokenWords replaces every maximal run of ASCII digits with the
// spoken word of each digit, one word per digit, joined by single spaces.
// Everything else is copied through unchanged. Unknown languages leave the
// input as is.
func NumberToSpokenWords(text, lang string) string {
	words, ok := digitWords[strings.ToLower(strings.TrimSpace(lang))]
	if !ok || text == "" {
		return text
	}

	var b strings.Builder
	b.Grow(len(text) * 2)
	inRun := false
	for _, r := range text {
		if r >= '0' && r <= '9' {
			if inRun {
				b.WriteByte(' ')
			}
			b.WriteString(words[r-'0'])
			inRun = true
			continue
		}
		inRun = false
		b.WriteRune(r)
	}
	return b.String()
}

// DigitRuns returns the maximal digit runs of text in order.
func DigitRuns(text string) []string {
	var (
		runs []string
		cur  strings.Builder
	)
	for _, r := range text {
		if r >= '0' && r <= '9' {
			cur.WriteRune(r)
			continue
		}
		if cur.Len() > 0 {
			runs = append(runs, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		runs = append(runs, cur.String())
	}
	return runs
}
