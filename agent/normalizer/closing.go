package normalizer

import (
	"fmt"
	"strings"
	"unicode"
)

// NormalizeForMatch lowercases, drops punctuation and symbols, and collapses
// whitespace so that phrase matching ignores formatting differences.
func NormalizeForMatch(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			continue
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ContainsClosingPhrase reports whether any of the phrases appears intact in
// text after both sides are normalized. Matching is exact containment.
func ContainsClosingPhrase(text string, phrases []string) bool {
	norm := NormalizeForMatch(text)
	if norm == "" {
		return false
	}
	for _, p := range phrases {
		np := NormalizeForMatch(p)
		if np == "" {
			continue
		}
		if strings.Contains(norm, np) {
			return true
		}
	}
	return false
}

// ClosingPhrase is the canonical goodbye line the agent ends every call with.
func ClosingPhrase(company string) string {
	return fmt.Sprintf("დიდი მადლობა ზარისთვის %s-ში. ნახვამდის!", strings.TrimSpace(company))
}

// ClosingPhrases returns the canonical phrase and the spellings the agent is
// known to produce for it.
func ClosingPhrases(company string) []string {
	company = strings.TrimSpace(company)
	return []string{
		ClosingPhrase(company),
		fmt.Sprintf("დიდი მადლობა ზარისთვის %s-ში ნახვამდის!", company),
		fmt.Sprintf("დიდი მადლობა ზარისთვის %s ნახვამდის!", company),
	}
}

// ClosingPhrasesFor returns the closing phrase set for a reply language.
// Georgian is the default.
func ClosingPhrasesFor(lang, company string) []string {
	if lang == LanguageEnglish {
		return []string{fmt.Sprintf("Thank you for calling %s. Goodbye!", strings.TrimSpace(company))}
	}
	return ClosingPhrases(company)
}
