package normalizer

import (
	"fmt"
	"regexp"
	"strings"

	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
)

// PhoneLocale describes a national mobile numbering plan.
type PhoneLocale struct {
	Code           string
	CountryCode    string
	TrunkPrefix    string
	NationalLength int
	MobilePrefixes []string
}

var (
	LocaleGeorgia = PhoneLocale{
		Code:           "GE",
		CountryCode:    "995",
		TrunkPrefix:    "0",
		NationalLength: 9,
		MobilePrefixes: []string{"5"},
	}
	LocaleUS = PhoneLocale{
		Code:           "US",
		CountryCode:    "1",
		NationalLength: 10,
		MobilePrefixes: []string{"2", "3", "4", "5", "6", "7", "8", "9"},
	}
)

func LocaleFor(code string) (PhoneLocale, bool) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "GE", "":
		return LocaleGeorgia, true
	case "US":
		return LocaleUS, true
	default:
		return PhoneLocale{}, false
	}
}

// spokenDigits maps number words a caller (or the STT layer) may produce to
// digits. Longer forms come first so "ნოლი" wins over "ნოლ".
var spokenDigits = []struct {
	word  string
	digit string
}{
	{"zero", "0"}, {"oh", "0"},
	{"one", "1"}, {"two", "2"}, {"three", "3"}, {"four", "4"},
	{"five", "5"}, {"six", "6"}, {"seven", "7"}, {"eight", "8"}, {"nine", "9"},
	{"ნული", "0"}, {"ნოლი", "0"}, {"ნოლ", "0"},
	{"ერთი", "1"}, {"ორი", "2"}, {"სამი", "3"}, {"ოთხი", "4"},
	{"ხუთი", "5"}, {"ექვსი", "6"}, {"შვიდი", "7"}, {"რვა", "8"}, {"ცხრა", "9"},
}

var (
	nonDigitPattern  = regexp.MustCompile(`\D`)
	wordSplitPattern = regexp.MustCompile(`[\p{L}]+|[^\p{L}]+`)
)

// SpokenDigitsToNumerals replaces whole spoken digit words with numerals.
func SpokenDigitsToNumerals(text string) string {
	lookup := make(map[string]string, len(spokenDigits))
	for _, sd := range spokenDigits {
		lookup[sd.word] = sd.digit
	}

	parts := wordSplitPattern.FindAllString(text, -1)
	var b strings.Builder
	for _, p := range parts {
		if d, ok := lookup[strings.ToLower(p)]; ok {
			b.WriteString(d)
			continue
		}
		b.WriteString(p)
	}
	return b.String()
}

// NormalizePhoneNumber returns the national digit-only form of raw, e.g.
// "599 12 34 56" -> "599123456" for Georgia. Separators, spoken digit words,
// an international prefix and the trunk prefix are stripped.
func NormalizePhoneNumber(raw string, locale PhoneLocale) (string, error) {
	digits := nonDigitPattern.ReplaceAllString(SpokenDigitsToNumerals(raw), "")
	if digits == "" {
		return "", fmt.Errorf("%w: no digits in %q", contractx.ErrInvalidPhone, strings.TrimSpace(raw))
	}

	digits = strings.TrimPrefix(digits, "00")
	if cc := locale.CountryCode; cc != "" && len(digits) == len(cc)+locale.NationalLength && strings.HasPrefix(digits, cc) {
		digits = digits[len(cc):]
	}
	if tp := locale.TrunkPrefix; tp != "" && len(digits) == len(tp)+locale.NationalLength && strings.HasPrefix(digits, tp) {
		digits = digits[len(tp):]
	}

	if len(digits) != locale.NationalLength {
		return "", fmt.Errorf("%w: got %d digits, want %d", contractx.ErrInvalidPhone, len(digits), locale.NationalLength)
	}
	if !hasAnyPrefix(digits, locale.MobilePrefixes) {
		return "", fmt.Errorf("%w: %s is not a %s mobile number", contractx.ErrInvalidPhone, digits, locale.Code)
	}
	return digits, nil
}

// ExtractPhoneNumber finds a valid phone number anywhere in text. It returns
// the normalized number and the text with the number removed.
func ExtractPhoneNumber(text string, locale PhoneLocale) (string, string, bool) {
	converted := SpokenDigitsToNumerals(text)
	loc := phoneSpanPattern.FindStringIndex(converted)
	if loc == nil {
		return "", text, false
	}
	phone, err := NormalizePhoneNumber(converted[loc[0]:loc[1]], locale)
	if err != nil {
		return "", text, false
	}
	rest := strings.TrimSpace(converted[:loc[0]] + " " + converted[loc[1]:])
	return phone, strings.Join(strings.Fields(rest), " "), true
}

// a digit span that may contain the usual separators
var phoneSpanPattern = regexp.MustCompile(`\+?\d[\d\s\-().]*\d`)

// FormatPhoneGroups groups a national number for read-back, e.g. "599 123 456".
func FormatPhoneGroups(phone string) string {
	digits := nonDigitPattern.ReplaceAllString(phone, "")
	if len(digits) <= 3 {
		return digits
	}
	var groups []string
	for len(digits) > 4 {
		groups = append(groups, digits[:3])
		digits = digits[3:]
	}
	groups = append(groups, digits)
	return strings.Join(groups, " ")
}

func hasAnyPrefix(s string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
