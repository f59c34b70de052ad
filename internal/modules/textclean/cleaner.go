// Package textclean normalizes procurement specification text before analysis.
package textclean

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Language codes returned by DetectLanguage
const (
	LangRU    = "ru"
	LangKZ    = "kz"
	LangMixed = "mixed"
)

var (
	tagPattern     = regexp.MustCompile(`<[^>]+>`)
	decimalComma   = regexp.MustCompile(`(\d),(\d{1,3})`)
	thousandsSpace = regexp.MustCompile(`(\d) (\d{3})`)
)

var zeroWidth = strings.NewReplacer(
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\ufeff", "",
)

// Clean strips markup, applies NFKC, drops zero-width characters and
// collapses whitespace. Empty input yields "".
func Clean(text string) string {
	if text == "" {
		return ""
	}

	text = tagPattern.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = norm.NFKC.String(text)
	text = zeroWidth.Replace(text)
	text = strings.NewReplacer("\u00a0", " ", "\t", " ").Replace(text)

	return strings.Join(strings.Fields(text), " ")
}

const kazakhLetters = "ӘәҒғҚқҢңӨөҰұҮүҺһІі"

// DetectLanguage reports kz, mixed or ru from the share of Kazakh-specific
// letters among Cyrillic ones. Text without Cyrillic is treated as ru.
func DetectLanguage(text string) string {
	var kz, cyrillic int
	for _, r := range text {
		if r >= '\u0400' && r <= '\u04ff' {
			cyrillic++
			if strings.ContainsRune(kazakhLetters, r) {
				kz++
			}
		}
	}
	if cyrillic == 0 {
		return LangRU
	}

	ratio := float64(kz) / float64(cyrillic)
	switch {
	case ratio > 0.15:
		return LangKZ
	case ratio > 0.05:
		return LangMixed
	default:
		return LangRU
	}
}

// Sentences splits text after . ! ? ; when followed by whitespace
func Sentences(text string) []string {
	if text == "" {
		return nil
	}

	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		if strings.ContainsRune(".!?;", runes[i]) && unicode.IsSpace(runes[i+1]) {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// NormalizeNumbers rewrites decimal commas as points ("2,5" -> "2.5") and
// joins space-separated thousands groups ("1 500 000" -> "1500000").
func NormalizeNumbers(text string) string {
	text = replaceUnlessDigitFollows(text, decimalComma, "$1.$2")
	for {
		next := replaceUnlessDigitFollows(text, thousandsSpace, "$1$2")
		if next == text {
			return text
		}
		text = next
	}
}

// replaceUnlessDigitFollows applies re only where the match is not
// immediately followed by another digit.
func replaceUnlessDigitFollows(text string, re *regexp.Regexp, repl string) string {
	var b strings.Builder
	last := 0
	for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
		if m[1] < len(text) && text[m[1]] >= '0' && text[m[1]] <= '9' {
			continue
		}
		b.WriteString(text[last:m[0]])
		b.Write(re.ExpandString(nil, repl, text, m))
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String()
}
