package textclean

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// wordClass is a Unicode-aware replacement for \w, which RE2 limits to ASCII
const wordClass = `[\p{L}\p{N}_]`

// MustCompileFold compiles a case-insensitive pattern in which \w matches
// Cyrillic and Kazakh letters as well as Latin ones.
func MustCompileFold(expr string) *regexp.Regexp {
	return regexp.MustCompile("(?i)" + strings.ReplaceAll(expr, `\w`, wordClass))
}

// IsWordRune reports whether r continues a word
func IsWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// AtWordBoundaries reports whether text[start:end] is delimited by non-word
// runes (or the string edges) on both sides.
func AtWordBoundaries(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if IsWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if IsWordRune(r) {
			return false
		}
	}
	return true
}

// RuneIndex converts a byte offset into a rune offset
func RuneIndex(text string, byteIdx int) int {
	return utf8.RuneCountInString(text[:byteIdx])
}

// Snippet returns the text around the first case-insensitive occurrence of
// needle, with up to radius runes of context on each side. Elided context is
// marked with "...". Returns "" when needle is empty or absent.
func Snippet(text, needle string, radius int) string {
	if needle == "" || text == "" {
		return ""
	}

	hay := []rune(strings.ToLower(text))
	src := []rune(text)
	pat := []rune(strings.ToLower(needle))
	if len(hay) != len(src) {
		// Lowercasing changed the rune count; fall back to the original runes
		hay = src
		pat = []rune(needle)
	}

	idx := indexRunes(hay, pat)
	if idx < 0 {
		return ""
	}

	start := max(0, idx-radius)
	end := min(len(src), idx+len(pat)+radius)

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(string(src[start:end]))
	if end < len(src) {
		b.WriteString("...")
	}
	return b.String()
}

func indexRunes(hay, pat []rune) int {
	if len(pat) == 0 || len(pat) > len(hay) {
		return -1
	}
outer:
	for i := 0; i+len(pat) <= len(hay); i++ {
		for j := range pat {
			if hay[i+j] != pat[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

// Truncate shortens s to at most n runes
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
