// Package textnorm holds the Unicode helpers used to compare Vietnamese story
// and chapter titles: NFC normalization, accent folding, slugs and the
// "Chương N" title prefix.
package textnorm

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	chapterPrefix = regexp.MustCompile(`(?i)^\s*chương\s+\d+[:\s\-.]*`)
	chapterNumber = regexp.MustCompile(`(?i)chương\s+(\d+)`)

	slugStrip    = regexp.MustCompile(`[^a-z0-9\s_-]+`)
	slugSeparate = regexp.MustCompile(`[\s_-]+`)
)

var dStroke = strings.NewReplacer("đ", "d", "Đ", "D")

// NFC returns s in canonical composed form, trimmed.
func NFC(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// RemoveAccents strips combining marks and folds đ/Đ, which NFD does not
// decompose, to plain d/D.
func RemoveAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return dStroke.Replace(out)
}

// Simplify reduces a title to lowercase ASCII letters and digits only, so
// "Chương 10: Trở Về" and "chuong 10 tro ve" compare equal.
func Simplify(s string) string {
	folded := strings.ToLower(RemoveAccents(s))
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Slug converts a story or category name into its URL slug.
func Slug(s string) string {
	out := strings.ToLower(RemoveAccents(NFC(s)))
	out = slugStrip.ReplaceAllString(out, "")
	out = slugSeparate.ReplaceAllString(out, "-")
	return strings.Trim(out, "-")
}

// StripChapterPrefix removes a leading "Chương N:" marker. Titles that are
// nothing but the marker are returned trimmed and unchanged.
func StripChapterPrefix(title string) string {
	normalized := NFC(title)
	stripped := strings.TrimSpace(chapterPrefix.ReplaceAllString(normalized, ""))
	if stripped == "" {
		return normalized
	}
	return stripped
}

// ParseChapterNumber extracts N from the first "Chương N" in title. Chapter
// numbers start at 1; "Chương 0" yields no number.
func ParseChapterNumber(title string) (int, bool) {
	m := chapterNumber.FindStringSubmatch(NFC(title))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Tokens splits a slug-like string on "-" and keeps tokens longer than one character.
func Tokens(s string) []string {
	var out []string
	for _, tok := range strings.Split(strings.ToLower(s), "-") {
		if len([]rune(tok)) > 1 {
			out = append(out, tok)
		}
	}
	return out
}
