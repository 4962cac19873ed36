package graph

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName folds an entity name for dedup comparison: NFKD,
// lowercase, punctuation other than hyphens removed, whitespace collapsed.
func NormalizeName(name string) string {
	decomposed := norm.NFKD.String(name)

	var sb strings.Builder
	sb.Grow(len(decomposed))
	space := false
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case unicode.IsSpace(r):
			space = true
			continue
		case r == '-':
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			continue
		}
		if space && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		space = false
		sb.WriteRune(unicode.ToLower(r))
	}
	return sb.String()
}

// foldText collapses whitespace runs to a single space and maps every other
// rune through fold. offsets[i] is the byte offset in s of the rune that
// produced output byte i; offsets[len(out)] == len(s).
func foldText(s string, fold func(rune) rune) (string, []int) {
	var sb strings.Builder
	sb.Grow(len(s))
	offsets := make([]int, 0, len(s)+1)

	inSpace := false
	for i, r := range s {
		if unicode.IsSpace(r) {
			if inSpace {
				continue
			}
			inSpace = true
			sb.WriteByte(' ')
			offsets = append(offsets, i)
			continue
		}
		inSpace = false
		if fold != nil {
			r = fold(r)
		}
		n := utf8.RuneLen(r)
		if n < 0 {
			r, n = utf8.RuneError, utf8.RuneLen(utf8.RuneError)
		}
		sb.WriteRune(r)
		for range n {
			offsets = append(offsets, i)
		}
	}
	offsets = append(offsets, len(s))
	return sb.String(), offsets
}

// foldPunctuation maps typographic quotes and dashes to ASCII.
func foldPunctuation(r rune) rune {
	switch r {
	case '‘', '’', '‚', '‛', '′':
		return '\''
	case '“', '”', '„', '‟', '″', '«', '»':
		return '"'
	case '‐', '‑', '‒', '–', '—', '―', '−':
		return '-'
	}
	return r
}
