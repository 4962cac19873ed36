package loader

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	reBlankRuns     = regexp.MustCompile(`\n{3,}`)
	reTrailingSpace = regexp.MustCompile(`[ \t]+\n`)
)

// NormalizeText prepares extracted text for segmentation: NFC, unix line
// endings, no trailing blanks, at most one empty line in a row and a
// single final newline. Empty input stays empty.
func NormalizeText(raw []byte) string {
	text := norm.NFC.String(string(raw))
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\f", "\n")
	text = reTrailingSpace.ReplaceAllString(text, "\n")
	text = reBlankRuns.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return text + "\n"
}
