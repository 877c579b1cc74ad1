// Package textnorm produces the canonical text every downstream stage
// consumes. Normalization is deterministic and never fails; an empty result
// means "no information" and classifiers must return negative/none for it.
package textnorm

import (
	"regexp"
	"strings"
)

var (
	urlPattern        = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+`)
	mentionPattern    = regexp.MustCompile(`(?i)(?:^|\s)(?:@[\w.:-]+|/?u/[\w-]+)`)
	markdownLink      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	whitespacePattern = regexp.MustCompile(`\s+`)

	// Smart punctuation from mobile clients breaks keyword matching.
	quoteReplacer = strings.NewReplacer(
		"‘", "'", "’", "'",
		"“", `"`, "”", `"`,
		"–", "-", "—", "-",
		" ", " ",
	)
)

// Normalize converts raw post/comment text into the canonical form:
// lowercased, URLs and @/u mentions removed, markdown links reduced to their
// label, smart punctuation straightened, whitespace collapsed, and leading/
// trailing punctuation noise trimmed. Hashtag markers are kept: bus-route
// mentions like "#66" are matched downstream.
func Normalize(raw string) string {
	s := quoteReplacer.Replace(raw)
	s = markdownLink.ReplaceAllString(s, "$1")
	s = urlPattern.ReplaceAllString(s, " ")
	s = mentionPattern.ReplaceAllString(s, " ")
	s = strings.ToLower(s)
	s = whitespacePattern.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `.,;:!?-_*~`+"`")
	return strings.TrimSpace(s)
}
