package chunking

import (
	"regexp"
	"strings"
)

var (
	reLineEnd   = regexp.MustCompile(`\r\n?`)
	reBlankRuns = regexp.MustCompile(`(?:\n[ \t\f\v]*){3,}`)
	reParaBreak = regexp.MustCompile(`\n[ \t\f\v]*\n`)
	reSpaceRun  = regexp.MustCompile(`\s+`)
)

// Normalize applies the preprocessing every chunking pass starts from:
// line endings become \n, runs of blank lines become one blank line,
// whitespace inside a paragraph collapses to a single space, and the
// result is trimmed. Paragraphs stay separated by exactly "\n\n".
func Normalize(text string) string {
	t := reLineEnd.ReplaceAllString(text, "\n")
	t = reBlankRuns.ReplaceAllString(t, "\n\n")

	paras := reParaBreak.Split(t, -1)
	out := paras[:0]
	for _, p := range paras {
		p = strings.TrimSpace(reSpaceRun.ReplaceAllString(p, " "))
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
