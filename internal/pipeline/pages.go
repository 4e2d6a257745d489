package pipeline

import (
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/joseph-ayodele/docreader/internal/chunking"
	"github.com/joseph-ayodele/docreader/internal/ocr"
)

// pageSpan marks where a page's text begins in the normalized document text.
type pageSpan struct {
	page  int
	start int
}

// pageMap locates page starts inside chunking.Normalize(ocr.Aggregate(pages)).
// Pages join with a paragraph break, so normalizing page by page and
// skipping blank pages lands on the same offsets.
type pageMap []pageSpan

func newPageMap(pages []ocr.PageResult) pageMap {
	var m pageMap
	offset := 0
	for _, p := range pages {
		norm := chunking.Normalize(p.Text)
		if norm == "" {
			continue
		}
		m = append(m, pageSpan{page: p.Page, start: offset})
		offset += utf8.RuneCountInString(norm) + len("\n\n")
	}
	return m
}

// pageAt returns the page holding rune offset pos; 1 when nothing is known.
func (m pageMap) pageAt(pos int) int {
	if len(m) == 0 {
		return 1
	}
	i := sort.Search(len(m), func(i int) bool { return m[i].start > pos })
	if i == 0 {
		return m[0].page
	}
	return m[i-1].page
}

// span maps a chunk to its first and last page. norm is the normalized text
// the chunk was cut from; surrounding whitespace in the window is ignored.
func (m pageMap) span(norm []rune, c chunking.Chunk) (first, last int) {
	s, e := c.Start, min(c.End, len(norm))
	for s < e && unicode.IsSpace(norm[s]) {
		s++
	}
	for e > s && unicode.IsSpace(norm[e-1]) {
		e--
	}
	if e == s {
		return m.pageAt(s), m.pageAt(s)
	}
	return m.pageAt(s), m.pageAt(e - 1)
}
