package chunking

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docreader/internal/common"
)

var natoWords = strings.Fields("alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima mike november oscar papa")

// sentenceText builds prose of exactly n characters with no paragraph breaks.
func sentenceText(n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "Sentence %d mentions %s and %s before it ends.", i, natoWords[i%16], natoWords[(i*7)%16])
	}
	return b.String()[:n]
}

func TestNormalize(t *testing.T) {
	in := "  First   line\r\nstill first\tparagraph.\r\n\r\n\r\n\r\nSecond\n\n\n\n\nThird  \n \n Fourth\n"
	assert.Equal(t, "First line still first paragraph.\n\nSecond\n\nThird\n\nFourth", Normalize(in))
	assert.Equal(t, "", Normalize(" \n\t\r\n "))
}

func TestSplit_ScenarioA_SentenceBoundaries(t *testing.T) {
	text := sentenceText(2400)
	require.Len(t, []rune(Normalize(text)), 2400)

	opts := Options{ChunkSize: 1000, Overlap: 50, PreserveSentences: true}
	chunks, err := Split(text, opts)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for i, c := range chunks {
		assert.LessOrEqual(t, c.CharCount, 1000, "chunk %d too long", i)
		if i > 0 {
			assert.LessOrEqual(t, c.Start, chunks[i-1].End-50, "chunk %d must start within the overlap window", i)
		}
	}
	// sentence-aligned cuts keep the terminal period
	assert.True(t, strings.HasSuffix(chunks[0].Content, "."))
	assert.True(t, strings.HasSuffix(chunks[1].Content, "."))
}

func TestSplit_ScenarioC_ZeroChunkSize(t *testing.T) {
	chunks, err := Split("some text", Options{ChunkSize: 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
	assert.Nil(t, chunks)
}

func TestSplit_InvalidOverlap(t *testing.T) {
	for _, o := range []Options{
		{ChunkSize: -5},
		{ChunkSize: 10, Overlap: 10},
		{ChunkSize: 10, Overlap: -1},
	} {
		_, err := Split("text", o)
		assert.ErrorIs(t, err, common.ErrInvalidConfiguration, "options %+v", o)
	}
}

func TestSplit_EmptyText(t *testing.T) {
	chunks, err := Split("   \n\n  ", Options{ChunkSize: 100})
	require.NoError(t, err)
	assert.NotNil(t, chunks)
	assert.Empty(t, chunks)
}

func TestSplit_PrefersParagraphBreak(t *testing.T) {
	p1 := "The first paragraph is short. It has two sentences."
	p2 := "The second paragraph follows after a blank line and keeps going for a while longer."
	chunks, err := Split(p1+"\n\n"+p2, Options{ChunkSize: 70, Overlap: 0, PreserveParagraphs: true, PreserveSentences: true})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, p1, chunks[0].Content)
}

func TestSplit_WordBoundaryFallback(t *testing.T) {
	chunks, err := Split("aaaa bbbb cccc dddd", Options{ChunkSize: 7})
	require.NoError(t, err)
	for _, c := range chunks {
		assert.NotContains(t, c.Content, " ")
	}
	assert.Equal(t, []string{"aaaa", "bbbb", "cccc", "dddd"}, contents(chunks))
}

func TestSplit_MidWordLastResort(t *testing.T) {
	chunks, err := Split(strings.Repeat("x", 25), Options{ChunkSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, contents(chunks))
}

func TestSplit_Properties(t *testing.T) {
	texts := []string{
		sentenceText(5000),
		strings.Repeat("word ", 900),
		"Short.",
		strings.Repeat("Para one is here. Another line!\n\n", 40),
		strings.Repeat("ü", 333),
	}
	optsList := []Options{
		{ChunkSize: 100, Overlap: 0},
		{ChunkSize: 100, Overlap: 99, PreserveSentences: true},
		{ChunkSize: 250, Overlap: 40, PreserveParagraphs: true, PreserveSentences: true},
		{ChunkSize: 1, Overlap: 0},
		{ChunkSize: 7, Overlap: 3, PreserveParagraphs: true},
	}
	for ti, text := range texts {
		norm := []rune(Normalize(text))
		for _, opts := range optsList {
			name := fmt.Sprintf("text%d/size%d/overlap%d", ti, opts.ChunkSize, opts.Overlap)
			t.Run(name, func(t *testing.T) {
				chunks, err := Split(text, opts)
				require.NoError(t, err)
				require.NotEmpty(t, chunks)

				// coverage: windows start at 0, end at len, and never leave a gap
				assert.Equal(t, 0, chunks[0].Start)
				assert.Equal(t, len(norm), chunks[len(chunks)-1].End)
				for i, c := range chunks {
					assert.Equal(t, i, c.Index, "indices are contiguous")
					assert.NotEmpty(t, c.Content)
					assert.LessOrEqual(t, c.End-c.Start, opts.ChunkSize)
					assert.Equal(t, strings.TrimSpace(string(norm[c.Start:c.End])), c.Content)
					if i == 0 {
						continue
					}
					prev := chunks[i-1]
					assert.Greater(t, c.Start, prev.Start, "forward progress")
					assert.LessOrEqual(t, prev.End-c.Start, opts.Overlap, "overlap bound")
					if c.Start > prev.End {
						// only whitespace-only windows are dropped
						assert.Empty(t, strings.TrimSpace(string(norm[prev.End:c.Start])), "gap between windows")
					}
				}

				again, err := Split(text, opts)
				require.NoError(t, err)
				assert.Equal(t, chunks, again, "split is deterministic")
			})
		}
	}
}

func TestSplit_Statistics(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("one two three four five. ", 41)) // 205 words
	chunks, err := Split(text, Options{ChunkSize: 5000})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	c := chunks[0]
	assert.Equal(t, 205, c.WordCount)
	assert.Equal(t, len(text), c.CharCount)
	// ceil(205 / 200 * 60) = ceil(61.5)
	assert.Equal(t, 62, c.ReadingTimeSeconds)
}

func TestReadingTimeSeconds(t *testing.T) {
	assert.Equal(t, 0, ReadingTimeSeconds(0))
	assert.Equal(t, 1, ReadingTimeSeconds(1))
	assert.Equal(t, 60, ReadingTimeSeconds(200))
	assert.Equal(t, 3, ReadingTimeSeconds(10))
}

func contents(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}
