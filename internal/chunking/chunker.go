// Package chunking splits extracted document text into bounded, overlapping
// segments sized for narration.
package chunking

import (
	"strings"
	"unicode"

	"github.com/joseph-ayodele/docreader/internal/common"
)

// WordsPerMinute is the narration baseline used for reading-time estimates.
const WordsPerMinute = 200

// Options controls a chunking pass. Sizes are in characters (runes).
type Options struct {
	ChunkSize          int  `json:"chunk_size"`
	Overlap            int  `json:"overlap"`
	PreserveParagraphs bool `json:"preserve_paragraphs"`
	PreserveSentences  bool `json:"preserve_sentences"`
}

func (o Options) Validate() error {
	if o.ChunkSize <= 0 {
		return common.InvalidConfigurationf("chunk size must be > 0, got %d", o.ChunkSize)
	}
	if o.Overlap < 0 || o.Overlap >= o.ChunkSize {
		return common.InvalidConfigurationf("overlap must be in [0, %d), got %d", o.ChunkSize, o.Overlap)
	}
	return nil
}

// Chunk is one emitted segment. Start and End delimit the window in the
// normalized text that Content was trimmed from.
type Chunk struct {
	Index              int
	Content            string
	Start              int
	End                int
	WordCount          int
	CharCount          int
	ReadingTimeSeconds int
}

// Split normalizes text and cuts it into chunks. The result is deterministic
// for a given input. Empty text yields an empty, non-nil slice.
func Split(text string, opts Options) ([]Chunk, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	r := []rune(Normalize(text))
	n := len(r)
	out := make([]Chunk, 0, n/opts.ChunkSize+1)

	start := 0
	for start < n {
		end := min(start+opts.ChunkSize, n)
		if end < n {
			end = findBreak(r, start, end, opts)
		}
		if content := strings.TrimSpace(string(r[start:end])); content != "" {
			out = append(out, newChunk(len(out), content, start, end))
		}
		if end >= n {
			break
		}
		// +1 keeps the cursor moving when the break landed within overlap of start
		start = max(start+1, end-opts.Overlap)
	}
	return out, nil
}

// findBreak walks back from candidate looking for the preferred boundary
// strictly after start: paragraph, then sentence, then any whitespace.
// It falls back to candidate, cutting mid-word.
func findBreak(r []rune, start, candidate int, opts Options) int {
	n := len(r)
	if opts.PreserveParagraphs {
		for i := candidate; i > start; i-- {
			if r[i] == '\n' && i+1 < n && r[i+1] == '\n' {
				return i
			}
		}
	}
	if opts.PreserveSentences {
		for i := candidate; i > start; i-- {
			if isSentenceEnd(r[i-1]) && unicode.IsSpace(r[i]) && i+1 < n && unicode.IsUpper(r[i+1]) {
				return i
			}
		}
	}
	for i := candidate; i > start; i-- {
		if unicode.IsSpace(r[i]) {
			return i
		}
	}
	return candidate
}

func isSentenceEnd(c rune) bool {
	return c == '.' || c == '!' || c == '?'
}

func newChunk(index int, content string, start, end int) Chunk {
	words := CountWords(content)
	return Chunk{
		Index:              index,
		Content:            content,
		Start:              start,
		End:                end,
		WordCount:          words,
		CharCount:          len([]rune(content)),
		ReadingTimeSeconds: ReadingTimeSeconds(words),
	}
}

// CountWords counts whitespace-delimited tokens.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// ReadingTimeSeconds is ceil(words / 200 * 60).
func ReadingTimeSeconds(words int) int {
	return (words*60 + WordsPerMinute - 1) / WordsPerMinute
}
