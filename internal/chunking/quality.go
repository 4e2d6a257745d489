package chunking

import "strings"

const (
	minWordsPerChunk = 50
	maxWordsPerChunk = 500

	// chunks scoring under this count as low quality in a report
	lowScore = 0.5
	// a report whose mean falls under this carries a recommendation
	recommendBelow = 0.6
)

// QualityReport is advisory. Nothing in this package acts on it.
type QualityReport struct {
	MeanScore        float64         `json:"mean_score"`
	Scores           []float64       `json:"scores"`
	LowQualityChunks int             `json:"low_quality_chunks"`
	AverageWords     float64         `json:"average_words"`
	Recommendation   *Recommendation `json:"recommendation,omitempty"`
}

// Recommendation suggests parameters for a re-chunk.
type Recommendation struct {
	ChunkSize int    `json:"chunk_size"`
	Overlap   int    `json:"overlap"`
	Reason    string `json:"reason"`
}

// Score rates a single chunk in [0, 1].
func Score(c Chunk) float64 {
	s := 1.0
	if c.WordCount < minWordsPerChunk {
		s *= 0.5
	}
	if c.WordCount > maxWordsPerChunk {
		s *= 0.7
	}
	if !strings.ContainsAny(c.Content, ".!?") {
		s *= 0.3
	}
	return s
}

// AnalyzeQuality scores every chunk and reports the mean. used are the options
// the chunks were produced with; they seed the recommendation.
func AnalyzeQuality(chunks []Chunk, used Options) QualityReport {
	rep := QualityReport{Scores: make([]float64, len(chunks))}
	if len(chunks) == 0 {
		return rep
	}
	var sum float64
	var words int
	for i, c := range chunks {
		s := Score(c)
		rep.Scores[i] = s
		sum += s
		words += c.WordCount
		if s < lowScore {
			rep.LowQualityChunks++
		}
	}
	rep.MeanScore = sum / float64(len(chunks))
	rep.AverageWords = float64(words) / float64(len(chunks))

	if rep.MeanScore < recommendBelow {
		rep.Recommendation = recommend(rep.AverageWords, used)
	}
	return rep
}

func recommend(avgWords float64, used Options) *Recommendation {
	var size int
	var reason string
	switch {
	case avgWords < minWordsPerChunk:
		size = used.ChunkSize * 2
		reason = "chunks are too short for natural narration"
	case avgWords > maxWordsPerChunk:
		size = used.ChunkSize / 2
		reason = "chunks are too long for a single narration segment"
	default:
		// size is fine; the text itself lacks sentence punctuation
		return nil
	}
	if size <= 0 {
		return nil
	}
	overlap := used.Overlap
	if overlap >= size {
		overlap = size / 5
	}
	return &Recommendation{ChunkSize: size, Overlap: overlap, Reason: reason}
}
