package ocr

import (
	"strings"
	"unicode"
)

// Quality gate thresholds.
const (
	MinAcceptableConfidence = 30.0
	MinAcceptableLength     = 5
	MinAlphaRatio           = 0.5
)

// Aggregate joins page texts with a blank line in page order and averages
// confidence over every page given, so empty pages pull the mean down.
func Aggregate(pages []PageResult) (string, float64) {
	if len(pages) == 0 {
		return "", 0
	}
	texts := make([]string, 0, len(pages))
	var sum float64
	for _, p := range pages {
		texts = append(texts, p.Text)
		if strings.TrimSpace(p.Text) != "" {
			sum += p.Confidence
		}
	}
	return strings.Join(texts, "\n\n"), sum / float64(len(pages))
}

// AcceptableQuality is advisory: callers flag low-quality results instead of failing them.
func AcceptableQuality(text string, confidence float64) bool {
	n := len([]rune(text))
	if confidence < MinAcceptableConfidence || n < MinAcceptableLength {
		return false
	}
	return alphaRatio(text, n) >= MinAlphaRatio
}

func alphaRatio(text string, n int) float64 {
	if n == 0 {
		return 0
	}
	letters := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return float64(letters) / float64(n)
}
