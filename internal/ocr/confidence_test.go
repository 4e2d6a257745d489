package ocr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregate_EmptyPagesCountAsZero(t *testing.T) {
	text, conf := Aggregate([]PageResult{
		{Page: 1, Text: "First page.", Confidence: 90},
		{Page: 2, Text: "", Confidence: 0},
		{Page: 3, Text: "Third page.", Confidence: 80},
	})
	assert.InDelta(t, 56.67, conf, 0.01)
	assert.Greater(t, math.Abs(85-conf), 0.01)
	assert.Equal(t, "First page.\n\n\n\nThird page.", text)
}

func TestAggregate_PageOrder(t *testing.T) {
	text, conf := Aggregate([]PageResult{{Page: 1, Text: "a", Confidence: 50}, {Page: 2, Text: "b", Confidence: 70}})
	assert.Equal(t, "a\n\nb", text)
	assert.InDelta(t, 60, conf, 1e-9)
}

func TestAggregate_None(t *testing.T) {
	text, conf := Aggregate(nil)
	assert.Empty(t, text)
	assert.Zero(t, conf)
}

func TestAcceptableQuality(t *testing.T) {
	assert.True(t, AcceptableQuality("Readable text here", 75))
	assert.False(t, AcceptableQuality("Readable text here", 29.9), "low confidence")
	assert.False(t, AcceptableQuality("Hi", 99), "too short")
	assert.False(t, AcceptableQuality("12 34 56 78 9.0 !!", 99), "mostly non-letters")
	assert.True(t, AcceptableQuality("abcde", 30), "boundaries are inclusive")
}

func TestCleanText(t *testing.T) {
	in := "Title\t\tline  \r\n-----\r\n\r\n\r\n\r\nBody   text\n"
	assert.Equal(t, "Title line\n\nBody text", CleanText(in))
}
