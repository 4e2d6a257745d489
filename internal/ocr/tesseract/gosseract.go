//go:build gosseract

// Package tesseract recognizes images in-process through libtesseract.
// Build with -tags gosseract; it needs the tesseract and leptonica headers.
package tesseract

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/joseph-ayodele/docreader/internal/ocr"
)

// Available reports whether this binary was built with the in-process recognizer.
const Available = true

// Recognizer implements ocr.Recognizer with a gosseract client per call.
type Recognizer struct {
	tessdataDir   string
	psm           int
	clientFactory func() *gosseract.Client
}

func NewRecognizer(cfg ocr.Config) ocr.Recognizer {
	return &Recognizer{tessdataDir: cfg.TessdataDir, psm: cfg.PSM, clientFactory: gosseract.NewClient}
}

func (r *Recognizer) Init(_ context.Context, lang string) error {
	langs, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return fmt.Errorf("list tesseract languages: %w", err)
	}
	for _, l := range strings.Split(lang, "+") {
		if !slices.Contains(langs, l) {
			return fmt.Errorf("tesseract language %q is not installed", l)
		}
	}
	return nil
}

func (r *Recognizer) Recognize(ctx context.Context, imagePath, lang string) (ocr.Recognition, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Recognition{}, err
	}
	c := r.clientFactory()
	defer c.Close()

	if r.tessdataDir != "" {
		if err := c.SetTessdataPrefix(r.tessdataDir); err != nil {
			return ocr.Recognition{}, fmt.Errorf("set tessdata: %w", err)
		}
	}
	if err := c.SetLanguage(strings.Split(lang, "+")...); err != nil {
		return ocr.Recognition{}, fmt.Errorf("set languages: %w", err)
	}
	if r.psm > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(r.psm)); err != nil {
			return ocr.Recognition{}, fmt.Errorf("set psm: %w", err)
		}
	}
	if err := c.SetImage(imagePath); err != nil {
		return ocr.Recognition{}, fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return ocr.Recognition{}, fmt.Errorf("recognize text: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		// text without word boxes is still a usable page
		return ocr.Recognition{Text: text}, nil
	}
	rec := ocr.Recognition{Text: text, Words: make([]ocr.Word, 0, len(boxes))}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
		rec.Words = append(rec.Words, ocr.Word{
			Text:       b.Word,
			Confidence: b.Confidence,
			Box:        ocr.BoundingBox{Left: b.Box.Min.X, Top: b.Box.Min.Y, Width: b.Box.Dx(), Height: b.Box.Dy()},
		})
	}
	if len(boxes) > 0 {
		rec.Confidence = sum / float64(len(boxes))
	}
	return rec, nil
}
