//go:build !gosseract

package tesseract

import "github.com/joseph-ayodele/docreader/internal/ocr"

// Available reports whether this binary was built with the in-process recognizer.
const Available = false

// NewRecognizer returns nil without the gosseract tag; callers keep the tesseract CLI backend.
func NewRecognizer(ocr.Config) ocr.Recognizer {
	return nil
}
