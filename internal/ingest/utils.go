package ingest

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/docreader/constants"
)

// AllowedExt reports whether ext maps to a format the OCR engine accepts.
func AllowedExt(ext string) bool {
	return constants.MimeForExt(ext) != ""
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
