package ocr

import (
	"bytes"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// PDFPageCount reads the page count from the PDF's page tree.
// It is a hint only; damaged files fall back to rasterizing until the end.
func PDFPageCount(data []byte) (int, error) {
	// keep pdfcpu from writing a config dir under $HOME
	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(data), conf)
}
