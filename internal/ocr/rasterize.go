package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Pdftoppm rasterizes PDF pages with poppler's pdftoppm.
type Pdftoppm struct {
	bin    string
	runner Runner
}

func NewPdftoppm(bin string, runner Runner) *Pdftoppm {
	if bin == "" {
		bin = "pdftoppm"
	}
	return &Pdftoppm{bin: bin, runner: runner}
}

// RasterizePage renders one page to <dir>/page-<n>.png.
func (p *Pdftoppm) RasterizePage(ctx context.Context, pdfPath string, page, dpi int, dir string) (string, error) {
	prefix := filepath.Join(dir, fmt.Sprintf("page-%d", page))
	n := strconv.Itoa(page)
	// pdftoppm -r 300 -png -f N -l N -singlefile <in.pdf> <dir/page-N>
	_, errb, err := p.runner.Run(ctx, p.bin, "-r", strconv.Itoa(dpi), "-png", "-f", n, "-l", n, "-singlefile", pdfPath, prefix)
	if err != nil {
		if bytes.Contains(errb, []byte("Wrong page range")) {
			return "", ErrNoSuchPage
		}
		return "", fmt.Errorf("pdftoppm page %d: %w: %s", page, err, truncate(string(errb), 512))
	}
	out := prefix + ".png"
	if _, statErr := os.Stat(out); statErr != nil {
		// pdftoppm exits 0 without output for an empty range
		return "", ErrNoSuchPage
	}
	return out, nil
}
