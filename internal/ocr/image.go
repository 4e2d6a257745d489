package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/joseph-ayodele/docreader/constants"
)

// writeRecognizableImage stores the source image in dir in a format every
// tesseract build reads. PNG and JPEG pass through; the rest are re-encoded to PNG.
func writeRecognizableImage(dir string, data []byte, mimeType string) (string, error) {
	switch mimeType {
	case constants.MimePNG:
		return writeFile(dir, "page-1.png", data)
	case constants.MimeJPEG:
		return writeFile(dir, "page-1.jpg", data)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", mimeType, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode %s as png: %w", format, err)
	}
	return writeFile(dir, "page-1.png", buf.Bytes())
}

func writeFile(dir, name string, data []byte) (string, error) {
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", err
	}
	return p, nil
}
