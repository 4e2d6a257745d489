package ocr

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// TesseractCLI recognizes images by shelling out to the tesseract binary in TSV mode.
type TesseractCLI struct {
	bin         string
	tessdataDir string
	psm         int
	oem         int
	runner      Runner
}

func NewTesseractCLI(cfg Config, runner Runner) *TesseractCLI {
	bin := cfg.Tesseract
	if bin == "" {
		bin = "tesseract"
	}
	return &TesseractCLI{bin: bin, tessdataDir: cfg.TessdataDir, psm: cfg.PSM, oem: cfg.OEM, runner: runner}
}

// Init checks that tesseract runs and that every language in lang ("eng+deu") is installed.
func (t *TesseractCLI) Init(ctx context.Context, lang string) error {
	args := []string{"--list-langs"}
	if t.tessdataDir != "" {
		args = append(args, "--tessdata-dir", t.tessdataDir)
	}
	out, errb, err := t.runner.Run(ctx, t.bin, args...)
	if err != nil {
		return fmt.Errorf("tesseract --list-langs: %w: %s", err, truncate(string(errb), 512))
	}
	// older builds print the list on stderr
	installed := map[string]struct{}{}
	for _, ln := range strings.Split(string(out)+"\n"+string(errb), "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || strings.Contains(ln, " ") {
			continue
		}
		installed[ln] = struct{}{}
	}
	for _, l := range strings.Split(lang, "+") {
		if _, ok := installed[l]; !ok {
			return fmt.Errorf("tesseract language %q is not installed", l)
		}
	}
	return nil
}

func (t *TesseractCLI) Recognize(ctx context.Context, imagePath, lang string) (Recognition, error) {
	args := []string{imagePath, "stdout", "-l", lang}
	if t.psm > 0 {
		args = append(args, "--psm", strconv.Itoa(t.psm))
	}
	if t.oem > 0 {
		args = append(args, "--oem", strconv.Itoa(t.oem))
	}
	if t.tessdataDir != "" {
		args = append(args, "--tessdata-dir", t.tessdataDir)
	}
	// TSV output
	args = append(args, "tsv")

	out, errb, err := t.runner.Run(ctx, t.bin, args...)
	if err != nil {
		return Recognition{}, fmt.Errorf("tesseract TSV: %w: %s", err, truncate(string(errb), 512))
	}
	return parseTSV(string(out)), nil
}

// parseTSV rebuilds page text from tesseract word rows and averages the word confidences.
// Columns: level page_num block_num par_num line_num word_num left top width height conf text
func parseTSV(tsv string) Recognition {
	var (
		b        strings.Builder
		words    []Word
		sum      float64
		n        int
		lastPara = [2]int{-1, -1}
		lastLine = -1
	)
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || len(ln) == 0 {
			continue
		} // skip header
		cols := strings.Split(strings.TrimRight(ln, "\r"), "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		block, _ := strconv.Atoi(cols[2])
		par, _ := strconv.Atoi(cols[3])
		line, _ := strconv.Atoi(cols[4])

		switch {
		case b.Len() == 0:
		case [2]int{block, par} != lastPara:
			b.WriteString("\n\n")
		case line != lastLine:
			b.WriteString("\n")
		default:
			b.WriteString(" ")
		}
		b.WriteString(text)
		lastPara, lastLine = [2]int{block, par}, line

		w := Word{Text: text, Confidence: -1}
		w.Box.Left, _ = strconv.Atoi(cols[6])
		w.Box.Top, _ = strconv.Atoi(cols[7])
		w.Box.Width, _ = strconv.Atoi(cols[8])
		w.Box.Height, _ = strconv.Atoi(cols[9])
		if c, err := strconv.ParseFloat(cols[10], 64); err == nil && c >= 0 {
			w.Confidence = c
			sum += c
			n++
		}
		words = append(words, w)
	}

	rec := Recognition{Text: b.String(), Words: words}
	if n > 0 {
		rec.Confidence = sum / float64(n) // 0..100
	}
	return rec
}
