// Package ocr turns PDF and raster image bytes into ordered, per-page
// recognized text with confidence scores.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/docreader/constants"
	"github.com/joseph-ayodele/docreader/internal/common"
)

const DefaultLanguage = "eng"

type Config struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Language  string // default "eng"
	DPI       int    // rasterization DPI for PDF pages, default 300
	BatchSize int    // pages recognized concurrently, default 4
	MaxPages  int    // 0 = no limit

	TessdataDir string
	PSM         int // e.g., 6 is good for uniform block of text
	OEM         int // 1 = LSTM; leave 0 to use default
}

// Options are the per-call knobs.
type Options struct {
	Language string
}

// BoundingBox is a word rectangle in raster pixels.
type BoundingBox struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Word struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

// PageResult is one page's recognition output. Confidence is 0..100.
type PageResult struct {
	Page       int     `json:"page"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words,omitempty"`
}

// Recognition is what a Recognizer returns for one image.
type Recognition struct {
	Text       string
	Confidence float64
	Words      []Word
}

// ErrNoSuchPage is returned by a Rasterizer asked for a page past the end of the document.
var ErrNoSuchPage = errors.New("page does not exist")

// Rasterizer renders a single 1-based PDF page to an image file inside dir.
type Rasterizer interface {
	RasterizePage(ctx context.Context, pdfPath string, page, dpi int, dir string) (string, error)
}

// Recognizer runs text recognition on an image file.
type Recognizer interface {
	// Init verifies the backend can recognize lang at all.
	Init(ctx context.Context, lang string) error
	Recognize(ctx context.Context, imagePath, lang string) (Recognition, error)
}

// Extraction is the full outcome of one Extract call.
type Extraction struct {
	Pages     []PageResult
	PageCount int // pages the rasterizer produced, recognized or not
	Language  string
	Warnings  []string
	Duration  time.Duration
}

type Engine struct {
	cfg         Config
	raster      Rasterizer
	recog       Recognizer
	pageCounter func(data []byte) (int, error)
	logger      *slog.Logger
}

type EngineOption func(*Engine)

func WithRasterizer(r Rasterizer) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.raster = r
		}
	}
}

func WithRecognizer(r Recognizer) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.recog = r
		}
	}
}

// WithPageCounter overrides how the page-count hint is read from PDF bytes.
func WithPageCounter(f func(data []byte) (int, error)) EngineOption {
	return func(e *Engine) {
		e.pageCounter = f
	}
}

func NewEngine(cfg Config, logger *slog.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 4
	}
	runner := NewExecRunner(logger)
	e := &Engine{
		cfg:         cfg,
		raster:      NewPdftoppm(cfg.Pdftoppm, runner),
		recog:       NewTesseractCLI(cfg, runner),
		pageCounter: PDFPageCount,
		logger:      logger,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract recognizes every page of data and returns the pages in source order.
func (e *Engine) Extract(ctx context.Context, data []byte, mimeType string, opts Options) ([]PageResult, error) {
	res, err := e.ExtractDocument(ctx, data, mimeType, opts)
	if err != nil {
		return nil, err
	}
	return res.Pages, nil
}

// ExtractDocument is Extract plus the diagnostics the pipeline records.
func (e *Engine) ExtractDocument(ctx context.Context, data []byte, mimeType string, opts Options) (Extraction, error) {
	start := time.Now()
	mt := constants.NormalizeMime(mimeType)
	if !constants.IsSupportedMime(mt) {
		e.logger.Error("unsupported ocr mime type", "mime_type", mimeType)
		return Extraction{}, common.UnsupportedFormat(fmt.Sprintf("mime type %q is not supported", mimeType))
	}
	if len(data) == 0 {
		return Extraction{}, common.ExtractionFailed("empty document", nil)
	}
	lang := opts.Language
	if lang == "" {
		lang = e.cfg.Language
	}

	if err := e.recog.Init(ctx, lang); err != nil {
		e.logger.Error("recognizer init failed", "lang", lang, "error", err)
		return Extraction{}, common.ExtractionFailed("initialize recognizer", err)
	}

	tmpDir, err := os.MkdirTemp("", "docreader-ocr-*")
	if err != nil {
		return Extraction{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer func(path string) {
		if err := os.RemoveAll(path); err != nil {
			e.logger.Warn("failed to remove temp dir", "path", path, "error", err)
		}
	}(tmpDir)

	var res Extraction
	if constants.IsPDFMime(mt) {
		res, err = e.extractPDF(ctx, tmpDir, data, lang)
	} else {
		res, err = e.extractImage(ctx, tmpDir, data, mt, lang)
	}
	res.Language = lang
	res.Duration = time.Since(start)
	if err != nil {
		return res, err
	}
	if len(res.Pages) == 0 {
		return res, common.ExtractionFailed(fmt.Sprintf("no pages recognized out of %d", res.PageCount), nil)
	}

	e.logger.Info("ocr extraction finished",
		"mime_type", mt,
		"pages", res.PageCount,
		"recognized", len(res.Pages),
		"warnings", len(res.Warnings),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

type pageSlot struct {
	result  PageResult
	missing bool // rasterizer could not produce the page
	err     error
}

func (e *Engine) extractPDF(ctx context.Context, dir string, data []byte, lang string) (Extraction, error) {
	src := filepath.Join(dir, "source.pdf")
	if err := os.WriteFile(src, data, 0o600); err != nil {
		return Extraction{}, fmt.Errorf("write source: %w", err)
	}

	limit := e.cfg.MaxPages
	if e.pageCounter != nil {
		if n, err := e.pageCounter(data); err == nil && n > 0 {
			if limit == 0 || n < limit {
				limit = n
			}
		} else if err != nil {
			e.logger.Debug("pdf page count unavailable, rasterizing until end", "error", err)
		}
	}

	var res Extraction
	batch := e.cfg.BatchSize
	for first := 1; limit == 0 || first <= limit; first += batch {
		last := first + batch - 1
		if limit > 0 && last > limit {
			last = limit
		}

		// index-addressed slots keep source order regardless of completion order
		slots := make([]pageSlot, last-first+1)
		var g errgroup.Group
		g.SetLimit(batch)
		for p := first; p <= last; p++ {
			g.Go(func() error {
				slots[p-first] = e.processPage(ctx, src, dir, p, lang)
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return res, err
		}

		for _, s := range slots {
			if s.missing {
				if s.err != nil && !errors.Is(s.err, ErrNoSuchPage) {
					page := res.PageCount + 1
					e.logger.Warn("rasterizer stopped, document truncated", "page", page, "error", s.err)
					res.Warnings = append(res.Warnings, fmt.Sprintf("page %d: rasterizer stopped, later pages skipped: %v", page, s.err))
				}
				return res, nil
			}
			res.PageCount++
			if s.err != nil {
				e.logger.Warn("page recognition failed, skipping", "page", s.result.Page, "error", s.err)
				res.Warnings = append(res.Warnings, fmt.Sprintf("page %d: %v", s.result.Page, s.err))
				continue
			}
			res.Pages = append(res.Pages, s.result)
		}
	}
	return res, nil
}

func (e *Engine) processPage(ctx context.Context, src, dir string, page int, lang string) pageSlot {
	img, err := e.raster.RasterizePage(ctx, src, page, e.cfg.DPI, dir)
	if err != nil {
		return pageSlot{missing: true, err: err}
	}
	defer func() { _ = os.Remove(img) }()

	return e.recognize(ctx, img, page, lang)
}

func (e *Engine) recognize(ctx context.Context, img string, page int, lang string) pageSlot {
	rec, err := e.recog.Recognize(ctx, img, lang)
	if err != nil {
		return pageSlot{result: PageResult{Page: page}, err: err}
	}
	text := CleanText(rec.Text)
	conf := clampConfidence(rec.Confidence)
	if text == "" {
		conf = 0
	}
	return pageSlot{result: PageResult{Page: page, Text: text, Confidence: conf, Words: rec.Words}}
}

func (e *Engine) extractImage(ctx context.Context, dir string, data []byte, mimeType, lang string) (Extraction, error) {
	img, err := writeRecognizableImage(dir, data, mimeType)
	if err != nil {
		return Extraction{}, common.ExtractionFailed("decode image", err)
	}
	res := Extraction{PageCount: 1}
	s := e.recognize(ctx, img, 1, lang)
	if s.err != nil {
		e.logger.Warn("page recognition failed, skipping", "page", 1, "error", s.err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("page 1: %v", s.err))
		return res, common.ExtractionFailed("no pages recognized out of 1", s.err)
	}
	res.Pages = []PageResult{s.result}
	return res, nil
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	}
	return c
}
