package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docreader/constants"
	"github.com/joseph-ayodele/docreader/internal/common"
)

// fakeRasterizer writes an empty file per page up to pages, then reports the end of the document.
type fakeRasterizer struct {
	pages int
	crash map[int]bool

	mu   sync.Mutex
	dirs map[string]struct{}
}

func (f *fakeRasterizer) RasterizePage(_ context.Context, pdfPath string, page, _ int, dir string) (string, error) {
	f.mu.Lock()
	if f.dirs == nil {
		f.dirs = map[string]struct{}{}
	}
	f.dirs[dir] = struct{}{}
	f.mu.Unlock()

	if _, err := os.Stat(pdfPath); err != nil {
		return "", err
	}
	if page > f.pages {
		return "", ErrNoSuchPage
	}
	if f.crash[page] {
		return "", errors.New("pdftoppm: signal: killed")
	}
	p := filepath.Join(dir, fmt.Sprintf("page-%d.png", page))
	return p, os.WriteFile(p, []byte{byte(page)}, 0o600)
}

// fakeRecognizer answers per page (keyed by the page byte the rasterizer wrote).
type fakeRecognizer struct {
	initErr error
	fail    map[int]bool
	text    map[int]string
	conf    map[int]float64

	mu        sync.Mutex
	langsSeen []string
}

func (f *fakeRecognizer) Init(_ context.Context, lang string) error {
	f.mu.Lock()
	f.langsSeen = append(f.langsSeen, lang)
	f.mu.Unlock()
	return f.initErr
}

func (f *fakeRecognizer) Recognize(_ context.Context, imagePath, _ string) (Recognition, error) {
	b, err := os.ReadFile(imagePath)
	if err != nil {
		return Recognition{}, err
	}
	page := 1
	if len(b) == 1 {
		page = int(b[0])
	}
	if f.fail[page] {
		return Recognition{}, errors.New("recognizer crashed")
	}
	text, ok := f.text[page]
	if !ok {
		text = fmt.Sprintf("Text of page %d.", page)
	}
	conf, ok := f.conf[page]
	if !ok {
		conf = 90
	}
	return Recognition{Text: text, Confidence: conf}, nil
}

func newTestEngine(r Rasterizer, rec Recognizer, batch int) *Engine {
	return NewEngine(Config{BatchSize: batch}, nil,
		WithRasterizer(r),
		WithRecognizer(rec),
		WithPageCounter(func([]byte) (int, error) { return 0, errors.New("no page tree") }),
	)
}

var fakePDF = []byte("%PDF-1.7 fake")

func TestExtract_UnsupportedFormat(t *testing.T) {
	e := newTestEngine(&fakeRasterizer{}, &fakeRecognizer{}, 1)
	_, err := e.Extract(context.Background(), []byte("hello"), "text/plain", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
}

func TestExtract_EmptyInput(t *testing.T) {
	e := newTestEngine(&fakeRasterizer{}, &fakeRecognizer{}, 1)
	_, err := e.Extract(context.Background(), nil, constants.MimePDF, Options{})
	assert.ErrorIs(t, err, common.ErrExtractionFailed)
}

func TestExtract_PagesInOrderUntilRasterizerStops(t *testing.T) {
	for _, batch := range []int{1, 2, 4, 16} {
		t.Run(fmt.Sprintf("batch%d", batch), func(t *testing.T) {
			rec := &fakeRecognizer{}
			e := newTestEngine(&fakeRasterizer{pages: 7}, rec, batch)
			pages, err := e.Extract(context.Background(), fakePDF, constants.MimePDF, Options{})
			require.NoError(t, err)
			require.Len(t, pages, 7)
			for i, p := range pages {
				assert.Equal(t, i+1, p.Page)
				assert.Equal(t, fmt.Sprintf("Text of page %d.", i+1), p.Text)
			}
			assert.Equal(t, []string{DefaultLanguage}, rec.langsSeen)
		})
	}
}

func TestExtract_ScenarioB_FailedPageIsSkipped(t *testing.T) {
	e := newTestEngine(&fakeRasterizer{pages: 3}, &fakeRecognizer{fail: map[int]bool{2: true}}, 2)
	res, err := e.ExtractDocument(context.Background(), fakePDF, constants.MimePDF, Options{Language: "deu"})
	require.NoError(t, err)
	require.Len(t, res.Pages, 2)
	assert.Equal(t, 1, res.Pages[0].Page)
	assert.Equal(t, 3, res.Pages[1].Page)
	assert.Equal(t, 3, res.PageCount)
	assert.Equal(t, "deu", res.Language)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "page 2")
}

func TestExtract_RasterizerCrashTruncatesWithWarning(t *testing.T) {
	e := newTestEngine(&fakeRasterizer{pages: 10, crash: map[int]bool{3: true}}, &fakeRecognizer{}, 4)
	res, err := e.ExtractDocument(context.Background(), fakePDF, constants.MimePDF, Options{})
	require.NoError(t, err)
	require.Len(t, res.Pages, 2)
	assert.Equal(t, 2, res.PageCount)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "page 3")
	assert.Contains(t, res.Warnings[0], "killed")
}

func TestExtract_EndOfDocumentIsNotAWarning(t *testing.T) {
	e := newTestEngine(&fakeRasterizer{pages: 3}, &fakeRecognizer{}, 2)
	res, err := e.ExtractDocument(context.Background(), fakePDF, constants.MimePDF, Options{})
	require.NoError(t, err)
	assert.Len(t, res.Pages, 3)
	assert.Empty(t, res.Warnings)
}

func TestExtract_AllPagesFail(t *testing.T) {
	e := newTestEngine(&fakeRasterizer{pages: 2}, &fakeRecognizer{fail: map[int]bool{1: true, 2: true}}, 2)
	_, err := e.Extract(context.Background(), fakePDF, constants.MimePDF, Options{})
	assert.ErrorIs(t, err, common.ErrExtractionFailed)
}

func TestExtract_NoPagesRendered(t *testing.T) {
	e := newTestEngine(&fakeRasterizer{pages: 0}, &fakeRecognizer{}, 2)
	_, err := e.Extract(context.Background(), fakePDF, constants.MimePDF, Options{})
	assert.ErrorIs(t, err, common.ErrExtractionFailed)
}

func TestExtract_RecognizerInitFails(t *testing.T) {
	e := newTestEngine(&fakeRasterizer{pages: 2}, &fakeRecognizer{initErr: errors.New("no traineddata")}, 2)
	_, err := e.Extract(context.Background(), fakePDF, constants.MimePDF, Options{})
	assert.ErrorIs(t, err, common.ErrExtractionFailed)
	assert.Contains(t, err.Error(), "no traineddata")
}

func TestExtract_PageCountHintAndMaxPages(t *testing.T) {
	r := &fakeRasterizer{pages: 10}
	e := NewEngine(Config{BatchSize: 3, MaxPages: 5}, nil,
		WithRasterizer(r),
		WithRecognizer(&fakeRecognizer{}),
		WithPageCounter(func([]byte) (int, error) { return 4, nil }),
	)
	pages, err := e.Extract(context.Background(), fakePDF, constants.MimePDF, Options{})
	require.NoError(t, err)
	assert.Len(t, pages, 4)
}

func TestExtract_EmptyPageHasZeroConfidence(t *testing.T) {
	rec := &fakeRecognizer{text: map[int]string{2: "  \n "}, conf: map[int]float64{2: 55}}
	e := newTestEngine(&fakeRasterizer{pages: 3}, rec, 3)
	pages, err := e.Extract(context.Background(), fakePDF, constants.MimePDF, Options{})
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, "", pages[1].Text)
	assert.Zero(t, pages[1].Confidence)
}

func TestExtract_TempFilesRemoved(t *testing.T) {
	r := &fakeRasterizer{pages: 2}
	e := newTestEngine(r, &fakeRecognizer{fail: map[int]bool{1: true, 2: true}}, 2)
	_, err := e.Extract(context.Background(), fakePDF, constants.MimePDF, Options{})
	require.Error(t, err)

	e = newTestEngine(r, &fakeRecognizer{}, 2)
	_, err = e.Extract(context.Background(), fakePDF, constants.MimePDF, Options{})
	require.NoError(t, err)

	require.Len(t, r.dirs, 2)
	for dir := range r.dirs {
		_, statErr := os.Stat(dir)
		assert.True(t, os.IsNotExist(statErr), "temp dir %s should be gone", dir)
	}
}

func TestExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newTestEngine(&fakeRasterizer{pages: 3}, &fakeRecognizer{}, 1)
	_, err := e.Extract(ctx, fakePDF, constants.MimePDF, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtract_SingleImageIsOnePage(t *testing.T) {
	e := newTestEngine(&fakeRasterizer{}, &fakeRecognizer{text: map[int]string{1: "Scanned image text."}}, 2)
	pages, err := e.Extract(context.Background(), []byte{1}, constants.MimePNG, Options{})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].Page)
	assert.Equal(t, "Scanned image text.", pages[0].Text)
}

func TestExtract_GIFConvertedToPNG(t *testing.T) {
	img := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.White, color.Black})
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))

	var seen string
	rec := recognizerFunc(func(path string) (Recognition, error) {
		seen = filepath.Ext(path)
		b, err := os.ReadFile(path)
		if err != nil {
			return Recognition{}, err
		}
		_, format, err := image.DecodeConfig(bytes.NewReader(b))
		if err != nil {
			return Recognition{}, err
		}
		return Recognition{Text: "format " + format, Confidence: 70}, nil
	})
	e := newTestEngine(&fakeRasterizer{}, rec, 1)
	pages, err := e.Extract(context.Background(), buf.Bytes(), constants.MimeGIF, Options{})
	require.NoError(t, err)
	assert.Equal(t, ".png", seen)
	assert.Equal(t, "format png", pages[0].Text)
}

func TestExtract_UndecodableImage(t *testing.T) {
	e := newTestEngine(&fakeRasterizer{}, &fakeRecognizer{}, 1)
	_, err := e.Extract(context.Background(), []byte("not a tiff"), constants.MimeTIFF, Options{})
	assert.ErrorIs(t, err, common.ErrExtractionFailed)
}

type recognizerFunc func(path string) (Recognition, error)

func (recognizerFunc) Init(context.Context, string) error { return nil }
func (f recognizerFunc) Recognize(_ context.Context, path, _ string) (Recognition, error) {
	return f(path)
}
