package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

// stubRunner replays canned output and records calls.
type stubRunner struct {
	calls  []call
	handle func(name string, args []string) ([]byte, []byte, error)
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, call{name: name, args: args})
	return s.handle(name, args)
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t2480\t3508\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t100\t200\t80\t30\t96.5\tHello\n" +
	"5\t1\t1\t1\t1\t2\t190\t200\t90\t30\t91.5\tworld.\n" +
	"5\t1\t1\t1\t2\t1\t100\t240\t70\t30\t90\tSecond\n" +
	"5\t1\t2\t1\t1\t1\t100\t400\t60\t30\t82\tNext\n" +
	"5\t1\t2\t1\t1\t2\t170\t400\t60\t30\t-1\t \n"

func TestParseTSV(t *testing.T) {
	rec := parseTSV(sampleTSV)
	assert.Equal(t, "Hello world.\nSecond\n\nNext", rec.Text)
	assert.InDelta(t, (96.5+91.5+90+82)/4, rec.Confidence, 1e-9)
	require.Len(t, rec.Words, 4)
	assert.Equal(t, BoundingBox{Left: 100, Top: 200, Width: 80, Height: 30}, rec.Words[0].Box)
}

func TestParseTSV_NoWords(t *testing.T) {
	rec := parseTSV("level\tpage_num\n")
	assert.Empty(t, rec.Text)
	assert.Zero(t, rec.Confidence)
}

func TestTesseractCLI_Recognize(t *testing.T) {
	r := &stubRunner{handle: func(string, []string) ([]byte, []byte, error) {
		return []byte(sampleTSV), nil, nil
	}}
	tc := NewTesseractCLI(Config{PSM: 6, TessdataDir: "/opt/tessdata"}, r)
	rec, err := tc.Recognize(context.Background(), "/tmp/p.png", "eng")
	require.NoError(t, err)
	assert.Contains(t, rec.Text, "Hello world.")

	require.Len(t, r.calls, 1)
	assert.Equal(t, "tesseract", r.calls[0].name)
	assert.Equal(t, []string{"/tmp/p.png", "stdout", "-l", "eng", "--psm", "6", "--tessdata-dir", "/opt/tessdata", "tsv"}, r.calls[0].args)
}

func TestTesseractCLI_RecognizeError(t *testing.T) {
	r := &stubRunner{handle: func(string, []string) ([]byte, []byte, error) {
		return nil, []byte("Error in pixReadStream"), errors.New("exit status 1")
	}}
	_, err := NewTesseractCLI(Config{}, r).Recognize(context.Background(), "x.png", "eng")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pixReadStream")
}

func TestTesseractCLI_Init(t *testing.T) {
	r := &stubRunner{handle: func(string, []string) ([]byte, []byte, error) {
		return []byte("List of available languages in \"/usr/share/tessdata/\" (3):\neng\ndeu\nosd\n"), nil, nil
	}}
	tc := NewTesseractCLI(Config{}, r)
	assert.NoError(t, tc.Init(context.Background(), "eng"))
	assert.NoError(t, tc.Init(context.Background(), "eng+deu"))
	err := tc.Init(context.Background(), "fra")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"fra"`)
}

func TestTesseractCLI_InitMissingBinary(t *testing.T) {
	r := &stubRunner{handle: func(string, []string) ([]byte, []byte, error) {
		return nil, nil, errors.New(`exec: "tesseract": executable file not found in $PATH`)
	}}
	assert.Error(t, NewTesseractCLI(Config{}, r).Init(context.Background(), "eng"))
}

func TestPdftoppm_RasterizePage(t *testing.T) {
	dir := t.TempDir()
	r := &stubRunner{handle: func(_ string, args []string) ([]byte, []byte, error) {
		prefix := args[len(args)-1]
		return nil, nil, os.WriteFile(prefix+".png", []byte("png"), 0o600)
	}}
	out, err := NewPdftoppm("", r).RasterizePage(context.Background(), "/in/doc.pdf", 3, 150, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "page-3.png"), out)
	assert.Equal(t, "pdftoppm", r.calls[0].name)
	assert.Equal(t, "-r 150 -png -f 3 -l 3 -singlefile /in/doc.pdf "+filepath.Join(dir, "page-3"), strings.Join(r.calls[0].args, " "))
}

func TestPdftoppm_PastLastPage(t *testing.T) {
	r := &stubRunner{handle: func(string, []string) ([]byte, []byte, error) {
		return nil, []byte("Wrong page range given: the first page (4) can not be after the last page (3).\n"), errors.New("exit status 99")
	}}
	_, err := NewPdftoppm("", r).RasterizePage(context.Background(), "doc.pdf", 4, 300, t.TempDir())
	assert.ErrorIs(t, err, ErrNoSuchPage)
}

func TestPdftoppm_NoOutputMeansNoPage(t *testing.T) {
	r := &stubRunner{handle: func(string, []string) ([]byte, []byte, error) { return nil, nil, nil }}
	_, err := NewPdftoppm("", r).RasterizePage(context.Background(), "doc.pdf", 1, 300, t.TempDir())
	assert.ErrorIs(t, err, ErrNoSuchPage)
}

func TestPdftoppm_OtherFailure(t *testing.T) {
	r := &stubRunner{handle: func(string, []string) ([]byte, []byte, error) {
		return nil, []byte("Syntax Error: Couldn't read xref table"), errors.New("exit status 1")
	}}
	_, err := NewPdftoppm("", r).RasterizePage(context.Background(), "doc.pdf", 1, 300, t.TempDir())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSuchPage)
}
