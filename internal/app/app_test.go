package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"entgo.io/ent/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docreader/constants"
	"github.com/joseph-ayodele/docreader/internal/common"
)

func TestNew_InMemory(t *testing.T) {
	ctx := context.Background()
	cfg, err := common.LoadConfig("")
	require.NoError(t, err)
	cfg.Storage.LocalRoot = t.TempDir()
	cfg.OCR.Backend = "gosseract"

	a, err := New(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), true)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	assert.Equal(t, dialect.SQLite, a.DB.Dialect())

	path := filepath.Join(cfg.Storage.LocalRoot, "letter.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))
	r, err := a.Ingestor.IngestPath(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "letter.pdf", r.Locator)

	data, err := a.Storage.ReadBytes(ctx, r.Locator)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	st, err := a.Orchestrator.GetStatus(ctx, r.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, constants.DocumentUploaded, st.Document.Status)
	assert.Empty(t, st.Jobs)
	assert.Equal(t, "eng", a.Orchestrator.Defaults().OCRLanguage)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg, err := common.LoadConfig("")
	require.NoError(t, err)
	cfg.Pipeline.ChunkOverlap = cfg.Pipeline.ChunkSize

	_, err = New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), true)
	assert.Error(t, err)
}
