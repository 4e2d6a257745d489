package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docreader/constants"
	"github.com/joseph-ayodele/docreader/internal/common"
	"github.com/joseph-ayodele/docreader/internal/repository"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newDocs(t *testing.T) repository.DocumentRepository {
	t.Helper()
	ctx := context.Background()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repository.OpenSQLite(ctx, fmt.Sprintf("file:ingest_%s?mode=memory&cache=shared", name), discard())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(discard()) })
	require.NoError(t, repository.Migrate(ctx, db, discard()))
	return repository.NewDocumentRepository(db, discard())
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestIngestPath(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	docs := newDocs(t)
	ing := NewFSIngestor(docs, root, discard())

	path := filepath.Join(root, "scans", "page.png")
	writeFile(t, path, pngHeader)

	r, err := ing.IngestPath(ctx, path)
	require.NoError(t, err)
	assert.False(t, r.Deduplicated)
	assert.Equal(t, "scans/page.png", r.Locator)
	assert.Equal(t, constants.MimePNG, r.MimeType)
	assert.EqualValues(t, len(pngHeader), r.SizeBytes)

	doc, err := docs.Get(ctx, r.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "page.png", doc.Filename)
	assert.Equal(t, constants.DocumentUploaded, doc.Status)
	assert.Equal(t, "scans/page.png", doc.StorageLocator)

	again, err := ing.IngestPath(ctx, path)
	require.NoError(t, err)
	assert.True(t, again.Deduplicated)
	assert.Equal(t, r.DocumentID, again.DocumentID)
}

func TestIngestPath_Rejects(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	ing := NewFSIngestor(newDocs(t), root, discard())

	txt := filepath.Join(root, "notes.txt")
	writeFile(t, txt, []byte("hello"))
	_, err := ing.IngestPath(ctx, txt)
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)

	_, err = ing.IngestPath(ctx, filepath.Join(root, "missing.pdf"))
	assert.ErrorIs(t, err, common.ErrNotFound)

	outside := filepath.Join(t.TempDir(), "elsewhere.pdf")
	writeFile(t, outside, []byte("%PDF-1.4"))
	r, err := ing.IngestPath(ctx, outside)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(r.Locator), "files outside the root keep their absolute path")
}

func TestIngestDirectory(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	ing := NewFSIngestor(newDocs(t), root, discard())

	writeFile(t, filepath.Join(root, "a.pdf"), []byte("%PDF-1.4"))
	writeFile(t, filepath.Join(root, "nested", "b.png"), pngHeader)
	writeFile(t, filepath.Join(root, "nested", "readme.md"), []byte("# skip"))
	writeFile(t, filepath.Join(root, ".cache", "c.pdf"), []byte("%PDF-1.4"))
	writeFile(t, filepath.Join(root, ".d.pdf"), []byte("%PDF-1.4"))

	results, stats, err := ing.IngestDirectory(ctx, root, true)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Matched)
	assert.EqualValues(t, 2, stats.Succeeded)
	assert.Zero(t, stats.Failed)
	assert.Len(t, results, 2)

	_, stats, err = ing.IngestDirectory(ctx, root, true)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Deduplicated)

	_, stats, err = ing.IngestDirectory(ctx, root, false)
	require.NoError(t, err)
	assert.EqualValues(t, 4, stats.Matched)

	_, _, err = ing.IngestDirectory(ctx, "  ", true)
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
}

func TestStartWatcher_EmitsNewFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "existing.pdf"), []byte("%PDF-1.4"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := StartWatcher(ctx, WatchConfig{
		Roots:       []string{root},
		InitialScan: true,
		Debounce:    20 * time.Millisecond,
		Logger:      discard(),
	})
	require.NoError(t, err)

	next := func() string {
		select {
		case p := <-events:
			return p
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for watcher event")
			return ""
		}
	}
	assert.Equal(t, "existing.pdf", filepath.Base(next()))

	writeFile(t, filepath.Join(root, "ignored.txt"), []byte("x"))
	writeFile(t, filepath.Join(root, "fresh.png"), pngHeader)
	assert.Equal(t, "fresh.png", filepath.Base(next()))

	cancel()
	for range events {
	}
}

func TestStartWatcher_NoRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{})
	assert.Error(t, err)
}
