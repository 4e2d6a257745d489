package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/docreader/constants"
	"github.com/joseph-ayodele/docreader/internal/common"
	"github.com/joseph-ayodele/docreader/internal/entity"
	"github.com/joseph-ayodele/docreader/internal/repository"
)

// sniffLen is how much of a file http.DetectContentType looks at.
const sniffLen = 512

// FSIngestor reads from the local filesystem. Files under Root are stored
// with a root-relative locator so the local storage backend can resolve them.
type FSIngestor struct {
	Docs repository.DocumentRepository
	Root string
	log  *slog.Logger
}

func NewFSIngestor(docs repository.DocumentRepository, root string, log *slog.Logger) *FSIngestor {
	if log == nil {
		log = slog.Default()
	}
	return &FSIngestor{Docs: docs, Root: root, log: log}
}

func (i *FSIngestor) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	out := IngestionResult{SourcePath: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		i.log.Error("abs path error", "path", path, "err", err)
		return out, fmt.Errorf("abs path: %w", err)
	}
	out.SourcePath = abs

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !AllowedExt(ext) {
		i.log.Warn("unsupported or missing extension", "path", abs, "ext", ext)
		return out, common.UnsupportedFormat(fmt.Sprintf("unsupported or missing extension %q", ext))
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, common.NotFound("file " + abs + " not found")
		}
		return out, fmt.Errorf("stat: %w", err)
	}
	if info.IsDir() {
		return out, common.UnsupportedFormat(abs + " is a directory")
	}

	head, err := readHead(abs)
	if err != nil {
		i.log.Error("read error", "path", abs, "err", err)
		return out, err
	}
	mt := constants.DetectMime(ext, head)
	if !constants.IsSupportedMime(mt) {
		return out, common.UnsupportedFormat(fmt.Sprintf("%s: mime type %q is not supported", abs, mt))
	}

	out.Locator = i.locatorFor(abs)
	out.MimeType = mt
	out.SizeBytes = info.Size()

	existing, err := i.Docs.FindByLocator(ctx, out.Locator)
	switch {
	case err == nil:
		out.DocumentID = existing.ID
		out.UploadedAt = existing.UploadedAt
		out.Deduplicated = true
		i.log.Debug("file already registered", "path", abs, "document_id", existing.ID)
		return out, nil
	case !errors.Is(err, common.ErrNotFound):
		return out, err
	}

	doc, err := i.Docs.Create(ctx, &entity.Document{
		Filename:       filepath.Base(abs),
		MimeType:       mt,
		SizeBytes:      info.Size(),
		StorageLocator: out.Locator,
	})
	if err != nil {
		return out, err
	}
	out.DocumentID = doc.ID
	out.UploadedAt = doc.UploadedAt
	i.log.Info("document ingested", "path", abs, "document_id", doc.ID, "mime_type", mt, "bytes", info.Size())
	return out, nil
}

func (i *FSIngestor) locatorFor(abs string) string {
	if i.Root == "" {
		return abs
	}
	root, err := filepath.Abs(i.Root)
	if err != nil {
		return abs
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || !filepath.IsLocal(rel) {
		return abs
	}
	return filepath.ToSlash(rel)
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("read: %w", err)
	}
	return buf[:n], nil
}
