package storage

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/docreader/internal/common"
)

// Local reads documents from the filesystem. Relative locators resolve under root.
type Local struct {
	root string
	log  *slog.Logger
}

func NewLocal(root string, log *slog.Logger) *Local {
	if log == nil {
		log = slog.Default()
	}
	return &Local{root: root, log: log}
}

// Resolve maps a locator to a filesystem path, refusing relative paths that leave root.
func (l *Local) Resolve(locator string) (string, error) {
	loc, err := ParseLocator(locator)
	if err != nil {
		return "", err
	}
	if loc.Scheme != SchemeFile {
		return "", common.StorageUnavailable("local storage cannot read "+loc.Scheme+" locators", nil)
	}
	if filepath.IsAbs(loc.Path) {
		return filepath.Clean(loc.Path), nil
	}
	if !filepath.IsLocal(loc.Path) {
		return "", common.NotFound("locator escapes storage root: " + locator)
	}
	return filepath.Join(l.root, loc.Path), nil
}

func (l *Local) ReadBytes(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := l.Resolve(locator)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		l.log.Warn("document file missing", "path", path)
		return nil, common.NotFound("document file " + path + " not found")
	case err != nil:
		l.log.Error("document read failed", "path", path, "error", err)
		return nil, common.StorageUnavailable("read "+path, err)
	}
	l.log.Debug("document read", "path", path, "bytes", len(b))
	return b, nil
}
