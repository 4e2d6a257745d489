package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/docreader/internal/common"
)

// GCS reads documents from Cloud Storage. Locators without a bucket use the default bucket.
type GCS struct {
	client        *storage.Client
	defaultBucket string
	log           *slog.Logger
}

func NewGCS(ctx context.Context, defaultBucket string, log *slog.Logger, opts ...option.ClientOption) (*GCS, error) {
	if log == nil {
		log = slog.Default()
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, common.StorageUnavailable("create gcs client", err)
	}
	log.Info("gcs storage ready", "default_bucket", defaultBucket)
	return &GCS{client: client, defaultBucket: defaultBucket, log: log}, nil
}

func (g *GCS) object(locator string) (Locator, error) {
	loc, err := ParseLocator(locator)
	if err != nil {
		return Locator{}, err
	}
	switch {
	case loc.Scheme == SchemeGCS:
		return loc, nil
	case g.defaultBucket != "":
		return Locator{Scheme: SchemeGCS, Bucket: g.defaultBucket, Path: loc.Path}, nil
	default:
		return Locator{}, common.StorageUnavailable(fmt.Sprintf("locator %q names no bucket", locator), nil)
	}
}

func (g *GCS) ReadBytes(ctx context.Context, locator string) ([]byte, error) {
	loc, err := g.object(locator)
	if err != nil {
		return nil, err
	}
	r, err := g.client.Bucket(loc.Bucket).Object(loc.Path).NewReader(ctx)
	if err != nil {
		return nil, g.classify(loc, err)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, g.classify(loc, err)
	}
	g.log.Debug("gcs object read", "object", loc.String(), "bytes", len(b))
	return b, nil
}

func (g *GCS) classify(loc Locator, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		g.log.Warn("gcs object missing", "object", loc.String())
		return common.NotFound("object " + loc.String() + " not found")
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return common.NotFound("object " + loc.String() + " not found")
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	g.log.Error("gcs read failed", "object", loc.String(), "error", err)
	return common.StorageUnavailable("read "+loc.String(), err)
}

func (g *GCS) Close() error {
	return g.client.Close()
}
