// Package storage resolves document locators to bytes.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/joseph-ayodele/docreader/internal/common"
)

// Reader loads the raw bytes of a stored document.
type Reader interface {
	ReadBytes(ctx context.Context, locator string) ([]byte, error)
}

const (
	SchemeFile = "file"
	SchemeGCS  = "gs"
)

// Locator is a parsed storage locator. Plain paths parse as the file scheme.
type Locator struct {
	Scheme string
	Bucket string
	Path   string
}

func (l Locator) String() string {
	if l.Scheme == SchemeGCS {
		return "gs://" + l.Bucket + "/" + l.Path
	}
	return l.Path
}

// ParseLocator accepts "gs://bucket/object", "file:///abs/path" and bare paths.
func ParseLocator(locator string) (Locator, error) {
	if locator == "" {
		return Locator{}, common.NotFound("empty storage locator")
	}
	scheme, rest, ok := strings.Cut(locator, "://")
	if !ok {
		return Locator{Scheme: SchemeFile, Path: locator}, nil
	}
	switch scheme {
	case SchemeGCS:
		bucket, object, _ := strings.Cut(rest, "/")
		if bucket == "" || object == "" {
			return Locator{}, common.NotFound(fmt.Sprintf("malformed gcs locator %q", locator))
		}
		return Locator{Scheme: SchemeGCS, Bucket: bucket, Path: object}, nil
	case SchemeFile:
		u, err := url.Parse(locator)
		if err != nil || u.Path == "" {
			return Locator{}, common.NotFound(fmt.Sprintf("malformed file locator %q", locator))
		}
		return Locator{Scheme: SchemeFile, Path: u.Path}, nil
	default:
		return Locator{}, common.StorageUnavailable(fmt.Sprintf("no storage backend for scheme %q", scheme), nil)
	}
}

// Router sends each locator to the backend that owns its scheme.
type Router struct {
	local Reader
	gcs   Reader
}

// NewRouter builds a Router; gcs may be nil when object storage is disabled.
func NewRouter(local, gcs Reader) *Router {
	return &Router{local: local, gcs: gcs}
}

func (r *Router) ReadBytes(ctx context.Context, locator string) ([]byte, error) {
	loc, err := ParseLocator(locator)
	if err != nil {
		return nil, err
	}
	switch loc.Scheme {
	case SchemeGCS:
		if r.gcs == nil {
			return nil, common.StorageUnavailable("gcs storage is not configured", nil)
		}
		return r.gcs.ReadBytes(ctx, locator)
	default:
		if r.local == nil {
			return nil, common.StorageUnavailable("local storage is not configured", nil)
		}
		return r.local.ReadBytes(ctx, locator)
	}
}
