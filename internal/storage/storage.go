// Package storage abstracts the object store documents and form templates
// are fetched from.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	perrors "github.com/dokmap/dokmap/internal/pipeline/errors"
)

// Downloader fetches an object's bytes by bucket and path.
type Downloader interface {
	Download(ctx context.Context, bucket, path string) ([]byte, error)
}

// Filesystem serves objects from a local directory tree: one subdirectory
// per bucket. It backs development setups and tests; a remote object store
// can replace it behind the same interface.
type Filesystem struct {
	root   string
	logger *slog.Logger
}

// NewFilesystem creates a filesystem-backed store rooted at dir.
func NewFilesystem(dir string, logger *slog.Logger) *Filesystem {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Filesystem{root: dir, logger: logger}
}

// Download reads the object at bucket/path. Path traversal outside the
// bucket is rejected.
func (f *Filesystem) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, perrors.Wrap(perrors.KindTransport, "download cancelled", err)
	}

	bucketDir := filepath.Join(f.root, filepath.Clean("/"+bucket))
	full := filepath.Join(bucketDir, filepath.Clean("/"+path))
	if !strings.HasPrefix(full, bucketDir+string(os.PathSeparator)) && full != bucketDir {
		return nil, perrors.New(perrors.KindMalformedInput, fmt.Sprintf("invalid object path %q", path))
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perrors.Wrap(perrors.KindMalformedInput, fmt.Sprintf("object %s/%s not found", bucket, path), err)
		}
		return nil, perrors.Wrap(perrors.KindTransport, fmt.Sprintf("failed to read object %s/%s", bucket, path), err)
	}

	f.logger.Debug("object downloaded", "bucket", bucket, "path", path, "bytes", len(data))
	return data, nil
}
