// Package publish uploads aggregated ground-truth rasters to an object store.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

// Backend names accepted by New.
const (
	BackendNone = "none"
	BackendGCS  = "gcs"
	BackendS3   = "s3"
)

const contentType = "image/tiff"

// Publisher uploads one asset and returns it with its bucket and URI filled in.
type Publisher interface {
	Publish(ctx context.Context, asset domain.PublishedAsset) (domain.PublishedAsset, error)
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend  string
	Bucket   string
	Region   string
	Endpoint string
}

// New builds the publisher for opts.Backend.
func New(ctx context.Context, opts Options, logger *slog.Logger) (Publisher, error) {
	switch opts.Backend {
	case "", BackendNone:
		return NewNoop(logger), nil
	case BackendGCS:
		return NewGCS(ctx, opts.Bucket, logger)
	case BackendS3:
		return NewS3(ctx, opts, logger)
	default:
		return nil, fmt.Errorf("unknown publish backend %q", opts.Backend)
	}
}

// Noop records the local path as the asset URI without uploading.
type Noop struct {
	logger *slog.Logger
}

// NewNoop returns a publisher that only checks the file exists.
func NewNoop(logger *slog.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) Publish(_ context.Context, asset domain.PublishedAsset) (domain.PublishedAsset, error) {
	if _, err := os.Stat(asset.LocalPath); err != nil {
		return asset, fmt.Errorf("%w: %s", domain.ErrMissingInput, asset.LocalPath)
	}
	abs, err := filepath.Abs(asset.LocalPath)
	if err != nil {
		return asset, fmt.Errorf("resolve %s: %w", asset.LocalPath, err)
	}
	asset.URI = "file://" + abs
	n.logger.Debug("publish disabled, asset kept local", "object", asset.ObjectName, "path", abs)
	return asset, nil
}

func (n *Noop) Close() error { return nil }

func openAsset(asset domain.PublishedAsset) (*os.File, error) {
	f, err := os.Open(asset.LocalPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrMissingInput, asset.LocalPath)
		}
		return nil, fmt.Errorf("open asset: %w", err)
	}
	return f, nil
}
