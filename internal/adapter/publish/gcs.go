package publish

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

// objectWriterFunc opens a writer for bucket/object carrying metadata.
type objectWriterFunc func(ctx context.Context, bucket, object string, metadata map[string]string) io.WriteCloser

// GCS uploads assets to a Cloud Storage bucket. STORAGE_EMULATOR_HOST is
// honoured by the client library.
type GCS struct {
	client    *storage.Client
	newWriter objectWriterFunc
	bucket    string
	logger    *slog.Logger
}

// NewGCS creates a storage client using application default credentials.
func NewGCS(ctx context.Context, bucket string, logger *slog.Logger) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs publisher: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	g := &GCS{client: client, bucket: bucket, logger: logger}
	g.newWriter = func(ctx context.Context, bucket, object string, metadata map[string]string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = contentType
		w.Metadata = metadata
		return w
	}
	return g, nil
}

func (g *GCS) Publish(ctx context.Context, asset domain.PublishedAsset) (domain.PublishedAsset, error) {
	f, err := openAsset(asset)
	if err != nil {
		return asset, err
	}
	defer f.Close()

	// A storage.Writer commits on Close unless its context is done first.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	src := &sourceReader{r: f}
	w := g.newWriter(ctx, g.bucket, asset.ObjectName, asset.Metadata)
	if _, err := io.Copy(w, src); err != nil {
		cancel()
		_ = w.Close()
		if src.err != nil {
			return asset, fmt.Errorf("read %s: %w", asset.LocalPath, src.err)
		}
		return asset, domain.Transient(fmt.Errorf("upload gs://%s/%s: %w", g.bucket, asset.ObjectName, err))
	}
	if err := w.Close(); err != nil {
		return asset, domain.Transient(fmt.Errorf("finalize gs://%s/%s: %w", g.bucket, asset.ObjectName, err))
	}
	asset.Bucket = g.bucket
	asset.URI = fmt.Sprintf("gs://%s/%s", g.bucket, asset.ObjectName)
	g.logger.Info("asset uploaded", "uri", asset.URI)
	return asset, nil
}

// sourceReader remembers a local read failure so it is not mistaken for an
// upload failure.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

func (g *GCS) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
