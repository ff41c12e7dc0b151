package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/config"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

// publishStage uploads every aggregated raster that has no publication
// marker yet, announces it, and writes the marker.
func (p *Pipeline) publishStage(ctx context.Context, sum *Summary) error {
	if p.deps.Publisher == nil {
		return fmt.Errorf("no publisher configured")
	}
	l, err := p.scan(config.StagePublish, p.opts.Dirs.GroundTruthMerged, sum)
	if err != nil {
		return err
	}

	var units []unit
	for _, a := range l.ofKind(domain.ArtifactMergedGroundTruth) {
		key := a.Unit()
		path := a.Path
		logger := p.unitLogger(config.StagePublish, a.Key)
		marker := filepath.Join(p.opts.Dirs.Published, key.String()+".json")
		units = append(units, unit{
			key:    key.String(),
			logger: logger,
			run: func(ctx context.Context) (bool, error) {
				done, err := exists(marker)
				if err != nil || done {
					return done, err
				}
				var eventDate time.Time
				if p.deps.Registry != nil {
					if act, ok := p.deps.Registry.Lookup(key.Event); ok {
						eventDate = act.EventDate
					} else {
						logger.Warn("event not in registry, publishing without event_date")
					}
				}
				asset := domain.NewPublishedAsset(key, path, p.opts.PublishPrefix, eventDate)

				err = p.retry(ctx, "publish", func(ctx context.Context) error {
					published, err := p.deps.Publisher.Publish(ctx, asset)
					if err == nil {
						asset = published
					}
					return err
				})
				if err != nil {
					return false, err
				}
				if p.deps.Notifier != nil {
					if err := p.retry(ctx, "notify", func(ctx context.Context) error {
						return p.deps.Notifier.Notify(ctx, asset)
					}); err != nil {
						return false, err
					}
				}
				if err := writeMarker(marker, asset); err != nil {
					return false, err
				}
				logger.Info("asset published", "uri", asset.URI)
				return false, nil
			},
		})
	}
	return p.runUnits(ctx, config.StagePublish, units, sum)
}

// writeMarker records a published asset. Its presence makes later passes
// skip the unit.
func writeMarker(path string, asset domain.PublishedAsset) error {
	data, err := json.MarshalIndent(asset, "", "  ")
	if err != nil {
		return fmt.Errorf("encode marker: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create marker dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return os.Rename(tmp, path)
}
