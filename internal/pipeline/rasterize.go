package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/config"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/raster"
)

// rasterizeStage burns every flood map onto its reference raster.
func (p *Pipeline) rasterizeStage(ctx context.Context, sum *Summary) error {
	l, err := p.scan(config.StageRasterize, p.opts.Dirs.FloodMaps, sum)
	if err != nil {
		return err
	}
	refs, err := scanDir(p.opts.Dirs.StaticMerged)
	if err != nil {
		return err
	}
	merged := refs.ofKind(domain.ArtifactStaticImage)

	var units []unit
	for _, a := range l.ofKind(domain.ArtifactFloodMap) {
		key := a.Key
		logger := p.unitLogger(config.StageRasterize, key)
		out := filepath.Join(p.opts.Dirs.GroundTruth, domain.GroundTruthName(key))
		units = append(units, unit{
			key:    key.String(),
			logger: logger,
			run: func(ctx context.Context) (bool, error) {
				done, err := exists(out)
				if err != nil || done {
					return done, err
				}
				return false, p.rasterizeOne(key, merged, out, logger)
			},
		})
	}
	return p.runUnits(ctx, config.StageRasterize, units, sum)
}

func (p *Pipeline) rasterizeOne(key domain.ObservationKey, merged []located, out string, logger *slog.Logger) error {
	refPath, exact := referenceFor(key, merged)
	if refPath == "" {
		return fmt.Errorf("%w: no reference raster for %s", domain.ErrMissingInput, key)
	}
	if !exact {
		logger.Warn("no reference for this date, using another date of the same area", "reference", filepath.Base(refPath))
	}

	fm, err := p.deps.FloodMaps.FloodMap(key)
	if err != nil {
		return err
	}
	polygons, err := p.withMetadataAOI(key, fm.Polygons, logger)
	if err != nil {
		return err
	}
	ref, err := p.deps.Rasters.ReadReference(refPath, p.opts.PermanentWaterBand)
	if err != nil {
		return err
	}

	labeled, stats, err := raster.Rasterize(raster.RasterizeInput{
		Polygons:            polygons,
		CRS:                 fm.CRS,
		Reference:           ref,
		KeepStreams:         p.opts.KeepStreams,
		Vocabulary:          p.opts.Vocabulary,
		PermanentWaterValue: p.opts.PermanentWaterValue,
		Reprojector:         p.deps.Reprojector,
	})
	if err != nil {
		return err
	}
	if stats.StreamTypos > 0 {
		p.metrics.NonCanonicalStreamTags.Add(float64(stats.StreamTypos))
		logger.Warn("source tags look like a mistyped stream tag and were not treated as streams",
			"count", stats.StreamTypos, "want", domain.StreamSource)
	}
	if err := p.deps.Rasters.WriteLabeled(out, labeled); err != nil {
		return err
	}
	logger.Info("ground truth written",
		"burned", stats.Burned,
		"skipped_streams", stats.SkippedStreams,
		"skipped_empty", stats.SkippedEmpty,
		"invalid", stats.Counts[domain.Invalid],
		"land", stats.Counts[domain.Land],
		"flood", stats.Counts[domain.Flood],
		"hydrology", stats.Counts[domain.Hydrology],
	)
	return nil
}

// referenceFor returns the merged reference of the observation itself or,
// failing that, the earliest merged reference of the same area of interest.
func referenceFor(key domain.ObservationKey, merged []located) (path string, exact bool) {
	for _, m := range merged {
		if m.Tile == "" && m.Key == key {
			return m.Path, true
		}
	}
	for _, m := range merged {
		if m.Tile == "" && m.Key.UnitKey == key.UnitKey {
			return m.Path, false
		}
	}
	return "", false
}

// withMetadataAOI falls back to the metadata document's area of interest
// when the flood map carries no area_of_interest feature. The metadata
// polygon is read in the flood map's CRS.
func (p *Pipeline) withMetadataAOI(key domain.ObservationKey, polygons []domain.AnnotatedPolygon, logger *slog.Logger) ([]domain.AnnotatedPolygon, error) {
	for _, poly := range polygons {
		if poly.IsAreaOfInterest() {
			return polygons, nil
		}
	}
	md, err := p.deps.FloodMaps.Metadata(key)
	if errors.Is(err, domain.ErrMissingInput) {
		return polygons, nil
	}
	if err != nil {
		return nil, err
	}
	if md.AreaOfInterest == nil {
		return polygons, nil
	}
	logger.Info("flood map has no area of interest, using the metadata polygon")
	out := make([]domain.AnnotatedPolygon, 0, len(polygons)+1)
	out = append(out, polygons...)
	return append(out, domain.AnnotatedPolygon{
		Geometry: md.AreaOfInterest,
		WClass:   domain.AreaOfInterestClass,
		Source:   "metadata",
	}), nil
}
