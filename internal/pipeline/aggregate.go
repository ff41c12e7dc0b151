package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/config"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/raster"
)

// aggregateStage merges the labeled rasters of every area of interest into
// one multi-temporal raster. An area is aggregated only once every flood map
// it has is labeled; the merged file marks the area done for later passes.
func (p *Pipeline) aggregateStage(ctx context.Context, sum *Summary) error {
	l, err := p.scan(config.StageAggregate, p.opts.Dirs.GroundTruth, sum)
	if err != nil {
		return err
	}
	// name failures were already reported by the rasterize stage
	maps, err := scanDir(p.opts.Dirs.FloodMaps)
	if err != nil {
		return err
	}
	observed := map[domain.UnitKey][]domain.ObservationKey{}
	for _, a := range maps.ofKind(domain.ArtifactFloodMap) {
		observed[a.Unit()] = append(observed[a.Unit()], a.Key)
	}
	labeled := map[domain.ObservationKey]bool{}
	for _, a := range l.ofKind(domain.ArtifactGroundTruth) {
		labeled[a.Key] = true
	}

	groups := map[domain.UnitKey][]string{}
	for _, a := range l.ofKind(domain.ArtifactGroundTruth) {
		groups[a.Unit()] = append(groups[a.Unit()], a.Path)
	}
	keys := make([]domain.UnitKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	units := make([]unit, 0, len(keys))
	for _, key := range keys {
		paths := groups[key]
		logger := p.unitLogger(config.StageAggregate, domain.ObservationKey{UnitKey: key})
		out := filepath.Join(p.opts.Dirs.GroundTruthMerged, domain.MergedGroundTruthName(key))
		units = append(units, unit{
			key:    key.String(),
			logger: logger,
			run: func(context.Context) (bool, error) {
				done, err := exists(out)
				if err != nil || done {
					return done, err
				}
				var unlabeled []string
				for _, k := range observed[key] {
					if !labeled[k] {
						unlabeled = append(unlabeled, k.Date.String())
					}
				}
				if len(unlabeled) > 0 {
					return false, fmt.Errorf("%w: no labeled raster for dates %s", domain.ErrMissingInput, strings.Join(unlabeled, ", "))
				}
				rasters := make([]*raster.Labeled, 0, len(paths))
				for _, path := range paths {
					r, err := p.deps.Rasters.ReadLabeled(path)
					if err != nil {
						return false, fmt.Errorf("read %s: %w", filepath.Base(path), err)
					}
					rasters = append(rasters, r)
				}
				merged, err := raster.Aggregate(rasters)
				if err != nil {
					return false, err
				}
				if err := p.deps.Rasters.WriteLabeled(out, merged); err != nil {
					return false, err
				}
				counts := merged.Counts()
				logger.Info("area aggregated",
					"observations", len(rasters),
					"width", merged.Grid.Width,
					"height", merged.Grid.Height,
					"flood", counts[domain.Flood],
					"hydrology", counts[domain.Hydrology],
				)
				return false, nil
			},
		})
	}
	return p.runUnits(ctx, config.StageAggregate, units, sum)
}
