package pipeline

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/adapter/registry"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/config"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

// mergeStage mosaics the exported tiles of every observation into one
// reference raster, then rewrites the dates table.
func (p *Pipeline) mergeStage(ctx context.Context, sum *Summary) error {
	l, err := p.scan(config.StageMerge, p.opts.Dirs.StaticImages, sum)
	if err != nil {
		return err
	}

	groups := map[domain.ObservationKey][]string{}
	for _, a := range l.ofKind(domain.ArtifactStaticImage) {
		key := p.aliasAOI(a.Key)
		groups[key] = append(groups[key], a.Path)
	}
	keys := make([]domain.ObservationKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })

	units := make([]unit, 0, len(keys))
	for _, key := range keys {
		tiles := groups[key]
		out := filepath.Join(p.opts.Dirs.StaticMerged, domain.StaticImageName(key))
		logger := p.unitLogger(config.StageMerge, key)
		units = append(units, unit{
			key:    key.String(),
			logger: logger,
			run: func(ctx context.Context) (bool, error) {
				done, err := exists(out)
				if err != nil || done {
					return done, err
				}
				if err := p.deps.Mosaicker.Merge(ctx, tiles, out); err != nil {
					return false, err
				}
				logger.Info("reference merged", "tiles", len(tiles), "output", out)
				return false, nil
			},
		})
	}
	if err := p.runUnits(ctx, config.StageMerge, units, sum); err != nil {
		return err
	}

	if p.opts.Dirs.DatesCSV == "" {
		return nil
	}
	if err := p.writeDates(keys); err != nil {
		sum.add(failed(config.StageMerge, filepath.Base(p.opts.Dirs.DatesCSV), err))
		p.logger.Warn("dates table not written", "path", p.opts.Dirs.DatesCSV, "error", err)
	}
	return nil
}

// writeDates joins every merged observation with its activation and its
// satellite acquisition time.
func (p *Pipeline) writeDates(keys []domain.ObservationKey) error {
	rows := make([]registry.DatesRow, 0, len(keys))
	for _, key := range keys {
		var act domain.EventActivation
		if p.deps.Registry != nil {
			act, _ = p.deps.Registry.Lookup(key.Event)
		}
		satellite := key.Date.Day
		if p.deps.FloodMaps != nil {
			md, err := p.deps.FloodMaps.Metadata(key)
			if err != nil {
				p.logger.Debug("no metadata for dates table", "key", key.String(), "error", err)
			} else {
				if !md.SatelliteDate.IsZero() {
					satellite = md.SatelliteDate
				}
				if act.ActivationDate.IsZero() {
					act.ActivationDate = md.ActivationDate
				}
			}
		}
		rows = append(rows, registry.NewDatesRow(key, act, satellite))
	}
	if err := registry.WriteDates(p.opts.Dirs.DatesCSV, rows); err != nil {
		return err
	}
	p.logger.Info("dates table written", "path", p.opts.Dirs.DatesCSV, "rows", len(rows))
	return nil
}
