package gdal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/airbusgeo/godal"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

// Mosaicker merges the tiles of a split static image export into one
// GeoTIFF.
type Mosaicker struct {
	logger *slog.Logger
}

// NewMosaicker registers the drivers and returns a Mosaicker.
func NewMosaicker(logger *slog.Logger) *Mosaicker {
	Register()
	return &Mosaicker{logger: logger}
}

// Merge writes the mosaic of tiles to out. Tiles are ordered by name so the
// later tile wins where exports overlap. A single tile is rewritten with the
// same creation options rather than copied byte for byte.
func (m *Mosaicker) Merge(ctx context.Context, tiles []string, out string) error {
	if len(tiles) == 0 {
		return domain.ErrEmptyMosaic
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tiles = append([]string(nil), tiles...)
	sort.Strings(tiles)

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp := tempName(out)
	defer os.Remove(tmp)

	src, cleanup, err := m.source(tiles, tmp)
	if err != nil {
		return err
	}
	defer cleanup()

	dst, err := src.Translate(tmp, nil, godal.GTiff, godal.CreationOption(creationOptions...))
	if err != nil {
		return fmt.Errorf("translate mosaic: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close mosaic: %w", err)
	}
	if err := os.Rename(tmp, out); err != nil {
		return fmt.Errorf("rename mosaic: %w", err)
	}
	m.logger.Debug("mosaic written", "tiles", len(tiles), "path", out)
	return nil
}

// source opens the single tile or a VRT over all tiles.
func (m *Mosaicker) source(tiles []string, tmp string) (*godal.Dataset, func(), error) {
	for _, t := range tiles {
		if _, err := os.Stat(t); err != nil {
			return nil, nil, fmt.Errorf("%w: tile %s", domain.ErrMissingInput, t)
		}
	}
	if len(tiles) == 1 {
		ds, err := godal.Open(tiles[0], godal.RasterOnly())
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", tiles[0], err)
		}
		return ds, func() { ds.Close() }, nil
	}
	vrt := tmp + ".vrt"
	ds, err := godal.BuildVRT(vrt, tiles, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build vrt: %w", err)
	}
	return ds, func() {
		ds.Close()
		os.Remove(vrt)
	}, nil
}
