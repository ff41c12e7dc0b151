// Package gdal reads and writes rasters and reprojects geometries with GDAL.
package gdal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/raster"
)

var registerOnce sync.Once

// Register loads the GDAL drivers. Safe to call more than once.
func Register() {
	registerOnce.Do(godal.RegisterAll)
}

// creationOptions match the mosaics produced upstream.
var creationOptions = []string{"COMPRESS=LZW", "BIGTIFF=YES", "PREDICTOR=2", "TILED=YES"}

// Store reads reference rasters and reads and writes labeled rasters.
type Store struct {
	logger *slog.Logger
}

// NewStore registers the drivers and returns a Store.
func NewStore(logger *slog.Logger) *Store {
	Register()
	return &Store{logger: logger}
}

// open logs GDAL warnings instead of failing on them.
func (s *Store) open(path string) (*godal.Dataset, error) {
	ds, err := godal.Open(path, godal.RasterOnly(), godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec <= godal.CE_Warning {
			s.logger.Debug("gdal warning", "path", path, "code", code, "msg", msg)
			return nil
		}
		return fmt.Errorf("gdal: %s", msg)
	}))
	if err != nil {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return nil, fmt.Errorf("%w: %s", domain.ErrMissingInput, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return ds, nil
}

func gridOf(ds *godal.Dataset) (raster.Grid, error) {
	st := ds.Structure()
	gt, err := ds.GeoTransform()
	if err != nil {
		return raster.Grid{}, fmt.Errorf("geotransform: %w", err)
	}
	return raster.Grid{
		Width:     st.SizeX,
		Height:    st.SizeY,
		Transform: raster.Affine(gt),
		CRS:       ds.Projection(),
	}, nil
}

// ReadGrid returns the pixel lattice of a raster without reading pixels.
func (s *Store) ReadGrid(path string) (raster.Grid, error) {
	ds, err := s.open(path)
	if err != nil {
		return raster.Grid{}, err
	}
	defer ds.Close()
	return gridOf(ds)
}

// ReadReference reads the grid of a static image and its permanent water
// band (1-based index).
func (s *Store) ReadReference(path string, band int) (raster.Reference, error) {
	ds, err := s.open(path)
	if err != nil {
		return raster.Reference{}, err
	}
	defer ds.Close()

	grid, err := gridOf(ds)
	if err != nil {
		return raster.Reference{}, fmt.Errorf("%s: %w", path, err)
	}
	bands := ds.Bands()
	if band < 1 || band > len(bands) {
		return raster.Reference{}, fmt.Errorf("%w %d: %s has %d bands", domain.ErrMissingBand, band, path, len(bands))
	}
	water := make([]float64, grid.Len())
	if err := bands[band-1].Read(0, 0, water, grid.Width, grid.Height); err != nil {
		return raster.Reference{}, fmt.Errorf("read band %d of %s: %w", band, path, err)
	}
	return raster.Reference{Grid: grid, PermanentWater: water}, nil
}

// ReadLabeled reads band 1 of a labeled raster.
func (s *Store) ReadLabeled(path string) (*raster.Labeled, error) {
	ds, err := s.open(path)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	grid, err := gridOf(ds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, fmt.Errorf("%w 1: %s has no bands", domain.ErrMissingBand, path)
	}
	buf := make([]byte, grid.Len())
	if err := bands[0].Read(0, 0, buf, grid.Width, grid.Height); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	out := &raster.Labeled{Grid: grid, Data: make([]domain.Category, len(buf))}
	for i, v := range buf {
		out.Data[i] = domain.Category(v)
	}
	return out, nil
}

// WriteLabeled writes a single-band Byte GeoTIFF under a temporary name and
// renames it into place. A partial file never carries the final name.
func (s *Store) WriteLabeled(path string, l *raster.Labeled) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp := tempName(path)
	if err := s.writeTIFF(tmp, l); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func (s *Store) writeTIFF(path string, l *raster.Labeled) error {
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Byte, l.Grid.Width, l.Grid.Height,
		godal.CreationOption("COMPRESS=LZW", "TILED=YES"))
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := ds.SetGeoTransform([6]float64(l.Grid.Transform)); err != nil {
		ds.Close()
		return fmt.Errorf("set geotransform: %w", err)
	}
	if l.Grid.CRS != "" {
		sr, err := godal.NewSpatialRef(l.Grid.CRS)
		if err != nil {
			ds.Close()
			return fmt.Errorf("spatial ref: %w", err)
		}
		err = ds.SetSpatialRef(sr)
		sr.Close()
		if err != nil {
			ds.Close()
			return fmt.Errorf("set projection: %w", err)
		}
	}
	buf := make([]byte, len(l.Data))
	for i, c := range l.Data {
		buf[i] = byte(c)
	}
	if err := ds.Bands()[0].Write(0, 0, buf, l.Grid.Width, l.Grid.Height); err != nil {
		ds.Close()
		return fmt.Errorf("write pixels: %w", err)
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// tempName keeps the .tif extension so GDAL picks the right driver.
func tempName(path string) string {
	dir, base := filepath.Split(path)
	return filepath.Join(dir, ".tmp-"+base)
}
