package raster

import (
	"fmt"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

// Reconcile crops rasters of one area of interest onto a common grid.
//
// The shared extent is the intersection of the smallest-area and
// largest-area rasters, snapped to whole pixels of the largest one. Every
// raster is then cropped to that extent in its own pixel coordinates. All
// crops take the grid of the largest raster's crop. A raster that does not
// cover the shared extent fails the whole set.
func Reconcile(rasters []*Labeled) ([]*Labeled, error) {
	if len(rasters) == 0 {
		return nil, domain.ErrNoRasters
	}
	for i, r := range rasters {
		if r == nil {
			return nil, domain.Invariant(fmt.Errorf("raster %d is nil", i))
		}
		if len(r.Data) != r.Grid.Len() {
			return nil, domain.Invariant(fmt.Errorf("raster %d buffer has %d pixels, grid %dx%d", i, len(r.Data), r.Grid.Width, r.Grid.Height))
		}
		if r.Grid.CRS != rasters[0].Grid.CRS {
			return nil, fmt.Errorf("%w: raster %d", domain.ErrCRSMismatch, i)
		}
	}

	smallest, largest := 0, 0
	for i, r := range rasters {
		a := boundArea(r.Grid.Bounds())
		if a < boundArea(rasters[smallest].Grid.Bounds()) {
			smallest = i
		}
		if a > boundArea(rasters[largest].Grid.Bounds()) {
			largest = i
		}
	}

	shared, ok := intersect(rasters[smallest].Grid.Bounds(), rasters[largest].Grid.Bounds())
	if !ok {
		return nil, fmt.Errorf("%w: smallest raster %d and largest raster %d", domain.ErrNoOverlap, smallest, largest)
	}
	win, err := rasters[largest].Grid.Window(shared)
	if err != nil {
		return nil, fmt.Errorf("largest raster %d: %w", largest, err)
	}
	target := rasters[largest].Grid.Sub(win)
	snapped := target.Bounds()

	out := make([]*Labeled, len(rasters))
	for i, r := range rasters {
		w, err := r.Grid.Window(snapped)
		if err != nil {
			return nil, fmt.Errorf("raster %d: %w", i, err)
		}
		if w.Width != target.Width || w.Height != target.Height {
			return nil, fmt.Errorf("%w: raster %d crops to %dx%d, want %dx%d",
				domain.ErrShapeMismatch, i, w.Width, w.Height, target.Width, target.Height)
		}
		c, err := r.Crop(w)
		if err != nil {
			return nil, domain.Invariant(fmt.Errorf("raster %d: %w", i, err))
		}
		c.Grid = target
		out[i] = c
	}
	return out, nil
}
