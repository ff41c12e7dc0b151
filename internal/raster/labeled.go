package raster

import (
	"fmt"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

// Labeled is a single-band categorical raster stored row-major.
type Labeled struct {
	Grid Grid
	Data []domain.Category
}

// NewLabeled allocates a raster filled with fill.
func NewLabeled(g Grid, fill domain.Category) *Labeled {
	data := make([]domain.Category, g.Len())
	if fill != 0 {
		for i := range data {
			data[i] = fill
		}
	}
	return &Labeled{Grid: g, Data: data}
}

// At returns the category at (col, row).
func (l *Labeled) At(col, row int) domain.Category { return l.Data[row*l.Grid.Width+col] }

// Set writes the category at (col, row).
func (l *Labeled) Set(col, row int, c domain.Category) { l.Data[row*l.Grid.Width+col] = c }

// Crop copies a window into a new raster on the window's grid.
func (l *Labeled) Crop(w Window) (*Labeled, error) {
	if w.Empty() || w.ColOff < 0 || w.RowOff < 0 ||
		w.ColOff+w.Width > l.Grid.Width || w.RowOff+w.Height > l.Grid.Height {
		return nil, fmt.Errorf("crop window %+v outside %dx%d raster", w, l.Grid.Width, l.Grid.Height)
	}
	out := &Labeled{Grid: l.Grid.Sub(w), Data: make([]domain.Category, w.Width*w.Height)}
	for r := 0; r < w.Height; r++ {
		src := (w.RowOff+r)*l.Grid.Width + w.ColOff
		copy(out.Data[r*w.Width:(r+1)*w.Width], l.Data[src:src+w.Width])
	}
	return out, nil
}

// Counts tallies pixels per category. Index by category value.
func (l *Labeled) Counts() [domain.Hydrology + 1]int {
	var out [domain.Hydrology + 1]int
	for _, c := range l.Data {
		if c.Valid() {
			out[c]++
		}
	}
	return out
}

// Validate checks that the buffer matches the grid and holds only label values.
func (l *Labeled) Validate() error {
	if len(l.Data) != l.Grid.Len() {
		return domain.Invariant(fmt.Errorf("raster buffer has %d pixels, grid %dx%d", len(l.Data), l.Grid.Width, l.Grid.Height))
	}
	for i, c := range l.Data {
		if !c.Valid() {
			return fmt.Errorf("pixel (%d,%d) holds %d, want 0..3", i%l.Grid.Width, i/l.Grid.Width, uint8(c))
		}
	}
	return nil
}
