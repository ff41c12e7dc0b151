// Package raster holds the categorical raster core: pixel grids, labeled
// rasters, polygon burning and multi-date reconciliation. It does no I/O;
// adapters translate files to and from these types.
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

const alignEpsilon = 1e-9

// Affine is a geotransform in GDAL order:
// x = a[0] + col*a[1] + row*a[2], y = a[3] + col*a[4] + row*a[5].
type Affine [6]float64

// NorthUp returns the usual transform with square-ish pixels and no rotation.
func NorthUp(originX, originY, pixelWidth, pixelHeight float64) Affine {
	return Affine{originX, pixelWidth, 0, originY, 0, -pixelHeight}
}

// Apply maps pixel coordinates to world coordinates.
func (a Affine) Apply(col, row float64) (x, y float64) {
	return a[0] + col*a[1] + row*a[2], a[3] + col*a[4] + row*a[5]
}

// Invert returns the world-to-pixel transform.
func (a Affine) Invert() (Affine, error) {
	det := a[1]*a[5] - a[2]*a[4]
	if det == 0 {
		return Affine{}, errors.New("degenerate geotransform")
	}
	return Affine{
		(-a[5]*a[0] + a[2]*a[3]) / det,
		a[5] / det,
		-a[2] / det,
		(a[4]*a[0] - a[1]*a[3]) / det,
		-a[4] / det,
		a[1] / det,
	}, nil
}

// Shift moves the origin to pixel (col, row).
func (a Affine) Shift(col, row int) Affine {
	x, y := a.Apply(float64(col), float64(row))
	return Affine{x, a[1], a[2], y, a[4], a[5]}
}

func (a Affine) approxEqual(b Affine) bool {
	for i := range a {
		tol := alignEpsilon * math.Max(1, math.Max(math.Abs(a[i]), math.Abs(b[i])))
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

// Grid is a pixel lattice: shape, geotransform and coordinate system.
type Grid struct {
	Width     int
	Height    int
	Transform Affine
	CRS       string
}

// Len is the number of pixels.
func (g Grid) Len() int { return g.Width * g.Height }

// Bounds is the world-space envelope of the grid.
func (g Grid) Bounds() orb.Bound {
	w, h := float64(g.Width), float64(g.Height)
	b := orb.Bound{Min: orb.Point{math.Inf(1), math.Inf(1)}, Max: orb.Point{math.Inf(-1), math.Inf(-1)}}
	for _, c := range [4][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}} {
		x, y := g.Transform.Apply(c[0], c[1])
		b = b.Extend(orb.Point{x, y})
	}
	return b
}

// Aligned reports whether two grids describe the same lattice.
func (g Grid) Aligned(o Grid) bool {
	return g.Width == o.Width && g.Height == o.Height && g.CRS == o.CRS && g.Transform.approxEqual(o.Transform)
}

// Window converts a world-space bound to a pixel window of this grid,
// clamped to the grid. Offsets and lengths are rounded to whole pixels.
func (g Grid) Window(b orb.Bound) (Window, error) {
	inv, err := g.Transform.Invert()
	if err != nil {
		return Window{}, err
	}
	minC, minR := math.Inf(1), math.Inf(1)
	maxC, maxR := math.Inf(-1), math.Inf(-1)
	for _, p := range [4]orb.Point{b.Min, b.Max, {b.Min[0], b.Max[1]}, {b.Max[0], b.Min[1]}} {
		c, r := inv.Apply(p[0], p[1])
		minC, maxC = math.Min(minC, c), math.Max(maxC, c)
		minR, maxR = math.Min(minR, r), math.Max(maxR, r)
	}

	w := Window{
		ColOff: int(math.Round(minC)),
		RowOff: int(math.Round(minR)),
		Width:  int(math.Round(maxC - minC)),
		Height: int(math.Round(maxR - minR)),
	}
	w = w.clamp(g.Width, g.Height)
	if w.Empty() {
		return Window{}, fmt.Errorf("%w: bound %v outside %dx%d grid", domain.ErrNoOverlap, b, g.Width, g.Height)
	}
	return w, nil
}

// Sub returns the grid of a window of g.
func (g Grid) Sub(w Window) Grid {
	return Grid{
		Width:     w.Width,
		Height:    w.Height,
		Transform: g.Transform.Shift(w.ColOff, w.RowOff),
		CRS:       g.CRS,
	}
}

// Window is a rectangular pixel region.
type Window struct {
	ColOff int
	RowOff int
	Width  int
	Height int
}

// Empty reports whether the window covers no pixel.
func (w Window) Empty() bool { return w.Width <= 0 || w.Height <= 0 }

func (w Window) clamp(width, height int) Window {
	c0, r0 := max(w.ColOff, 0), max(w.RowOff, 0)
	c1, r1 := min(w.ColOff+w.Width, width), min(w.RowOff+w.Height, height)
	return Window{ColOff: c0, RowOff: r0, Width: c1 - c0, Height: r1 - r0}
}

// intersect returns the overlap of two bounds and whether it has positive area.
func intersect(a, b orb.Bound) (orb.Bound, bool) {
	out := orb.Bound{
		Min: orb.Point{math.Max(a.Min[0], b.Min[0]), math.Max(a.Min[1], b.Min[1])},
		Max: orb.Point{math.Min(a.Max[0], b.Max[0]), math.Min(a.Max[1], b.Max[1])},
	}
	return out, out.Min[0] < out.Max[0] && out.Min[1] < out.Max[1]
}

func boundArea(b orb.Bound) float64 {
	return (b.Max[0] - b.Min[0]) * (b.Max[1] - b.Min[1])
}
