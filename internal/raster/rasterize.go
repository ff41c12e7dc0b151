package raster

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

// DefaultPermanentWaterValue is the ESA WorldCover class for permanent
// water bodies.
const DefaultPermanentWaterValue = 80

// snapEpsilon absorbs float noise from the inverse geotransform so vertices
// on pixel edges stay on them.
const snapEpsilon = 1e-9

// Reprojector moves geometries between coordinate systems.
type Reprojector interface {
	Reproject(g orb.Geometry, from, to string) (orb.Geometry, error)
}

// Reference is the raster labels are produced on: its grid and the decoded
// permanent-water band, row-major.
type Reference struct {
	Grid           Grid
	PermanentWater []float64
}

// RasterizeInput is one observation's polygons plus the reference it is
// burned onto.
type RasterizeInput struct {
	Polygons            []domain.AnnotatedPolygon
	CRS                 string // CRS of Polygons; empty means the reference CRS
	Reference           Reference
	KeepStreams         bool
	Vocabulary          domain.Vocabulary
	PermanentWaterValue float64
	Reprojector         Reprojector
}

// RasterizeStats reports what was burned.
type RasterizeStats struct {
	Burned         int
	SkippedEmpty   int
	SkippedStreams int
	StreamTypos    int
	AreaOfInterest bool
	Counts         [domain.Hydrology + 1]int
}

// burnRank orders polygon categories for overlapping pixels: flood polygons
// beat hydrology polygons, which beat land polygons and the land default.
func burnRank(c domain.Category) int {
	switch c {
	case domain.Flood:
		return 3
	case domain.Hydrology:
		return 2
	case domain.Land:
		return 1
	default:
		return 0
	}
}

// Rasterize burns annotated polygons onto the reference grid.
//
// Pixels start as land. Each polygon writes its category to the pixels it
// covers (centre inside) or, when KeepStreams is set, every pixel it
// overlaps. Pixels outside the area of interest become invalid, then
// permanent water in the reference overrides every valid pixel.
func Rasterize(in RasterizeInput) (*Labeled, RasterizeStats, error) {
	var stats RasterizeStats
	grid := in.Reference.Grid
	if grid.Width <= 0 || grid.Height <= 0 {
		return nil, stats, domain.Invariant(fmt.Errorf("reference grid is %dx%d", grid.Width, grid.Height))
	}
	if in.Reference.PermanentWater != nil && len(in.Reference.PermanentWater) != grid.Len() {
		return nil, stats, fmt.Errorf("%w: permanent water band has %d pixels, grid %d", domain.ErrMissingBand, len(in.Reference.PermanentWater), grid.Len())
	}
	vocab := in.Vocabulary
	if vocab.Version == "" {
		vocab = domain.VocabularyV2
	}
	if err := vocab.Validate(in.Polygons); err != nil {
		return nil, stats, err
	}
	inv, err := grid.Transform.Invert()
	if err != nil {
		return nil, stats, fmt.Errorf("reference grid: %w", err)
	}

	var aoi, burn []domain.AnnotatedPolygon
	for _, p := range in.Polygons {
		if domain.LooksLikeStreamTypo(p.Source) {
			stats.StreamTypos++
		}
		switch {
		case p.IsAreaOfInterest():
			aoi = append(aoi, p)
		case !in.KeepStreams && p.IsStream():
			stats.SkippedStreams++
		case p.IsEmpty():
			stats.SkippedEmpty++
		default:
			burn = append(burn, p)
		}
	}

	toPixel := func(g orb.Geometry) (orb.Geometry, error) {
		if in.CRS != "" && grid.CRS != "" && in.CRS != grid.CRS {
			if in.Reprojector == nil {
				return nil, fmt.Errorf("polygons in %s need reprojection to %s", in.CRS, grid.CRS)
			}
			rg, rerr := in.Reprojector.Reproject(g, in.CRS, grid.CRS)
			if rerr != nil {
				return nil, fmt.Errorf("reproject: %w", rerr)
			}
			g = rg
		} else {
			g = orb.Clone(g)
		}
		return project.Geometry(g, func(p orb.Point) orb.Point {
			c, r := inv.Apply(p[0], p[1])
			return orb.Point{snap(c), snap(r)}
		}), nil
	}

	out := NewLabeled(grid, domain.Land)
	rank := make([]int8, grid.Len())
	for i := range rank {
		rank[i] = int8(burnRank(domain.Land))
	}
	for _, p := range burn {
		code, _ := vocab.Lookup(p.WClass)
		g, err := toPixel(p.Geometry)
		if err != nil {
			return nil, stats, err
		}
		r := int8(burnRank(code))
		cover(g, grid.Width, grid.Height, in.KeepStreams, func(idx int) {
			if r > rank[idx] {
				rank[idx] = r
				out.Data[idx] = code
			}
		})
		stats.Burned++
	}

	if len(aoi) > 0 {
		valid := make([]bool, grid.Len())
		usable := 0
		for _, p := range aoi {
			if p.IsEmpty() {
				continue
			}
			g, err := toPixel(p.Geometry)
			if err != nil {
				return nil, stats, err
			}
			cover(g, grid.Width, grid.Height, true, func(idx int) { valid[idx] = true })
			usable++
		}
		if usable == 0 {
			return nil, stats, domain.ErrEmptyAreaOfInterest
		}
		for i, ok := range valid {
			if !ok {
				out.Data[i] = domain.Invalid
			}
		}
		stats.AreaOfInterest = true
	}

	if pw := in.Reference.PermanentWater; pw != nil {
		water := in.PermanentWaterValue
		if water == 0 {
			water = DefaultPermanentWaterValue
		}
		for i, v := range pw {
			if v == water && out.Data[i] != domain.Invalid {
				out.Data[i] = domain.Hydrology
			}
		}
	}

	stats.Counts = out.Counts()
	return out, stats, nil
}

func snap(v float64) float64 {
	if r := math.Round(v); math.Abs(v-r) < snapEpsilon {
		return r
	}
	return v
}

// cover calls fn with the index of every pixel g occupies. g is in pixel
// coordinates. With touch set, polygons also claim every pixel whose
// interior an edge crosses; lines and points always use touch semantics.
func cover(g orb.Geometry, width, height int, touch bool, fn func(idx int)) {
	mark := func(col, row int) {
		if col >= 0 && col < width && row >= 0 && row < height {
			fn(row*width + col)
		}
	}
	switch g := g.(type) {
	case orb.Polygon:
		fillPolygon(g, width, height, mark)
		if touch {
			for _, ring := range g {
				traceLine(orb.LineString(ring), true, mark)
			}
		}
	case orb.MultiPolygon:
		for _, p := range g {
			cover(p, width, height, touch, fn)
		}
	case orb.Ring:
		cover(orb.Polygon{g}, width, height, touch, fn)
	case orb.LineString:
		traceLine(g, false, mark)
	case orb.MultiLineString:
		for _, ls := range g {
			traceLine(ls, false, mark)
		}
	case orb.Point:
		mark(int(math.Floor(g[0])), int(math.Floor(g[1])))
	case orb.MultiPoint:
		for _, p := range g {
			mark(int(math.Floor(p[0])), int(math.Floor(p[1])))
		}
	case orb.Collection:
		for _, sub := range g {
			cover(sub, width, height, touch, fn)
		}
	case orb.Bound:
		cover(g.ToPolygon(), width, height, touch, fn)
	}
}

// fillPolygon marks pixels whose centre lies inside the polygon under the
// even-odd rule, so holes are excluded. Centres on a left edge are inside,
// on a right edge outside.
func fillPolygon(p orb.Polygon, width, height int, mark func(col, row int)) {
	b := p.Bound()
	r0 := max(0, int(math.Floor(b.Min[1]-0.5)))
	r1 := min(height-1, int(math.Ceil(b.Max[1]-0.5)))
	xs := make([]float64, 0, 16)
	for row := r0; row <= r1; row++ {
		yc := float64(row) + 0.5
		xs = xs[:0]
		for _, ring := range p {
			n := len(ring)
			for i := 0; i < n; i++ {
				a, c := ring[i], ring[(i+1)%n]
				if a == c {
					continue
				}
				if (a[1] <= yc) != (c[1] <= yc) {
					xs = append(xs, a[0]+(yc-a[1])*(c[0]-a[0])/(c[1]-a[1]))
				}
			}
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			c0 := max(0, int(math.Ceil(xs[i]-0.5)))
			c1 := min(width, int(math.Ceil(xs[i+1]-0.5)))
			for col := c0; col < c1; col++ {
				mark(col, row)
			}
		}
	}
}

// traceLine marks every pixel whose interior a segment of ls passes through.
// Each segment is split at its crossings with pixel edges and the midpoint of
// each piece names the pixel. Polygon edges lying on a pixel edge overlap no
// pixel interior and are skipped when skipOnGrid is set.
func traceLine(ls orb.LineString, skipOnGrid bool, mark func(col, row int)) {
	if len(ls) == 1 {
		mark(int(math.Floor(ls[0][0])), int(math.Floor(ls[0][1])))
		return
	}
	ts := make([]float64, 0, 16)
	for i := 0; i+1 < len(ls); i++ {
		a, b := ls[i], ls[i+1]
		dx, dy := b[0]-a[0], b[1]-a[1]
		if skipOnGrid && ((dx == 0 && a[0] == math.Trunc(a[0])) || (dy == 0 && a[1] == math.Trunc(a[1]))) {
			continue
		}
		if dx == 0 && dy == 0 {
			mark(int(math.Floor(a[0])), int(math.Floor(a[1])))
			continue
		}
		ts = append(ts[:0], 0, 1)
		ts = appendCrossings(ts, a[0], dx)
		ts = appendCrossings(ts, a[1], dy)
		sort.Float64s(ts)
		for j := 0; j+1 < len(ts); j++ {
			if ts[j+1]-ts[j] <= 0 {
				continue
			}
			m := (ts[j] + ts[j+1]) / 2
			mark(int(math.Floor(a[0]+m*dx)), int(math.Floor(a[1]+m*dy)))
		}
	}
}

// appendCrossings adds the parameters in (0, 1) where v0 + t*d is an integer.
func appendCrossings(ts []float64, v0, d float64) []float64 {
	if d == 0 {
		return ts
	}
	v1 := v0 + d
	lo, hi := math.Min(v0, v1), math.Max(v0, v1)
	for k := math.Floor(lo) + 1; k < hi; k++ {
		ts = append(ts, (k-v0)/d)
	}
	return ts
}
