package gdal

import (
	"fmt"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// Reprojector moves orb geometries between coordinate systems through a WKB
// round trip into OGR. Spatial references are cached by their definition.
type Reprojector struct {
	mu   sync.Mutex
	refs map[string]*godal.SpatialRef
}

// NewReprojector registers the drivers and returns an empty cache.
func NewReprojector() *Reprojector {
	Register()
	return &Reprojector{refs: make(map[string]*godal.SpatialRef)}
}

func (r *Reprojector) ref(def string) (*godal.SpatialRef, error) {
	if sr, ok := r.refs[def]; ok {
		return sr, nil
	}
	sr, err := godal.NewSpatialRef(def)
	if err != nil {
		return nil, fmt.Errorf("spatial ref %q: %w", def, err)
	}
	r.refs[def] = sr
	return sr, nil
}

// Reproject converts g from one CRS to another. Definitions may be
// "EPSG:nnnn" codes or WKT. Equivalent references return g unchanged.
func (r *Reprojector) Reproject(g orb.Geometry, from, to string) (orb.Geometry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, err := r.ref(from)
	if err != nil {
		return nil, err
	}
	dst, err := r.ref(to)
	if err != nil {
		return nil, err
	}
	if src.IsSame(dst) {
		return orb.Clone(g), nil
	}

	raw, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode wkb: %w", err)
	}
	geom, err := godal.NewGeometryFromWKB(raw, src)
	if err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	defer geom.Close()
	if err := geom.Reproject(dst); err != nil {
		return nil, fmt.Errorf("reproject %s -> %s: %w", from, to, err)
	}
	out, err := geom.WKB()
	if err != nil {
		return nil, fmt.Errorf("export wkb: %w", err)
	}
	return wkb.Unmarshal(out)
}

// Close releases the cached spatial references.
func (r *Reprojector) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, sr := range r.refs {
		sr.Close()
		delete(r.refs, k)
	}
}
