package domain

import (
	"strings"

	"github.com/paulmach/orb"
)

// StreamSource is the source tag of hydrography line features (rivers,
// streams, coastlines). Lower-case L, not the digit one.
const StreamSource = "hydro_l"

// DefaultCRS is assumed for flood maps that do not declare a CRS.
const DefaultCRS = "EPSG:4326"

// AnnotatedPolygon is one flood-map feature.
type AnnotatedPolygon struct {
	Geometry orb.Geometry
	WClass   string
	Source   string
}

// IsAreaOfInterest reports whether the feature bounds the valid region.
func (p AnnotatedPolygon) IsAreaOfInterest() bool { return p.WClass == AreaOfInterestClass }

// IsStream reports whether the feature is tagged as a hydrography stream.
func (p AnnotatedPolygon) IsStream() bool { return p.Source == StreamSource }

// IsEmpty reports whether the feature has nothing to burn.
func (p AnnotatedPolygon) IsEmpty() bool {
	if p.Geometry == nil {
		return true
	}
	switch g := p.Geometry.(type) {
	case orb.Polygon:
		return len(g) == 0 || len(g[0]) < 3
	case orb.MultiPolygon:
		for _, poly := range g {
			if len(poly) > 0 && len(poly[0]) >= 3 {
				return false
			}
		}
		return true
	case orb.LineString:
		return len(g) == 0
	case orb.MultiLineString:
		for _, ls := range g {
			if len(ls) > 0 {
				return false
			}
		}
		return true
	case orb.Point:
		return false
	case orb.MultiPoint:
		return len(g) == 0
	case orb.Ring:
		return len(g) < 3
	case orb.Collection:
		for _, sub := range g {
			if !(AnnotatedPolygon{Geometry: sub}).IsEmpty() {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// LooksLikeStreamTypo reports a source tag spelled with the digit one
// ("hydro_1"). Such features are not treated as streams.
func LooksLikeStreamTypo(source string) bool {
	return source != StreamSource && strings.EqualFold(strings.TrimSpace(source), "hydro_1")
}

// FloodMap is the feature collection of one observation in its native CRS.
type FloodMap struct {
	Key      ObservationKey
	CRS      string
	Polygons []AnnotatedPolygon
}
