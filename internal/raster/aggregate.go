package raster

import (
	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

// Aggregate reconciles rasters of one area of interest and combines them
// into the maximum observed extent: a pixel is hydrology if any date marks
// it hydrology or higher, else flood if any marks it flood, else land if any
// marks it land. Pixels invalid on every date stay invalid.
func Aggregate(rasters []*Labeled) (*Labeled, error) {
	aligned, err := Reconcile(rasters)
	if err != nil {
		return nil, err
	}
	grid := aligned[0].Grid
	out := NewLabeled(grid, domain.Invalid)

	var land, flood, water bool
	for i := range out.Data {
		land, flood, water = false, false, false
		for _, r := range aligned {
			switch v := r.Data[i]; {
			case v == domain.Land:
				land = true
			case v == domain.Flood:
				flood = true
			case v > domain.Flood:
				water = true
			}
		}
		switch {
		case water:
			out.Data[i] = domain.Hydrology
		case flood:
			out.Data[i] = domain.Flood
		case land:
			out.Data[i] = domain.Land
		}
	}
	return out, nil
}
