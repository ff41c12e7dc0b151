// Command genmock writes a small synthetic data tree for local runs of the
// etl and validate commands: flood maps with metadata, tiled reference
// rasters and the activation registry. It also writes the assets the
// publish stage is expected to emit, stamped with a fixed clock.
//
// Usage:
//
//	go run ./cmd/genmock -out source-data
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/adapter/registry"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

const (
	crs       = "EPSG:32736"
	crsURN    = "urn:ogc:def:crs:EPSG::32736"
	gridSize  = 64
	pixelSize = 10.0
	originX   = 500000.0
	originY   = 8300000.0
	waterCol  = 30 // permanent water strip, 4 pixels wide
)

// scenario is one synthetic observation.
type scenario struct {
	event     domain.EventID
	aoi       domain.AOIID
	imageAOI  domain.AOIID // AOI spelling on the exported image, if truncated
	date      string
	satellite time.Time
	tiles     int
	features  []*geojson.Feature
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "source-data", "root of the data tree to write")
	prefix := flag.String("prefix", "tropical-floods-ground-truth", "object prefix for expected assets")
	flag.Parse()

	// Set a fixed clock for reproducible published_at timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2023, time.April, 1, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	godal.RegisterAll()

	dirs := struct{ floodMaps, static, tables string }{
		floodMaps: filepath.Join(*out, "Copernicus_EMS_metadata"),
		static:    filepath.Join(*out, "static-images"),
		tables:    filepath.Join(*out, "Copernicus_EMS_table"),
	}
	for _, d := range []string{dirs.floodMaps, dirs.static, dirs.tables} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}

	activations := []domain.EventActivation{
		{
			Code: "EMSR692", Title: "Flood in Malawi", Country: "Malawi",
			ActivationDate: time.Date(2023, 3, 13, 0, 0, 0, 0, time.UTC),
			EventDate:      time.Date(2023, 3, 12, 0, 0, 0, 0, time.UTC),
		},
		{
			Code: "EMSR571", Title: "Tropical Cyclone Batsirai", Country: "Zimbabwe",
			ActivationDate: time.Date(2022, 2, 5, 0, 0, 0, 0, time.UTC),
			EventDate:      time.Date(2022, 2, 4, 0, 0, 0, 0, time.UTC),
		},
	}
	byCode := map[domain.EventID]domain.EventActivation{}
	for _, a := range activations {
		byCode[a.Code] = a
	}

	units := map[domain.UnitKey]bool{}
	for _, s := range scenarios() {
		date, err := domain.ParseObservationDate(s.date)
		if err != nil {
			return err
		}
		key := domain.ObservationKey{UnitKey: domain.UnitKey{Event: s.event, AOI: s.aoi}, Date: date}
		units[key.UnitKey] = true

		if err := writeFloodMap(filepath.Join(dirs.floodMaps, domain.FloodMapName(key)), s.features); err != nil {
			return fmt.Errorf("flood map %s: %w", key, err)
		}
		if err := writeMetadata(filepath.Join(dirs.floodMaps, domain.MetadataName(key)), s, byCode[s.event]); err != nil {
			return fmt.Errorf("metadata %s: %w", key, err)
		}

		imageKey := key
		if s.imageAOI != "" {
			imageKey.AOI = s.imageAOI
		}
		if err := writeReferenceTiles(dirs.static, imageKey, s.tiles); err != nil {
			return fmt.Errorf("reference %s: %w", key, err)
		}
		log.Printf("%s: %d features, %d tiles", key, len(s.features), s.tiles)
	}

	if err := registry.Write(filepath.Join(dirs.tables, "tropical_ems_event_date.csv"), activations); err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	assets := make([]domain.PublishedAsset, 0, len(units))
	for u := range units {
		assets = append(assets, domain.NewPublishedAsset(u, "", *prefix, byCode[u.Event].EventDate))
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ObjectName < assets[j].ObjectName })
	if err := writeJSON(filepath.Join(*out, "expected_assets.json"), assets); err != nil {
		return fmt.Errorf("expected assets: %w", err)
	}

	log.Printf("wrote %d observations across %d units to %s", len(scenarios()), len(units), *out)
	return nil
}

func scenarios() []scenario {
	river := geojson.NewFeature(orb.LineString{world(waterCol+2, 0), world(waterCol+2, gridSize)})
	river.Properties = geojson.Properties{"w_class": "BH140-River", "source": domain.StreamSource}

	return []scenario{
		{
			event: "EMSR692", aoi: "AOI01", date: "20230314",
			satellite: time.Date(2023, 3, 14, 7, 52, 0, 0, time.UTC), tiles: 2,
			features: []*geojson.Feature{
				feature(domain.AreaOfInterestClass, "area_of_interest", rect(2, 2, 62, 62)),
				feature("Flooded area", "observed_event", rect(10, 10, 26, 40)),
				feature("Riverine flood", "observed_event", rect(26, 30, 36, 44)),
				river,
			},
		},
		{
			event: "EMSR692", aoi: "AOI01", date: "20230320",
			satellite: time.Date(2023, 3, 20, 7, 52, 0, 0, time.UTC), tiles: 2,
			features: []*geojson.Feature{
				feature(domain.AreaOfInterestClass, "area_of_interest", rect(2, 2, 62, 62)),
				feature("Flooded area", "observed_event", rect(12, 20, 40, 50)),
				feature("Flood trace", "observed_event", rect(40, 20, 48, 28)),
				river,
			},
		},
		{
			event: "EMSR571", aoi: "03MURAMBINDASOUTHWEST", imageAOI: "03MURAMBINDASW", date: "20220205",
			satellite: time.Date(2022, 2, 5, 8, 10, 0, 0, time.UTC), tiles: 1,
			features: []*geojson.Feature{
				feature(domain.AreaOfInterestClass, "area_of_interest", rect(0, 0, 48, 48)),
				feature("Flooded area", "observed_event", rect(5, 5, 20, 20)),
				feature("BA030-Island", "hydro_a", rect(8, 8, 12, 12)),
			},
		},
	}
}

// world maps a pixel corner to projected coordinates.
func world(col, row int) orb.Point {
	return orb.Point{originX + float64(col)*pixelSize, originY - float64(row)*pixelSize}
}

func rect(c0, r0, c1, r1 int) orb.Polygon {
	return orb.Polygon{orb.Ring{world(c0, r0), world(c1, r0), world(c1, r1), world(c0, r1), world(c0, r0)}}
}

func feature(wClass, source string, g orb.Geometry) *geojson.Feature {
	f := geojson.NewFeature(g)
	f.Properties = geojson.Properties{"w_class": wClass, "source": source}
	return f
}

func writeFloodMap(path string, features []*geojson.Feature) error {
	fc := geojson.NewFeatureCollection()
	fc.Features = features
	fc.ExtraMembers = geojson.Properties{
		"crs": map[string]any{"type": "name", "properties": map[string]string{"name": crsURN}},
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

type metadataDoc struct {
	EventID        string            `json:"event_id"`
	SatelliteDate  string            `json:"satellite_date"`
	ActivationDate string            `json:"activation_date"`
	AreaOfInterest *geojson.Geometry `json:"area_of_interest_polygon,omitempty"`
}

func writeMetadata(path string, s scenario, a domain.EventActivation) error {
	doc := metadataDoc{
		EventID:        string(s.event),
		SatelliteDate:  s.satellite.Format(time.RFC3339),
		ActivationDate: a.ActivationDate.Format("2006-01-02"),
	}
	for _, f := range s.features {
		if f.Properties.MustString("w_class", "") == domain.AreaOfInterestClass {
			doc.AreaOfInterest = geojson.NewGeometry(f.Geometry)
		}
	}
	return writeJSON(path, doc)
}

// writeReferenceTiles splits the reference grid into vertical strips the
// way large exports arrive. Band 2 carries permanent water.
func writeReferenceTiles(dir string, key domain.ObservationKey, tiles int) error {
	width := gridSize / tiles
	for t := 0; t < tiles; t++ {
		name := domain.StaticImageName(key)
		if tiles > 1 {
			name = domain.StaticTileName(key, fmt.Sprintf("0000000000-%010d", t*width))
		}
		if err := writeTile(filepath.Join(dir, name), t*width, width); err != nil {
			return err
		}
	}
	return nil
}

func writeTile(path string, colOff, width int) error {
	ds, err := godal.Create(godal.GTiff, path, 3, godal.Float32, width, gridSize,
		godal.CreationOption("COMPRESS=LZW", "TILED=YES"))
	if err != nil {
		return err
	}
	origin := world(colOff, 0)
	if err := ds.SetGeoTransform([6]float64{origin[0], pixelSize, 0, origin[1], 0, -pixelSize}); err != nil {
		ds.Close()
		return err
	}
	sr, err := godal.NewSpatialRef(crs)
	if err != nil {
		ds.Close()
		return err
	}
	err = ds.SetSpatialRef(sr)
	sr.Close()
	if err != nil {
		ds.Close()
		return err
	}

	optical := make([]float32, width*gridSize)
	water := make([]float32, width*gridSize)
	for r := 0; r < gridSize; r++ {
		for c := 0; c < width; c++ {
			i := r*width + c
			optical[i] = float32((colOff+c)*4 + r)
			if col := colOff + c; col >= waterCol && col < waterCol+4 {
				water[i] = 80
			} else {
				water[i] = 10
			}
		}
	}
	bands := ds.Bands()
	for i, buf := range [][]float32{optical, water, make([]float32, width*gridSize)} {
		if err := bands[i].Write(0, 0, buf, width, gridSize); err != nil {
			ds.Close()
			return err
		}
	}
	return ds.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
