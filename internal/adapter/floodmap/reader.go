// Package floodmap reads the GeoJSON flood maps and metadata documents
// written by the vector acquisition step.
package floodmap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

// Reader loads flood-map artifacts from one directory.
type Reader struct {
	dir string
}

// NewReader returns a Reader rooted at dir.
func NewReader(dir string) *Reader {
	return &Reader{dir: dir}
}

// Dir is the directory the reader scans.
func (r *Reader) Dir() string { return r.dir }

// crsMember is the pre-RFC 7946 "crs" member GeoPandas still writes.
type crsMember struct {
	CRS *struct {
		Type       string `json:"type"`
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs"`
}

var urnEPSGRe = regexp.MustCompile(`^urn:ogc:def:crs:EPSG:[0-9.]*:(\d+)$`)

// normalizeCRS turns OGC URNs into "EPSG:nnnn". Unknown forms pass through
// for GDAL to interpret.
func normalizeCRS(name string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return domain.DefaultCRS
	case strings.HasSuffix(name, "CRS84"):
		return domain.DefaultCRS
	}
	if m := urnEPSGRe.FindStringSubmatch(name); m != nil {
		return "EPSG:" + m[1]
	}
	return name
}

// FloodMap reads the feature collection of one observation.
func (r *Reader) FloodMap(key domain.ObservationKey) (domain.FloodMap, error) {
	path := filepath.Join(r.dir, domain.FloodMapName(key))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.FloodMap{}, fmt.Errorf("%w: %s", domain.ErrMissingInput, path)
		}
		return domain.FloodMap{}, fmt.Errorf("read flood map: %w", err)
	}
	return ParseFloodMap(key, data)
}

// ParseFloodMap decodes a GeoJSON feature collection. Features must carry a
// string w_class; source is optional.
func ParseFloodMap(key domain.ObservationKey, data []byte) (domain.FloodMap, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return domain.FloodMap{}, fmt.Errorf("%w: flood map %s: %v", domain.ErrMalformedArtifact, key, err)
	}
	var cm crsMember
	if err := json.Unmarshal(data, &cm); err != nil {
		return domain.FloodMap{}, fmt.Errorf("flood map %s crs: %w", key, err)
	}
	crs := domain.DefaultCRS
	if cm.CRS != nil {
		crs = normalizeCRS(cm.CRS.Properties.Name)
	}

	fm := domain.FloodMap{Key: key, CRS: crs, Polygons: make([]domain.AnnotatedPolygon, 0, len(fc.Features))}
	for i, f := range fc.Features {
		wClass, ok := f.Properties["w_class"].(string)
		if !ok {
			return domain.FloodMap{}, fmt.Errorf("%w: flood map %s feature %d has no w_class", domain.ErrUnknownCategory, key, i)
		}
		fm.Polygons = append(fm.Polygons, domain.AnnotatedPolygon{
			Geometry: f.Geometry,
			WClass:   wClass,
			Source:   f.Properties.MustString("source", ""),
		})
	}
	return fm, nil
}

type metadataDoc struct {
	EventID        string            `json:"event_id"`
	SatelliteDate  string            `json:"satellite_date"`
	ActivationDate string            `json:"activation_date"`
	AreaOfInterest *geojson.Geometry `json:"area_of_interest_polygon"`
}

// Metadata reads the metadata document of one observation.
func (r *Reader) Metadata(key domain.ObservationKey) (domain.ObservationMetadata, error) {
	path := filepath.Join(r.dir, domain.MetadataName(key))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ObservationMetadata{}, fmt.Errorf("%w: %s", domain.ErrMissingInput, path)
		}
		return domain.ObservationMetadata{}, fmt.Errorf("read metadata: %w", err)
	}
	return ParseMetadata(key, data)
}

// ParseMetadata decodes a metadata document. Dates may be RFC 3339
// timestamps or plain YYYY-MM-DD days.
func ParseMetadata(key domain.ObservationKey, data []byte) (domain.ObservationMetadata, error) {
	var doc metadataDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.ObservationMetadata{}, fmt.Errorf("%w: metadata %s: %v", domain.ErrMalformedArtifact, key, err)
	}
	md := domain.ObservationMetadata{Key: key, EventID: doc.EventID}
	var err error
	if md.SatelliteDate, err = parseDate(doc.SatelliteDate); err != nil {
		return domain.ObservationMetadata{}, fmt.Errorf("%w: metadata %s satellite_date: %v", domain.ErrMalformedArtifact, key, err)
	}
	if md.ActivationDate, err = parseDate(doc.ActivationDate); err != nil {
		return domain.ObservationMetadata{}, fmt.Errorf("%w: metadata %s activation_date: %v", domain.ErrMalformedArtifact, key, err)
	}
	if doc.AreaOfInterest != nil {
		md.AreaOfInterest = doc.AreaOfInterest.Coordinates
	}
	return md, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
