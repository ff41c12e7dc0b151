package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// ArtifactKind tells which pipeline artifact a file name denotes.
type ArtifactKind int

const (
	ArtifactUnknown ArtifactKind = iota
	ArtifactFloodMap
	ArtifactMetadata
	ArtifactStaticImage
	ArtifactGroundTruth
	ArtifactMergedGroundTruth
)

func (k ArtifactKind) String() string {
	switch k {
	case ArtifactFloodMap:
		return "floodmap"
	case ArtifactMetadata:
		return "metadata"
	case ArtifactStaticImage:
		return "static_images"
	case ArtifactGroundTruth:
		return "ground_truth"
	case ArtifactMergedGroundTruth:
		return "ground_truth_merged"
	default:
		return "unknown"
	}
}

const (
	floodMapSuffix    = "_floodmap.geojson"
	metadataSuffix    = "_metadata.json"
	groundTruthSuffix = "_ground_truth.tif"
	mergedSuffix      = "_ground_truth_merged.tif"
	staticMarker      = "_static_images"
)

// staticImageRe matches merged images and the tiles an export may be split
// into: "<key>_static_images.tif" or "<key>_static_images-<tile>.tif".
var staticImageRe = regexp.MustCompile(`^(.+)_static_images(?:-([0-9A-Za-z-]+))?\.tif$`)

// Artifact is a parsed artifact file name.
type Artifact struct {
	Kind ArtifactKind
	Key  ObservationKey // Date is zero for merged ground truth
	Tile string         // static image tile suffix, empty for merged images
}

// Unit returns the area-of-interest key of the artifact.
func (a Artifact) Unit() UnitKey { return a.Key.UnitKey }

// ParseArtifactName validates a base file name and extracts its typed keys.
func ParseArtifactName(name string) (Artifact, error) {
	switch {
	case strings.HasSuffix(name, mergedSuffix):
		unit, err := parseUnitPrefix(strings.TrimSuffix(name, mergedSuffix))
		if err != nil {
			return Artifact{}, fmt.Errorf("%s: %w", name, err)
		}
		return Artifact{Kind: ArtifactMergedGroundTruth, Key: ObservationKey{UnitKey: unit}}, nil
	case strings.HasSuffix(name, groundTruthSuffix):
		return parseObservationArtifact(name, ArtifactGroundTruth, strings.TrimSuffix(name, groundTruthSuffix), "")
	case strings.HasSuffix(name, floodMapSuffix):
		return parseObservationArtifact(name, ArtifactFloodMap, strings.TrimSuffix(name, floodMapSuffix), "")
	case strings.HasSuffix(name, metadataSuffix):
		return parseObservationArtifact(name, ArtifactMetadata, strings.TrimSuffix(name, metadataSuffix), "")
	}
	if m := staticImageRe.FindStringSubmatch(name); m != nil {
		return parseObservationArtifact(name, ArtifactStaticImage, m[1], m[2])
	}
	return Artifact{}, fmt.Errorf("%w: %w: %q has no known artifact suffix", ErrNotArtifact, ErrInvalidArtifactName, name)
}

func parseObservationArtifact(name string, kind ArtifactKind, prefix, tile string) (Artifact, error) {
	parts := strings.Split(prefix, "_")
	if len(parts) != 3 {
		return Artifact{}, fmt.Errorf("%w: %q: want <event>_<aoi>_<date>", ErrInvalidArtifactName, name)
	}
	unit, err := parseUnitPrefix(parts[0] + "_" + parts[1])
	if err != nil {
		return Artifact{}, fmt.Errorf("%s: %w", name, err)
	}
	date, err := ParseObservationDate(parts[2])
	if err != nil {
		return Artifact{}, fmt.Errorf("%s: %w", name, err)
	}
	return Artifact{Kind: kind, Key: ObservationKey{UnitKey: unit, Date: date}, Tile: tile}, nil
}

func parseUnitPrefix(prefix string) (UnitKey, error) {
	parts := strings.Split(prefix, "_")
	if len(parts) != 2 {
		return UnitKey{}, fmt.Errorf("%w: %q: want <event>_<aoi>", ErrInvalidArtifactName, prefix)
	}
	event, err := ParseEventID(parts[0])
	if err != nil {
		return UnitKey{}, err
	}
	aoi, err := ParseAOIID(parts[1])
	if err != nil {
		return UnitKey{}, err
	}
	return UnitKey{Event: event, AOI: aoi}, nil
}

// FloodMapName is the GeoJSON flood map of an observation.
func FloodMapName(k ObservationKey) string { return k.String() + floodMapSuffix }

// MetadataName is the metadata document of an observation.
func MetadataName(k ObservationKey) string { return k.String() + metadataSuffix }

// StaticImageName is the merged reference raster of an observation.
func StaticImageName(k ObservationKey) string { return k.String() + staticMarker + ".tif" }

// StaticTileName is one exported tile of an observation's reference raster.
func StaticTileName(k ObservationKey, tile string) string {
	return k.String() + staticMarker + "-" + tile + ".tif"
}

// GroundTruthName is the labeled raster of one observation.
func GroundTruthName(k ObservationKey) string { return k.String() + groundTruthSuffix }

// MergedGroundTruthName is the aggregated labeled raster of an area of
// interest. Its presence marks the unit as done.
func MergedGroundTruthName(k UnitKey) string { return k.String() + mergedSuffix }
