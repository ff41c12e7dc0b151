package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArtifactName(t *testing.T) {
	day := time.Date(2023, 3, 12, 0, 0, 0, 0, time.UTC)
	unit := UnitKey{Event: "EMSR692", AOI: "AOI01"}

	tests := []struct {
		name string
		file string
		kind ArtifactKind
		date ObservationDate
		tile string
	}{
		{"flood map", "EMSR692_AOI01_20230312_floodmap.geojson", ArtifactFloodMap, ObservationDate{Day: day}, ""},
		{"metadata", "EMSR692_AOI01_20230312_metadata.json", ArtifactMetadata, ObservationDate{Day: day}, ""},
		{"tagged date", "EMSR692_AOI01_20230312-GRA_floodmap.geojson", ArtifactFloodMap, ObservationDate{Day: day, Tag: "GRA"}, ""},
		{"static tile", "EMSR692_AOI01_20230312_static_images-0000000000-0000000512.tif", ArtifactStaticImage, ObservationDate{Day: day}, "0000000000-0000000512"},
		{"merged static", "EMSR692_AOI01_20230312_static_images.tif", ArtifactStaticImage, ObservationDate{Day: day}, ""},
		{"ground truth", "EMSR692_AOI01_20230312_ground_truth.tif", ArtifactGroundTruth, ObservationDate{Day: day}, ""},
		{"merged ground truth", "EMSR692_AOI01_ground_truth_merged.tif", ArtifactMergedGroundTruth, ObservationDate{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseArtifactName(tt.file)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, a.Kind)
			assert.Equal(t, unit, a.Unit())
			assert.Equal(t, tt.date, a.Key.Date)
			assert.Equal(t, tt.tile, a.Tile)
		})
	}
}

func TestParseArtifactName_Invalid(t *testing.T) {
	for _, name := range []string{
		"README.md",
		"EMSR692_20230312_floodmap.geojson",
		"EMS692_AOI01_20230312_floodmap.geojson",
		"EMSR692_AOI01_2023031_floodmap.geojson",
		"EMSR692_AOI01_20231332_floodmap.geojson",
		"EMSR692_AOI_01_20230312_ground_truth.tif",
		"EMSR692_ground_truth_merged.tif",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseArtifactName(name)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidArtifactName)
			assert.Equal(t, KindSourceFormat, KindOf(err))
			assert.Equal(t, name == "README.md", errors.Is(err, ErrNotArtifact))
		})
	}
}

func TestArtifactNamesRoundTrip(t *testing.T) {
	date, err := ParseObservationDate("20220415-FEP")
	require.NoError(t, err)
	key := ObservationKey{UnitKey: UnitKey{Event: "EMSR571", AOI: "03MURAMBINDASOUTHWEST"}, Date: date}

	for _, name := range []string{
		FloodMapName(key),
		MetadataName(key),
		StaticImageName(key),
		StaticTileName(key, "0000000000-0000000000"),
		GroundTruthName(key),
	} {
		a, err := ParseArtifactName(name)
		require.NoError(t, err, name)
		assert.Equal(t, key, a.Key, name)
	}

	a, err := ParseArtifactName(MergedGroundTruthName(key.UnitKey))
	require.NoError(t, err)
	assert.Equal(t, key.UnitKey, a.Unit())
	assert.Equal(t, "EMSR571_03MURAMBINDASOUTHWEST_ground_truth_merged.tif", MergedGroundTruthName(key.UnitKey))
}

func TestObservationDateOrdering(t *testing.T) {
	a, _ := ParseObservationDate("20230312")
	b, _ := ParseObservationDate("20230312-GRA")
	c, _ := ParseObservationDate("20230313")

	assert.True(t, a.Before(b))
	assert.True(t, b.Before(c))
	assert.False(t, c.Before(a))
	assert.Equal(t, "20230312-GRA", b.String())
	assert.True(t, ObservationDate{}.IsZero())
}

func TestNewObservationDateTruncatesToDay(t *testing.T) {
	d := NewObservationDate(time.Date(2023, 3, 12, 23, 59, 0, 0, time.FixedZone("x", -3600)), "")
	assert.Equal(t, "20230313", d.String())
}
