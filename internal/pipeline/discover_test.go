package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/config"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

func TestScanDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"EMSR692_AOI01_20230316_static_images.tif",
		"EMSR692_AOI01_20230312_static_images-0000000000-0000000002.tif",
		"EMSR692_AOI01_20230312_static_images-0000000000-0000000000.tif",
		".tmp-EMSR692_AOI01_20230312_static_images.tif",
		"notes.txt",
		"EMSR69_AOI01_20230312_static_images.tif",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "EMSR692_AOI01_20230301_static_images.tif"), 0o755))

	l, err := scanDir(dir)
	require.NoError(t, err)
	assert.False(t, l.missing)
	assert.Len(t, l.invalid, 1)
	assert.Contains(t, l.invalid, "EMSR69_AOI01_20230312_static_images.tif")

	got := l.ofKind(domain.ArtifactStaticImage)
	require.Len(t, got, 3)
	assert.Equal(t, "0000000000-0000000000", got[0].Tile)
	assert.Equal(t, "0000000000-0000000002", got[1].Tile)
	assert.Equal(t, "", got[2].Tile)
	assert.Equal(t, "20230316", got[2].Key.Date.String())
}

func TestScanDir_Missing(t *testing.T) {
	l, err := scanDir(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.True(t, l.missing)
	assert.Empty(t, l.artifacts)
}

func TestReferenceFor(t *testing.T) {
	key := func(date string) domain.ObservationKey {
		d, err := domain.ParseObservationDate(date)
		require.NoError(t, err)
		return domain.ObservationKey{UnitKey: domain.UnitKey{Event: "EMSR692", AOI: "AOI01"}, Date: d}
	}
	other := key("20230301")
	other.AOI = "AOI02"
	merged := []located{
		{Artifact: domain.Artifact{Kind: domain.ArtifactStaticImage, Key: other}, Path: "other"},
		{Artifact: domain.Artifact{Kind: domain.ArtifactStaticImage, Key: key("20230305"), Tile: "0-0"}, Path: "tile"},
		{Artifact: domain.Artifact{Kind: domain.ArtifactStaticImage, Key: key("20230310")}, Path: "early"},
		{Artifact: domain.Artifact{Kind: domain.ArtifactStaticImage, Key: key("20230312")}, Path: "exact"},
	}

	path, exact := referenceFor(key("20230312"), merged)
	assert.Equal(t, "exact", path)
	assert.True(t, exact)

	path, exact = referenceFor(key("20230320"), merged)
	assert.Equal(t, "early", path)
	assert.False(t, exact)

	path, _ = referenceFor(domain.ObservationKey{UnitKey: domain.UnitKey{Event: "EMSR700", AOI: "AOI01"}}, merged)
	assert.Empty(t, path)
}

func TestOptionsWithDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, 1, o.Workers)
	assert.Equal(t, 2, o.PermanentWaterBand)
	assert.Equal(t, "v2", o.Vocabulary.Version)
	assert.Equal(t, 1, o.Retry.MaxAttempts)
	assert.Len(t, o.Stages, 4)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		FloodMapDir:       "maps",
		Workers:           4,
		VocabularyVersion: "v2",
		RetryMaxAttempts:  5,
		Stages:            []string{config.StageRasterize},
	}
	o, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "maps", o.Dirs.FloodMaps)
	assert.Equal(t, 4, o.Workers)
	assert.Equal(t, 5, o.Retry.MaxAttempts)

	cfg.VocabularyVersion = "v1"
	_, err = OptionsFromConfig(cfg)
	assert.ErrorContains(t, err, "VOCABULARY_VERSION")
}
