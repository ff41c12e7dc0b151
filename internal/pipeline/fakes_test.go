package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/adapter/floodmap"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/observability"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/pipeline"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/raster"
)

const testCRS = "EPSG:32736"

// --- fakes ---

// fakeMosaicker writes the tile list as the mosaic and tracks concurrency.
type fakeMosaicker struct {
	mu       sync.Mutex
	calls    map[string][]string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (m *fakeMosaicker) Merge(_ context.Context, tiles []string, out string) error {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		seen := m.maxSeen.Load()
		if n <= seen || m.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(m.delay)

	m.mu.Lock()
	if m.calls == nil {
		m.calls = map[string][]string{}
	}
	m.calls[filepath.Base(out)] = tiles
	m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	return os.WriteFile(out, []byte(strings.Join(tiles, "\n")), 0o644)
}

// fakeRasters serves one reference for every path and stores labeled
// rasters as JSON files so existence checks see them.
type fakeRasters struct {
	reference raster.Reference
	panicOn   string
	mu        sync.Mutex
	refReads  []string
}

func (f *fakeRasters) ReadReference(path string, band int) (raster.Reference, error) {
	if band != 2 {
		return raster.Reference{}, fmt.Errorf("%w %d", domain.ErrMissingBand, band)
	}
	if _, err := os.Stat(path); err != nil {
		return raster.Reference{}, fmt.Errorf("%w: %s", domain.ErrMissingInput, path)
	}
	f.mu.Lock()
	f.refReads = append(f.refReads, filepath.Base(path))
	f.mu.Unlock()
	ref := f.reference
	ref.PermanentWater = append([]float64(nil), ref.PermanentWater...)
	return ref, nil
}

func (f *fakeRasters) ReadLabeled(path string) (*raster.Labeled, error) {
	if f.panicOn != "" && strings.Contains(path, f.panicOn) {
		panic("corrupt block in " + filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var l raster.Labeled
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (f *fakeRasters) WriteLabeled(path string, l *raster.Labeled) error {
	if err := l.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

type fakeRegistry map[domain.EventID]domain.EventActivation

func (r fakeRegistry) Lookup(code domain.EventID) (domain.EventActivation, bool) {
	a, ok := r[code]
	return a, ok
}

// fakePublisher fails the first failures calls with a transient error.
type fakePublisher struct {
	mu        sync.Mutex
	failures  int
	permanent error
	calls     int
	published []domain.PublishedAsset
}

func (p *fakePublisher) Publish(_ context.Context, asset domain.PublishedAsset) (domain.PublishedAsset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.permanent != nil {
		return asset, p.permanent
	}
	if p.calls <= p.failures {
		return asset, domain.Transient(errors.New("503 service unavailable"))
	}
	asset.Bucket = "floods"
	asset.URI = "gs://floods/" + asset.ObjectName
	p.published = append(p.published, asset)
	return asset, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []domain.PublishedAsset
}

func (n *fakeNotifier) Notify(_ context.Context, asset domain.PublishedAsset) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, asset)
	return nil
}

type countingProgress struct {
	mu       sync.Mutex
	totals   map[string]int
	advanced int
}

func (p *countingProgress) Start(stage string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.totals == nil {
		p.totals = map[string]int{}
	}
	p.totals[stage] = total
}

func (p *countingProgress) Advance() {
	p.mu.Lock()
	p.advanced++
	p.mu.Unlock()
}

func (p *countingProgress) Finish() {}

// --- fixture tree ---

type fixture struct {
	root      string
	dirs      pipeline.Dirs
	mosaicker *fakeMosaicker
	rasters   *fakeRasters
	publisher *fakePublisher
	notifier  *fakeNotifier
	registry  fakeRegistry
	progress  *countingProgress
	metrics   *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	grid := raster.Grid{Width: 4, Height: 4, Transform: raster.NorthUp(0, 4, 1, 1), CRS: testCRS}
	water := make([]float64, grid.Len())
	water[5] = 80 // col 1, row 1

	f := &fixture{
		root: root,
		dirs: pipeline.Dirs{
			FloodMaps:         filepath.Join(root, "Copernicus_EMS_metadata"),
			StaticImages:      filepath.Join(root, "static-images"),
			StaticMerged:      filepath.Join(root, "static-images-merged"),
			GroundTruth:       filepath.Join(root, "ground-truth"),
			GroundTruthMerged: filepath.Join(root, "ground-truth-merged"),
			Published:         filepath.Join(root, "ground-truth-published"),
			DatesCSV:          filepath.Join(root, "Copernicus_EMS_table", "static_images_dates.csv"),
		},
		mosaicker: &fakeMosaicker{},
		rasters:   &fakeRasters{reference: raster.Reference{Grid: grid, PermanentWater: water}},
		publisher: &fakePublisher{},
		notifier:  &fakeNotifier{},
		registry: fakeRegistry{
			"EMSR692": {
				Code:           "EMSR692",
				Country:        "Malawi",
				ActivationDate: time.Date(2023, 3, 13, 0, 0, 0, 0, time.UTC),
				EventDate:      time.Date(2023, 3, 12, 0, 0, 0, 0, time.UTC),
			},
		},
		progress: &countingProgress{},
		metrics:  observability.NewMetricsForTesting(),
	}
	for _, d := range []string{f.dirs.FloodMaps, f.dirs.StaticImages} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	return f
}

func (f *fixture) options() pipeline.Options {
	return pipeline.Options{
		Dirs:                f.dirs,
		Workers:             2,
		KeepStreams:         true,
		PermanentWaterBand:  2,
		PermanentWaterValue: 80,
		Vocabulary:          domain.VocabularyV2,
		AOIAliases:          map[string]string{"03MURAMBINDASW": "03MURAMBINDASOUTHWEST"},
		PublishPrefix:       "tropical-floods-ground-truth",
		Retry: pipeline.RetryPolicy{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		},
	}
}

func (f *fixture) pipeline(opts pipeline.Options) *pipeline.Pipeline {
	return pipeline.New(opts, pipeline.Deps{
		Rasters:   f.rasters,
		Mosaicker: f.mosaicker,
		FloodMaps: floodmap.NewReader(f.dirs.FloodMaps),
		Registry:  f.registry,
		Publisher: f.publisher,
		Notifier:  f.notifier,
		Progress:  f.progress,
	}, testLogger(), f.metrics)
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func obsKey(t *testing.T, event, aoi, date string) domain.ObservationKey {
	t.Helper()
	d, err := domain.ParseObservationDate(date)
	require.NoError(t, err)
	return domain.ObservationKey{UnitKey: domain.UnitKey{Event: domain.EventID(event), AOI: domain.AOIID(aoi)}, Date: d}
}

func (f *fixture) addTile(t *testing.T, key domain.ObservationKey, tile string) {
	t.Helper()
	name := domain.StaticImageName(key)
	if tile != "" {
		name = domain.StaticTileName(key, tile)
	}
	require.NoError(t, os.WriteFile(filepath.Join(f.dirs.StaticImages, name), []byte("tile"), 0o644))
}

type feature struct {
	wClass string
	source string
	coords string
}

func aoiFeature() feature {
	return feature{wClass: domain.AreaOfInterestClass, source: "area_of_interest", coords: `[[[0,0],[4,0],[4,4],[0,4],[0,0]]]`}
}

func rectCoords(x0, y0, x1, y1 int) string {
	return fmt.Sprintf(`[[[%d,%d],[%d,%d],[%d,%d],[%d,%d],[%d,%d]]]`, x0, y0, x1, y0, x1, y1, x0, y1, x0, y0)
}

func (f *fixture) addFloodMap(t *testing.T, key domain.ObservationKey, features ...feature) {
	t.Helper()
	parts := make([]string, 0, len(features))
	for _, ft := range features {
		parts = append(parts, fmt.Sprintf(
			`{"type":"Feature","properties":{"w_class":%q,"source":%q},"geometry":{"type":"Polygon","coordinates":%s}}`,
			ft.wClass, ft.source, ft.coords))
	}
	doc := `{"type":"FeatureCollection","crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:EPSG::32736"}},"features":[` +
		strings.Join(parts, ",") + `]}`
	require.NoError(t, os.WriteFile(filepath.Join(f.dirs.FloodMaps, domain.FloodMapName(key)), []byte(doc), 0o644))
}

func (f *fixture) addMetadata(t *testing.T, key domain.ObservationKey, satellite string) {
	t.Helper()
	doc := fmt.Sprintf(`{"event_id":"%s","satellite_date":%q,"activation_date":"2023-03-13"}`, key.Event, satellite)
	require.NoError(t, os.WriteFile(filepath.Join(f.dirs.FloodMaps, domain.MetadataName(key)), []byte(doc), 0o644))
}

func (f *fixture) addMetadataAOI(t *testing.T, key domain.ObservationKey, coords string) {
	t.Helper()
	doc := fmt.Sprintf(`{"event_id":"%s","satellite_date":"2023-03-12","activation_date":"2023-03-13","area_of_interest_polygon":{"type":"Polygon","coordinates":%s}}`,
		key.Event, coords)
	require.NoError(t, os.WriteFile(filepath.Join(f.dirs.FloodMaps, domain.MetadataName(key)), []byte(doc), 0o644))
}

func (f *fixture) readLabeled(t *testing.T, path string) *raster.Labeled {
	t.Helper()
	l, err := f.rasters.ReadLabeled(path)
	require.NoError(t, err)
	return l
}

// rows renders a raster as one string per row.
func rows(l *raster.Labeled) []string {
	out := make([]string, l.Grid.Height)
	for r := 0; r < l.Grid.Height; r++ {
		b := make([]byte, l.Grid.Width)
		for c := 0; c < l.Grid.Width; c++ {
			b[c] = '0' + byte(l.At(c, r))
		}
		out[r] = string(b)
	}
	return out
}
