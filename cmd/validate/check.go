package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/adapter/registry"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/raster"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type treeDirs struct {
	floodMaps    string
	staticMerged string
	groundTruth  string
	merged       string
}

type entry struct {
	domain.Artifact
	path string
}

// tree is the parsed listing of every stage directory.
type tree struct {
	floodMaps    []entry
	metadata     map[domain.ObservationKey]bool
	staticMerged []entry
	groundTruth  []entry
	merged       []entry
	badNames     []string
}

func scanTree(dirs treeDirs) (*tree, error) {
	t := &tree{metadata: map[domain.ObservationKey]bool{}}
	scans := []struct {
		dir  string
		want map[domain.ArtifactKind]*[]entry
	}{
		{dirs.floodMaps, map[domain.ArtifactKind]*[]entry{domain.ArtifactFloodMap: &t.floodMaps, domain.ArtifactMetadata: nil}},
		{dirs.staticMerged, map[domain.ArtifactKind]*[]entry{domain.ArtifactStaticImage: &t.staticMerged}},
		{dirs.groundTruth, map[domain.ArtifactKind]*[]entry{domain.ArtifactGroundTruth: &t.groundTruth}},
		{dirs.merged, map[domain.ArtifactKind]*[]entry{domain.ArtifactMergedGroundTruth: &t.merged}},
	}
	for _, s := range scans {
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || strings.HasPrefix(name, ".") {
				continue
			}
			a, err := domain.ParseArtifactName(name)
			if errors.Is(err, domain.ErrNotArtifact) {
				continue
			}
			if err != nil {
				t.badNames = append(t.badNames, fmt.Sprintf("%s: %v", filepath.Join(s.dir, name), err))
				continue
			}
			dst, ok := s.want[a.Kind]
			switch {
			case !ok:
				t.badNames = append(t.badNames, fmt.Sprintf("%s: %s artifact in wrong directory", filepath.Join(s.dir, name), a.Kind))
			case a.Kind == domain.ArtifactMetadata:
				t.metadata[a.Key] = true
			case a.Kind == domain.ArtifactStaticImage && a.Tile != "":
				t.badNames = append(t.badNames, fmt.Sprintf("%s: unmerged tile in merged directory", filepath.Join(s.dir, name)))
			default:
				*dst = append(*dst, entry{Artifact: a, path: filepath.Join(s.dir, name)})
			}
		}
	}
	return t, nil
}

type labeledReader interface {
	ReadLabeled(path string) (*raster.Labeled, error)
}

type activationLookup interface {
	Lookup(code domain.EventID) (domain.EventActivation, bool)
}

type checker struct {
	tree     *tree
	rasters  labeledReader
	registry activationLookup
	dates    []registry.DatesRow
	cache    map[string]*raster.Labeled
}

func (c *checker) read(path string) (*raster.Labeled, error) {
	if l, ok := c.cache[path]; ok {
		return l, nil
	}
	l, err := c.rasters.ReadLabeled(path)
	if err != nil {
		return nil, err
	}
	if c.cache == nil {
		c.cache = map[string]*raster.Labeled{}
	}
	c.cache[path] = l
	return l, nil
}

// ── Phase 1: Artifact Names ──

func (c *checker) validateNames() *phase {
	p := &phase{name: "Phase 1: Artifact Names"}
	for _, bad := range c.tree.badNames {
		p.errorf("%s", bad)
	}
	return p
}

// ── Phase 2: Coverage ──

func (c *checker) validateCoverage() *phase {
	p := &phase{name: "Phase 2: Stage Coverage"}

	groundTruth := map[domain.ObservationKey]bool{}
	units := map[domain.UnitKey]bool{}
	for _, e := range c.tree.groundTruth {
		groundTruth[e.Key] = true
		units[e.Unit()] = true
	}
	floodMaps := map[domain.ObservationKey]bool{}
	for _, e := range c.tree.floodMaps {
		floodMaps[e.Key] = true
		if !c.tree.metadata[e.Key] {
			p.errorf("%s: flood map has no metadata document", e.Key)
		}
		if !groundTruth[e.Key] {
			p.errorf("%s: flood map was never rasterized", e.Key)
		}
	}
	for _, e := range c.tree.groundTruth {
		if !floodMaps[e.Key] {
			p.errorf("%s: ground truth has no flood map", e.Key)
		}
	}
	merged := map[domain.UnitKey]bool{}
	for _, e := range c.tree.merged {
		merged[e.Unit()] = true
		if !units[e.Unit()] {
			p.errorf("%s: merged ground truth has no per-date rasters", e.Unit())
		}
	}
	for _, u := range sortedUnits(units) {
		if !merged[u] {
			p.errorf("%s: no merged ground truth", u)
		}
	}
	return p
}

// ── Phase 3: Label Values ──

func (c *checker) validateLabels() *phase {
	p := &phase{name: "Phase 3: Label Values (0..3)"}
	for _, set := range [][]entry{c.tree.groundTruth, c.tree.merged} {
		for _, e := range set {
			l, err := c.read(e.path)
			if err != nil {
				p.errorf("%s: %v", filepath.Base(e.path), err)
				continue
			}
			if err := l.Validate(); err != nil {
				p.errorf("%s: %v", filepath.Base(e.path), err)
			}
		}
	}
	return p
}

// ── Phase 4: Aggregates ──

var gridOpts = cmp.Options{cmpopts.EquateApprox(0, 1e-9)}

func (c *checker) validateAggregates() *phase {
	p := &phase{name: "Phase 4: Aggregate Consistency"}
	byUnit := map[domain.UnitKey][]string{}
	for _, e := range c.tree.groundTruth {
		byUnit[e.Unit()] = append(byUnit[e.Unit()], e.path)
	}
	for _, e := range c.tree.merged {
		unit := e.Unit()
		paths := byUnit[unit]
		if len(paths) == 0 {
			continue
		}
		inputs := make([]*raster.Labeled, 0, len(paths))
		for _, path := range paths {
			l, err := c.read(path)
			if err != nil {
				p.errorf("%s: %v", filepath.Base(path), err)
				inputs = nil
				break
			}
			inputs = append(inputs, l)
		}
		if inputs == nil {
			continue
		}
		want, err := raster.Aggregate(inputs)
		if err != nil {
			p.errorf("%s: recompute aggregate: %v", unit, err)
			continue
		}
		got, err := c.read(e.path)
		if err != nil {
			p.errorf("%s: %v", filepath.Base(e.path), err)
			continue
		}
		if diff := cmp.Diff(want.Grid, got.Grid, gridOpts); diff != "" {
			p.errorf("%s: merged grid differs from reconciled grid (-want +got):\n%s", unit, diff)
			continue
		}
		if n := countDiffs(want.Data, got.Data); n > 0 {
			p.errorf("%s: %d pixels differ from the recomputed aggregate", unit, n)
		}
	}
	return p
}

func countDiffs(a, b []domain.Category) int {
	if len(a) != len(b) {
		return max(len(a), len(b))
	}
	n := 0
	for i := range a {
		if a[i] != b[i] {
			n++
		}
	}
	return n
}

// ── Phase 5: Registry ──

func (c *checker) validateRegistry() *phase {
	p := &phase{name: "Phase 5: Registry Coverage"}

	inventory := map[domain.EventID]*domain.EventActivation{}
	for _, e := range c.tree.floodMaps {
		a, ok := inventory[e.Key.Event]
		if !ok {
			a = &domain.EventActivation{Code: e.Key.Event}
			inventory[e.Key.Event] = a
		}
		a.AddObservation(e.Key.AOI, e.Key.Date)
	}
	events := make([]domain.EventID, 0, len(inventory))
	for id := range inventory {
		events = append(events, id)
	}
	sort.Slice(events, func(i, j int) bool { return events[i] < events[j] })
	for _, id := range events {
		if _, ok := c.registry.Lookup(id); !ok {
			a := inventory[id]
			p.errorf("%s: not in activation registry (%d areas of interest)", id, len(a.AOIs))
		}
	}

	if c.dates != nil {
		listed := map[string]bool{}
		for _, row := range c.dates {
			listed[row.FileName] = true
		}
		for _, e := range c.tree.staticMerged {
			if !listed[e.Key.String()] {
				p.errorf("%s: merged image missing from dates table", e.Key)
			}
		}
	}
	return p
}

func sortedUnits(set map[domain.UnitKey]bool) []domain.UnitKey {
	out := make([]domain.UnitKey, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
