package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

// listing is the parsed content of one artifact directory.
type listing struct {
	artifacts []located
	// invalid holds names with an artifact suffix whose keys do not parse.
	invalid map[string]error
	missing bool
}

type located struct {
	domain.Artifact
	Path string
}

// scanDir lists dir and parses every file name. A missing directory is
// treated as empty; any other read error aborts the stage.
func scanDir(dir string) (listing, error) {
	l := listing{invalid: map[string]error{}}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.missing = true
			return l, nil
		}
		return l, fmt.Errorf("list %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		a, err := domain.ParseArtifactName(e.Name())
		if err != nil {
			if !errors.Is(err, domain.ErrNotArtifact) {
				l.invalid[e.Name()] = err
			}
			continue
		}
		l.artifacts = append(l.artifacts, located{Artifact: a, Path: filepath.Join(dir, e.Name())})
	}
	return l, nil
}

func (l listing) ofKind(kind domain.ArtifactKind) []located {
	var out []located
	for _, a := range l.artifacts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return lessKey(out[i].Key, out[j].Key)
		}
		return out[i].Path < out[j].Path
	})
	return out
}

func lessKey(a, b domain.ObservationKey) bool {
	if a.UnitKey != b.UnitKey {
		return a.UnitKey.String() < b.UnitKey.String()
	}
	return a.Date.Before(b.Date)
}

// scan lists dir for stage, warning when it does not exist.
func (p *Pipeline) scan(stage, dir string, sum *Summary) (listing, error) {
	l, err := scanDir(dir)
	if err != nil {
		return l, err
	}
	if l.missing {
		p.logger.Warn("input directory does not exist", "stage", stage, "dir", dir)
	}
	p.recordInvalid(stage, l, sum)
	return l, nil
}

// recordInvalid reports unparseable artifact names as source-format failures.
func (p *Pipeline) recordInvalid(stage string, l listing, sum *Summary) {
	names := make([]string, 0, len(l.invalid))
	for n := range l.invalid {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		r := failed(stage, n, l.invalid[n])
		p.logger.Warn("unrecognised artifact name", "stage", stage, "file", n, "error", l.invalid[n])
		sum.add(r)
		p.metrics.UnitsTotal.WithLabelValues(stage, string(OutcomeFailed)).Inc()
	}
}

// aliasAOI renames an AOI found on exported images to its flood-map name.
func (p *Pipeline) aliasAOI(key domain.ObservationKey) domain.ObservationKey {
	if to, ok := p.opts.AOIAliases[string(key.AOI)]; ok {
		key.AOI = domain.AOIID(to)
	}
	return key
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
