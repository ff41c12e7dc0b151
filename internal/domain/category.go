package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Category is the ordinal label of one pixel. Higher values win when
// aggregating observations.
type Category uint8

const (
	Invalid   Category = 0
	Land      Category = 1
	Flood     Category = 2
	Hydrology Category = 3 // hydrography and permanent water
)

func (c Category) String() string {
	switch c {
	case Invalid:
		return "invalid"
	case Land:
		return "land"
	case Flood:
		return "flood"
	case Hydrology:
		return "hydrology"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// Valid reports whether c is one of the four label values.
func (c Category) Valid() bool { return c <= Hydrology }

// AreaOfInterestClass is the w_class value of the polygons that bound the
// valid region of a flood map.
const AreaOfInterestClass = "area_of_interest"

// Vocabulary maps w_class labels to categories. One table is pinned per
// version; labels it does not list are rejected.
type Vocabulary struct {
	Version string
	codes   map[string]Category
}

// NewVocabulary builds a table from label/category pairs.
func NewVocabulary(version string, codes map[string]Category) Vocabulary {
	cp := make(map[string]Category, len(codes))
	for k, v := range codes {
		cp[k] = v
	}
	return Vocabulary{Version: version, codes: cp}
}

// Lookup returns the category of a w_class label.
func (v Vocabulary) Lookup(wClass string) (Category, bool) {
	c, ok := v.codes[wClass]
	return c, ok
}

// Labels returns the known labels in sorted order.
func (v Vocabulary) Labels() []string {
	out := make([]string, 0, len(v.codes))
	for k := range v.codes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validate checks every polygon label (except the area-of-interest class)
// against the table and reports all unknown labels in one error.
func (v Vocabulary) Validate(polygons []AnnotatedPolygon) error {
	seen := make(map[string]struct{})
	var unknown []string
	for _, p := range polygons {
		if p.IsAreaOfInterest() {
			continue
		}
		if _, ok := v.codes[p.WClass]; ok {
			continue
		}
		if _, dup := seen[p.WClass]; dup {
			continue
		}
		seen[p.WClass] = struct{}{}
		unknown = append(unknown, fmt.Sprintf("%q", p.WClass))
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("%w: vocabulary %s has no entry for %s", ErrUnknownCategory, v.Version, strings.Join(unknown, ", "))
}

// VocabularyV2 is the Copernicus EMS and UNOSAT table used for ground truth.
// UNOSAT synonyms that collide with EMS labels ("flood water" as "Flooded
// area", "probable flash flood-affected land" as "Flood trace") share the EMS
// entry.
var VocabularyV2 = Vocabulary{
	Version: "v2",
	codes: map[string]Category{
		// Copernicus EMS observed event
		"Flooded area":          Flood,
		"Previous flooded area": Flood,
		"Not Applicable":        Flood,
		"Not Application":       Flood,
		"Flood trace":           Flood,
		"Dike breach":           Flood,
		"Standing water":        Flood,
		"Erosion":               Flood,
		"River":                 Hydrology,
		"Riverine flood":        Flood,

		// Copernicus EMS hydrography
		"BH140-River":                      Hydrology,
		"BH090-Land Subject to Inundation": Land,
		"BH080-Lake":                       Hydrology,
		"BA040-Open Water":                 Hydrology,
		"BA030-Island":                     Land,
		"BH141-River Bank":                 Hydrology,
		"BH170-Natural Spring":             Hydrology,
		"BH130-Reservoir":                  Hydrology,
		"BH141-Stream":                     Hydrology,
		"BA010-Coastline":                  Land,
		"BH180-Waterfall":                  Hydrology,

		// UNOSAT
		"preflood water": Hydrology,
		"flood-affected land / possible flood water":         Flood,
		"satellite detected water":                           Flood,
		"possible saturated, wet soil/ possible flood water": Flood,
		"aquaculture (wet rice)":                             Flood,
		"tsunami-affected land":                              Flood,
		"ran of kutch water":                                 Flood,
		"maximum flood water extent (cumulative)":            Flood,
	},
}

// LookupVocabulary resolves a configured vocabulary version. The older v1
// table used a different code scheme (0 land, 1 flood, 2 hydro) and is not
// accepted.
func LookupVocabulary(version string) (Vocabulary, error) {
	switch version {
	case "", VocabularyV2.Version:
		return VocabularyV2, nil
	case "v1":
		return Vocabulary{}, fmt.Errorf("vocabulary v1 uses a retired code scheme and cannot label ground truth")
	default:
		return Vocabulary{}, fmt.Errorf("unknown vocabulary version %q", version)
	}
}
