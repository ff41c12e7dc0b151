// Package registry reads the EMS activation table and writes the per-image
// dates table.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

// csvDate accepts the date layouts seen in the scraped activation table.
type csvDate struct{ time.Time }

var dateLayouts = []string{"2006-01-02", "2006-01-02T15:04:05Z07:00", "2006-01-02 15:04:05", "02/01/2006"}

func (d *csvDate) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognised date %q", s)
}

func (d csvDate) MarshalCSV() (string, error) {
	if d.IsZero() {
		return "", nil
	}
	return d.Format("2006-01-02"), nil
}

// activationRow is one row of tropical_ems_event_date.csv.
type activationRow struct {
	Code      string  `csv:"Code"`
	Title     string  `csv:"Title"`
	CodeDate  csvDate `csv:"CodeDate"`
	Type      string  `csv:"Type"`
	Country   string  `csv:"Country"`
	EventDate csvDate `csv:"EventDate"`
}

// Registry indexes activations by event code.
type Registry struct {
	byCode  map[domain.EventID]domain.EventActivation
	skipped []string
}

// Load reads the activation table. Rows whose code is not an EMSR code are
// skipped and reported by Skipped.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrMissingInput, path)
		}
		return nil, fmt.Errorf("open registry: %w", err)
	}
	defer f.Close()

	var rows []*activationRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("%w: registry %s: %v", domain.ErrMalformedArtifact, path, err)
	}
	return fromRows(rows), nil
}

func fromRows(rows []*activationRow) *Registry {
	r := &Registry{byCode: make(map[domain.EventID]domain.EventActivation, len(rows))}
	for _, row := range rows {
		code, err := domain.ParseEventID(strings.TrimSpace(row.Code))
		if err != nil {
			r.skipped = append(r.skipped, row.Code)
			continue
		}
		r.byCode[code] = domain.EventActivation{
			Code:           code,
			Title:          row.Title,
			Country:        row.Country,
			ActivationDate: row.CodeDate.Time,
			EventDate:      row.EventDate.Time,
		}
	}
	return r
}

// Write stores activations in the layout Load reads.
func Write(path string, activations []domain.EventActivation) error {
	rows := make([]*activationRow, 0, len(activations))
	for _, a := range activations {
		rows = append(rows, &activationRow{
			Code:      string(a.Code),
			Title:     a.Title,
			CodeDate:  csvDate{a.ActivationDate},
			Type:      "Flood",
			Country:   a.Country,
			EventDate: csvDate{a.EventDate},
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })
	return writeCSV(path, &rows)
}

// Empty returns a registry with no activations.
func Empty() *Registry {
	return &Registry{byCode: map[domain.EventID]domain.EventActivation{}}
}

// Lookup returns the activation for an event code.
func (r *Registry) Lookup(code domain.EventID) (domain.EventActivation, bool) {
	a, ok := r.byCode[code]
	return a, ok
}

// Events lists the known event codes in order.
func (r *Registry) Events() []domain.EventID {
	out := make([]domain.EventID, 0, len(r.byCode))
	for k := range r.byCode {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Skipped returns the codes of rows that were not loaded.
func (r *Registry) Skipped() []string { return r.skipped }

// DatesRow is one row of static_images_dates.csv.
type DatesRow struct {
	FileName       string `csv:"File Name"`
	EventDate      string `csv:"Event Date"`
	ActivationDate string `csv:"Activation Date"`
	SatelliteDate  string `csv:"Satellite Date"`
	Country        string `csv:"Country"`
}

// NewDatesRow joins an observation with its activation. Satellite dates are
// written dd/mm/yyyy.
func NewDatesRow(key domain.ObservationKey, a domain.EventActivation, satellite time.Time) DatesRow {
	row := DatesRow{
		FileName: key.String(),
		Country:  a.Country,
	}
	if !a.EventDate.IsZero() {
		row.EventDate = a.EventDate.Format("2006-01-02")
	}
	if !a.ActivationDate.IsZero() {
		row.ActivationDate = a.ActivationDate.Format("2006-01-02")
	}
	if satellite.IsZero() {
		satellite = key.Date.Day
	}
	row.SatelliteDate = satellite.Format("02/01/2006")
	return row
}

// WriteDates writes the dates table, replacing any previous file.
func WriteDates(path string, rows []DatesRow) error {
	sort.Slice(rows, func(i, j int) bool { return rows[i].FileName < rows[j].FileName })
	return writeCSV(path, &rows)
}

func writeCSV(path string, rows any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create table dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := gocsv.MarshalFile(rows, f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}

// ReadDates reads a dates table written by WriteDates.
func ReadDates(path string) ([]DatesRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dates table: %w", err)
	}
	defer f.Close()
	var rows []DatesRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("%w: dates table: %v", domain.ErrMalformedArtifact, err)
	}
	return rows, nil
}
