package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

const registryCSV = `Code,Title,CodeDate,Type,Country,EventDate
EMSR692,Flood in Malawi,2023-03-13,Flood,Malawi,2023-03-12
EMSR571,Tropical Cyclone Batsirai,2022-02-05,Storm,Madagascar,
ems-bad,Unparseable,2022-01-01,Flood,Nowhere,2022-01-01
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tropical_ems_event_date.csv", registryCSV)

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []domain.EventID{"EMSR571", "EMSR692"}, r.Events())
	assert.Equal(t, []string{"ems-bad"}, r.Skipped())

	a, ok := r.Lookup("EMSR692")
	require.True(t, ok)
	assert.Equal(t, "Malawi", a.Country)
	assert.Equal(t, time.Date(2023, 3, 13, 0, 0, 0, 0, time.UTC), a.ActivationDate)
	assert.Equal(t, time.Date(2023, 3, 12, 0, 0, 0, 0, time.UTC), a.EventDate)

	b, ok := r.Lookup("EMSR571")
	require.True(t, ok)
	assert.True(t, b.EventDate.IsZero())

	_, ok = r.Lookup("EMSR000")
	assert.False(t, ok)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.csv"))
	assert.ErrorIs(t, err, domain.ErrMissingInput)

	bad := writeFile(t, dir, "bad.csv", "Code,CodeDate\nEMSR692,yesterday\n")
	_, err = Load(bad)
	assert.ErrorIs(t, err, domain.ErrMalformedArtifact)
}

func TestDatesRoundTrip(t *testing.T) {
	d, err := domain.ParseObservationDate("20230314")
	require.NoError(t, err)
	key := domain.ObservationKey{UnitKey: domain.UnitKey{Event: "EMSR692", AOI: "AOI01"}, Date: d}
	a := domain.EventActivation{
		Country:        "Malawi",
		ActivationDate: time.Date(2023, 3, 13, 0, 0, 0, 0, time.UTC),
		EventDate:      time.Date(2023, 3, 12, 0, 0, 0, 0, time.UTC),
	}

	rows := []DatesRow{
		NewDatesRow(key, a, time.Date(2023, 3, 14, 8, 30, 0, 0, time.UTC)),
		NewDatesRow(domain.ObservationKey{UnitKey: key.UnitKey, Date: domain.ObservationDate{Day: time.Date(2023, 3, 2, 0, 0, 0, 0, time.UTC)}}, domain.EventActivation{}, time.Time{}),
	}
	path := filepath.Join(t.TempDir(), "tables", "static_images_dates.csv")
	require.NoError(t, WriteDates(path, rows))

	got, err := ReadDates(path)
	require.NoError(t, err)
	assert.Equal(t, []DatesRow{
		{FileName: "EMSR692_AOI01_20230302", SatelliteDate: "02/03/2023"},
		{FileName: "EMSR692_AOI01_20230314", EventDate: "2023-03-12", ActivationDate: "2023-03-13", SatelliteDate: "14/03/2023", Country: "Malawi"},
	}, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "File Name,Event Date,Activation Date,Satellite Date,Country")
}

func TestWriteThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.csv")
	require.NoError(t, Write(path, []domain.EventActivation{
		{Code: "EMSR692", Title: "Flood in Malawi", Country: "Malawi", ActivationDate: time.Date(2023, 3, 13, 0, 0, 0, 0, time.UTC)},
		{Code: "EMSR571", Country: "Madagascar", EventDate: time.Date(2022, 2, 4, 0, 0, 0, 0, time.UTC)},
	}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "EMSR692,Flood in Malawi,2023-03-13,Flood,Malawi,\n")

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []domain.EventID{"EMSR571", "EMSR692"}, r.Events())
	a, ok := r.Lookup("EMSR571")
	require.True(t, ok)
	assert.Equal(t, time.Date(2022, 2, 4, 0, 0, 0, 0, time.UTC), a.EventDate)
	assert.True(t, a.ActivationDate.IsZero())
}
