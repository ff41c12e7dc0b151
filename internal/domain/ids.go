package domain

import (
	"fmt"
	"regexp"
	"time"
)

const observationDateLayout = "20060102"

var (
	eventIDRe         = regexp.MustCompile(`^EMSR\d{3,}$`)
	aoiIDRe           = regexp.MustCompile(`^[0-9A-Za-z-]+$`)
	observationDateRe = regexp.MustCompile(`^(\d{8})(?:-([0-9A-Za-z]+))?$`)
)

// EventID identifies one EMS activation, e.g. "EMSR692".
type EventID string

// ParseEventID validates an activation code.
func ParseEventID(s string) (EventID, error) {
	if !eventIDRe.MatchString(s) {
		return "", fmt.Errorf("%w: event id %q", ErrInvalidArtifactName, s)
	}
	return EventID(s), nil
}

// AOIID identifies an area of interest within an activation.
type AOIID string

// ParseAOIID validates an area-of-interest label.
func ParseAOIID(s string) (AOIID, error) {
	if !aoiIDRe.MatchString(s) {
		return "", fmt.Errorf("%w: aoi id %q", ErrInvalidArtifactName, s)
	}
	return AOIID(s), nil
}

// ObservationDate is the satellite acquisition day of one flood map. Tag
// disambiguates several products acquired on the same day.
type ObservationDate struct {
	Day time.Time
	Tag string
}

// NewObservationDate truncates t to a UTC calendar day.
func NewObservationDate(t time.Time, tag string) ObservationDate {
	y, m, d := t.UTC().Date()
	return ObservationDate{Day: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Tag: tag}
}

// ParseObservationDate parses "YYYYMMDD" or "YYYYMMDD-TAG".
func ParseObservationDate(s string) (ObservationDate, error) {
	m := observationDateRe.FindStringSubmatch(s)
	if m == nil {
		return ObservationDate{}, fmt.Errorf("%w: observation date %q", ErrInvalidArtifactName, s)
	}
	day, err := time.Parse(observationDateLayout, m[1])
	if err != nil {
		return ObservationDate{}, fmt.Errorf("%w: observation date %q: %v", ErrInvalidArtifactName, s, err)
	}
	return ObservationDate{Day: day, Tag: m[2]}, nil
}

func (d ObservationDate) String() string {
	s := d.Day.Format(observationDateLayout)
	if d.Tag != "" {
		s += "-" + d.Tag
	}
	return s
}

// IsZero reports whether the date is unset.
func (d ObservationDate) IsZero() bool { return d.Day.IsZero() }

// Before orders observations by day, then tag.
func (d ObservationDate) Before(o ObservationDate) bool {
	if !d.Day.Equal(o.Day) {
		return d.Day.Before(o.Day)
	}
	return d.Tag < o.Tag
}

// UnitKey identifies one area of interest of one activation. It is the unit
// of aggregation, publication and failure isolation.
type UnitKey struct {
	Event EventID
	AOI   AOIID
}

func (k UnitKey) String() string { return string(k.Event) + "_" + string(k.AOI) }

// ObservationKey identifies one flood map of an area of interest.
type ObservationKey struct {
	UnitKey
	Date ObservationDate
}

func (k ObservationKey) String() string { return k.UnitKey.String() + "_" + k.Date.String() }
