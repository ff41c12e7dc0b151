package domain

import (
	"sort"
	"time"

	"github.com/paulmach/orb"
)

// EventActivation is one EMS activation as recorded in the event registry.
type EventActivation struct {
	Code           EventID
	Title          string
	Country        string
	ActivationDate time.Time
	EventDate      time.Time
	AOIs           map[AOIID][]ObservationDate
}

// AddObservation records an observed date for an area of interest.
func (a *EventActivation) AddObservation(aoi AOIID, d ObservationDate) {
	if a.AOIs == nil {
		a.AOIs = make(map[AOIID][]ObservationDate)
	}
	dates := a.AOIs[aoi]
	for _, existing := range dates {
		if existing == d {
			return
		}
	}
	dates = append(dates, d)
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	a.AOIs[aoi] = dates
}

// ObservationMetadata is the metadata document written next to a flood map.
type ObservationMetadata struct {
	Key            ObservationKey
	EventID        string
	SatelliteDate  time.Time
	ActivationDate time.Time
	AreaOfInterest orb.Geometry
}
