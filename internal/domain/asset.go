package domain

import (
	"path"
	"time"
)

const dateLayout = "2006-01-02"

// PublishedAsset describes one aggregated ground-truth raster uploaded to
// the asset store.
type PublishedAsset struct {
	Unit        UnitKey           `json:"-"`
	EventID     string            `json:"event_id"`
	AOI         string            `json:"aoi"`
	LocalPath   string            `json:"-"`
	Bucket      string            `json:"bucket,omitempty"`
	ObjectName  string            `json:"object_name"`
	URI         string            `json:"uri,omitempty"`
	Metadata    map[string]string `json:"metadata"`
	PublishedAt time.Time         `json:"published_at"`
}

// NewPublishedAsset builds the asset for a merged raster. The event date is
// taken from the registry and may be zero when the registry has no row.
func NewPublishedAsset(unit UnitKey, localPath, prefix string, eventDate time.Time) PublishedAsset {
	md := map[string]string{
		"event_id": string(unit.Event),
		"aoi":      string(unit.AOI),
	}
	if !eventDate.IsZero() {
		md["event_date"] = eventDate.Format(dateLayout)
	}
	return PublishedAsset{
		Unit:        unit,
		EventID:     string(unit.Event),
		AOI:         string(unit.AOI),
		LocalPath:   localPath,
		ObjectName:  path.Join(prefix, MergedGroundTruthName(unit)),
		Metadata:    md,
		PublishedAt: clock.Now().UTC(),
	}
}
