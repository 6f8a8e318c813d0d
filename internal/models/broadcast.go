package models

import (
	"time"

	"gorm.io/gorm"
)

// Segment is one transcript line. Start/End are milliseconds since the
// beginning of the broadcast audio.
type Segment struct {
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Text  string `json:"text"`
}

// Broadcast is the durable JSON record written next to the merged audio
// file. Immutable once persisted; the index and the catalog are both
// derived from these records.
type Broadcast struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration"`
	AudioFile  string    `json:"audioFile"`
	Transcript []Segment `json:"transcript"`
}

// CatalogEntry mirrors a persisted broadcast into the database so the API
// can paginate and search without rescanning the data directory. It is a
// derived view: the JSON records stay the source of truth.
type CatalogEntry struct {
	gorm.Model

	BroadcastID string    `gorm:"uniqueIndex;not null"`
	Title       string    `gorm:"index"`
	Timestamp   time.Time `gorm:"index"`
	DurationMs  int64
	AudioFile   string
	Words       int // transcript word count, for the stats endpoint
}
