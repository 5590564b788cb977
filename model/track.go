package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Track represents an ingested community track. Tracks are immutable once
// written; the queue and cache layers reference them by ID and never mutate
// them.
type Track struct {
	ID            string    `json:"id" gorm:"primaryKey;size:36"`
	Title         string    `json:"title" gorm:"size:255"`
	ArtistDisplay string    `json:"artistDisplay" gorm:"size:255"`
	SourceURL     string    `json:"sourceUrl" gorm:"size:512;uniqueIndex;not null"`
	RawAudioURL   string    `json:"rawAudioUrl" gorm:"size:1024"`
	ImageURL      string    `json:"imageUrl" gorm:"size:1024"`
	Lyrics        string    `json:"lyrics,omitempty" gorm:"type:text"`
	SubmittedBy   int64     `json:"submittedBy"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TableName picks the table name for GORM.
func (Track) TableName() string {
	return "tracks"
}

// NormalizeSourceURL strips the query/fragment noise that makes the same
// track page look like two different submissions.
func NormalizeSourceURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.TrimRight(trimmed, "/")
}

// TrackIDFromSourceURL derives the stable content key for a source URL.
// The same URL always maps to the same track ID, so a track is cacheable
// across sessions and re-ingesting a link is a no-op.
func TrackIDFromSourceURL(sourceURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(NormalizeSourceURL(sourceURL))).String()
}
