package model

import "time"

// Storage tiers for cache artifacts.
const (
	TierLocal  = "local"
	TierObject = "object"
)

// CacheArtifact describes one transcoded Opus artifact. Artifacts are
// derived data: they can be deleted and regenerated from the track's raw
// audio URL at any time without loss.
type CacheArtifact struct {
	TrackID     string    `json:"trackId"`
	StorageTier string    `json:"storageTier"`
	PathOrKey   string    `json:"pathOrKey"`
	EncodedAt   time.Time `json:"encodedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Expired reports whether the artifact's TTL has lapsed at the given instant.
// A zero ExpiresAt means the artifact never expires.
func (a *CacheArtifact) Expired(now time.Time) bool {
	if a.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(a.ExpiresAt)
}

// PlayableRef points the playback layer at a resolved artifact. Exactly one
// of LocalPath or SignedURL is set.
type PlayableRef struct {
	TrackID   string `json:"trackId"`
	LocalPath string `json:"localPath,omitempty"`
	SignedURL string `json:"signedUrl,omitempty"`
}
