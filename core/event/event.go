package event

import "JamFM/model"

// SchemaVersion tags every envelope so dashboard clients can detect
// incompatible payload changes.
const SchemaVersion = "1.0"

// Event types carried by envelopes.
const (
	TypeSnapshot           = "snapshot"
	TypeSessionOpened      = "session_opened"
	TypeSessionEnded       = "session_ended"
	TypeQueueUpdated       = "queue_updated"
	TypeNowPlaying         = "now_playing"
	TypeModeChanged        = "mode_changed"
	TypeSubmissionsChanged = "submissions_changed"
	TypeLimitChanged       = "limit_changed"
	TypeReactionCounts     = "reaction_counts"
)

// Envelope wraps one event on the wire.
type Envelope struct {
	SchemaVersion string      `json:"schemaVersion"`
	EventType     string      `json:"eventType"`
	SessionID     string      `json:"sessionId"`
	Timestamp     int64       `json:"timestamp"`
	Data          interface{} `json:"data,omitempty"`
}

// Publisher fans out state changes to session subscribers. Delivery is
// at-least-once; consumers must tolerate redundant snapshots.
type Publisher interface {
	Publish(sessionID, eventType string, data interface{})
}

// SessionSnapshot is the full state replayed to a subscriber on connect.
type SessionSnapshot struct {
	Session    *model.JamSession     `json:"session"`
	NowPlaying *model.QueueEntry     `json:"nowPlaying,omitempty"`
	Queue      []*model.QueueEntry   `json:"queue"`
	Reactions  []model.ReactionCount `json:"reactions"`
}

// QueueUpdate describes a queue delta.
type QueueUpdate struct {
	Action  string            `json:"action"` // enqueued, removed, cleared
	Entry   *model.QueueEntry `json:"entry,omitempty"`
	Cleared int               `json:"cleared,omitempty"`
}

// NowPlaying announces the current entry; nil Entry means playback went idle.
type NowPlaying struct {
	Entry *model.QueueEntry `json:"entry,omitempty"`
}

// ModeChange announces a playback mode transition.
type ModeChange struct {
	Mode      string `json:"mode"`
	Remaining int    `json:"remaining"` // <0 = unbounded, meaningless for manual
}

// SubmissionsChange announces the submissions gate flipping.
type SubmissionsChange struct {
	Open bool `json:"open"`
}

// LimitChange announces a new per-user submission limit.
type LimitChange struct {
	Limit int `json:"limit"` // 0 = unlimited
}

// ReactionUpdate carries the refreshed reaction tallies for one track.
type ReactionUpdate struct {
	TrackID string                `json:"trackId"`
	Counts  []model.ReactionCount `json:"counts"`
}
