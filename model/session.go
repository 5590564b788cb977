package model

import "time"

// Queue entry status values.
const (
	EntryStatusPending = "pending"
	EntryStatusPlaying = "playing"
	EntryStatusPlayed  = "played"
	EntryStatusRemoved = "removed"
)

// Session status values.
const (
	SessionStatusActive = "active"
	SessionStatusEnded  = "ended"
)

// Playback modes.
const (
	ModeManual   = "manual"
	ModeAutoplay = "autoplay"
	ModeDJ       = "dj"
)

// Reaction types.
const (
	ReactionUpvote   = "upvote"
	ReactionDownvote = "downvote"
)

// QueueEntry is one submission in a session's queue. Position is an
// identity, not a rank: it is assigned once, strictly increasing, and is
// never reused even after the entry is removed.
type QueueEntry struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	SessionID   string    `json:"sessionId" gorm:"size:36;index;not null"`
	TrackID     string    `json:"trackId" gorm:"size:36;not null"`
	Position    int       `json:"position" gorm:"not null;index:idx_queue_session_position"`
	Status      string    `json:"status" gorm:"size:32;index;not null"`
	RequestedBy int64     `json:"requestedBy" gorm:"not null"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName picks the table name for GORM.
func (QueueEntry) TableName() string {
	return "queue_entries"
}

// JamSession is the durable record of a listening session. At most one
// active session exists per (guild, channel) pair. CurrentEntryID is an
// index lookup rather than an embedded entry so the session row never
// owns a queue row.
type JamSession struct {
	ID              string     `json:"id" gorm:"primaryKey;size:36"`
	GuildID         int64      `json:"guildId" gorm:"index:idx_sessions_guild_channel;not null"`
	ChannelID       int64      `json:"channelId" gorm:"index:idx_sessions_guild_channel;not null"`
	Status          string     `json:"status" gorm:"size:32;index;not null"`
	SubmissionsOpen bool       `json:"submissionsOpen"`
	PerUserLimit    int        `json:"perUserLimit"` // 0 = unlimited
	PlaybackMode    string     `json:"playbackMode" gorm:"size:32"`
	PlaybackState   string     `json:"playbackState" gorm:"size:16"`
	ModeRemaining   int        `json:"modeRemaining"` // <0 = unbounded
	CurrentEntryID  string     `json:"currentEntryId,omitempty" gorm:"size:36"`
	StartedAt       time.Time  `json:"startedAt"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// TableName picks the table name for GORM.
func (JamSession) TableName() string {
	return "jam_sessions"
}

// SessionReaction is one user's reaction to a track within a session.
// A user can hold each reaction type at most once per (session, track).
type SessionReaction struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID    string    `json:"sessionId" gorm:"size:36;uniqueIndex:uq_session_reactions;not null"`
	TrackID      string    `json:"trackId" gorm:"size:36;uniqueIndex:uq_session_reactions;not null"`
	UserID       int64     `json:"userId" gorm:"uniqueIndex:uq_session_reactions;not null"`
	ReactionType string    `json:"reactionType" gorm:"size:16;uniqueIndex:uq_session_reactions;not null"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TableName picks the table name for GORM.
func (SessionReaction) TableName() string {
	return "session_reactions"
}

// ReactionCount is an aggregated reaction tally for snapshots.
type ReactionCount struct {
	TrackID      string `json:"trackId"`
	ReactionType string `json:"reactionType"`
	Count        int    `json:"count"`
}
