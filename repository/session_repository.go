package repository

import (
	"context"
	"fmt"

	"JamFM/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionRepository persists session rows, queue entries and reactions.
// Writes are upserts: the in-memory engine is the linearization point and
// rows here mirror its latest state.
type SessionRepository interface {
	SaveSession(ctx context.Context, session *model.JamSession) error
	SaveEntry(ctx context.Context, entry *model.QueueEntry) error
	SaveReaction(ctx context.Context, reaction *model.SessionReaction) error
	ListEntries(ctx context.Context, sessionID string) ([]*model.QueueEntry, error)
	ListReactions(ctx context.Context, sessionID string) ([]*model.SessionReaction, error)
}

// gormSessionRepository implements SessionRepository on GORM/MySQL.
type gormSessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &gormSessionRepository{db: db}
}

// SaveSession upserts a session row.
func (r *gormSessionRepository) SaveSession(ctx context.Context, session *model.JamSession) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(session).Error
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	return nil
}

// SaveEntry upserts a queue entry.
func (r *gormSessionRepository) SaveEntry(ctx context.Context, entry *model.QueueEntry) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(entry).Error
	if err != nil {
		return fmt.Errorf("failed to save queue entry %s: %w", entry.ID, err)
	}
	return nil
}

// SaveReaction inserts a reaction; duplicate reactions are ignored, the
// unique index is the authority.
func (r *gormSessionRepository) SaveReaction(ctx context.Context, reaction *model.SessionReaction) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(reaction).Error
	if err != nil {
		return fmt.Errorf("failed to save reaction: %w", err)
	}
	return nil
}

// ListEntries returns a session's entries in position order.
func (r *gormSessionRepository) ListEntries(ctx context.Context, sessionID string) ([]*model.QueueEntry, error) {
	var entries []*model.QueueEntry
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("position ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for session %s: %w", sessionID, err)
	}
	return entries, nil
}

// ListReactions returns a session's reactions.
func (r *gormSessionRepository) ListReactions(ctx context.Context, sessionID string) ([]*model.SessionReaction, error) {
	var reactions []*model.SessionReaction
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Find(&reactions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reactions for session %s: %w", sessionID, err)
	}
	return reactions, nil
}
