package repository

import (
	"context"
	"errors"
	"fmt"

	"JamFM/model"

	"gorm.io/gorm"
)

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(ctx context.Context, track *model.Track) error
	GetTrackByID(ctx context.Context, id string) (*model.Track, error)
	GetTrackBySourceURL(ctx context.Context, sourceURL string) (*model.Track, error)
	ListTracks(ctx context.Context, limit int) ([]*model.Track, error)
}

// gormTrackRepository implements TrackRepository on GORM/MySQL.
type gormTrackRepository struct {
	db *gorm.DB
}

// NewTrackRepository creates a new track repository.
func NewTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

// CreateTrack inserts a new track record.
func (r *gormTrackRepository) CreateTrack(ctx context.Context, track *model.Track) error {
	if err := r.db.WithContext(ctx).Create(track).Error; err != nil {
		return fmt.Errorf("failed to create track %s: %w", track.ID, err)
	}
	return nil
}

// GetTrackByID retrieves a track by its ID. A missing track is not an error.
func (r *gormTrackRepository) GetTrackByID(ctx context.Context, id string) (*model.Track, error) {
	var track model.Track
	err := r.db.WithContext(ctx).First(&track, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get track %s: %w", id, err)
	}
	return &track, nil
}

// GetTrackBySourceURL retrieves a track by its normalized source URL.
// A missing track is not an error.
func (r *gormTrackRepository) GetTrackBySourceURL(ctx context.Context, sourceURL string) (*model.Track, error) {
	var track model.Track
	err := r.db.WithContext(ctx).First(&track, "source_url = ?", sourceURL).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get track by source URL: %w", err)
	}
	return &track, nil
}

// ListTracks returns the most recently ingested tracks.
func (r *gormTrackRepository) ListTracks(ctx context.Context, limit int) ([]*model.Track, error) {
	var tracks []*model.Track
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	return tracks, nil
}
