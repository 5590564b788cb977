package ingest

import (
	"context"
	"errors"
	"fmt"

	"JamFM/logger"
	"JamFM/model"
)

// ErrFetchFailed wraps metadata fetcher failures.
var ErrFetchFailed = errors.New("track metadata fetch failed")

// MetadataFetcher resolves a source URL to a track record with its raw
// audio URL already populated. The concrete scraper lives outside this
// core; the cache engine never calls it.
type MetadataFetcher interface {
	Fetch(ctx context.Context, sourceURL string) (*model.Track, error)
}

// TrackStore persists and looks up track records.
type TrackStore interface {
	CreateTrack(ctx context.Context, track *model.Track) error
	GetTrackByID(ctx context.Context, id string) (*model.Track, error)
	GetTrackBySourceURL(ctx context.Context, sourceURL string) (*model.Track, error)
}

// Result reports one ingested link.
type Result struct {
	Track     *model.Track
	Duplicate bool
}

// Service ingests community-submitted track links. Tracks are global and
// keyed by source URL: re-submitting a known link returns the existing
// record instead of re-fetching metadata.
type Service struct {
	fetcher MetadataFetcher
	tracks  TrackStore
}

// NewService creates an ingest service.
func NewService(fetcher MetadataFetcher, tracks TrackStore) *Service {
	return &Service{fetcher: fetcher, tracks: tracks}
}

// Ingest processes one submitted link. The first submitter is recorded on
// the track; a duplicate submission does not change ownership.
func (s *Service) Ingest(ctx context.Context, sourceURL string, submittedBy int64) (*Result, error) {
	normalized := model.NormalizeSourceURL(sourceURL)
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty source URL", ErrFetchFailed)
	}

	existing, err := s.tracks.GetTrackBySourceURL(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to look up track by source URL: %w", err)
	}
	if existing != nil {
		logger.Debug("duplicate submission", logger.String("sourceUrl", normalized))
		return &Result{Track: existing, Duplicate: true}, nil
	}

	track, err := s.fetcher.Fetch(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	track.ID = model.TrackIDFromSourceURL(normalized)
	track.SourceURL = normalized
	track.SubmittedBy = submittedBy

	if err := s.tracks.CreateTrack(ctx, track); err != nil {
		return nil, fmt.Errorf("failed to persist track: %w", err)
	}

	logger.Info("track ingested",
		logger.String("trackId", track.ID),
		logger.String("title", track.Title))
	return &Result{Track: track}, nil
}
