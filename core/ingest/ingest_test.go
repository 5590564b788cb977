package ingest

import (
	"context"
	"errors"
	"testing"

	"JamFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	calls int
	track *model.Track
	err   error
}

func (s *stubFetcher) Fetch(ctx context.Context, sourceURL string) (*model.Track, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	copied := *s.track
	return &copied, nil
}

type memoryTrackStore struct {
	byID  map[string]*model.Track
	byURL map[string]*model.Track
}

func newMemoryTrackStore() *memoryTrackStore {
	return &memoryTrackStore{
		byID:  make(map[string]*model.Track),
		byURL: make(map[string]*model.Track),
	}
}

func (m *memoryTrackStore) CreateTrack(ctx context.Context, track *model.Track) error {
	m.byID[track.ID] = track
	m.byURL[track.SourceURL] = track
	return nil
}

func (m *memoryTrackStore) GetTrackByID(ctx context.Context, id string) (*model.Track, error) {
	return m.byID[id], nil
}

func (m *memoryTrackStore) GetTrackBySourceURL(ctx context.Context, sourceURL string) (*model.Track, error) {
	return m.byURL[sourceURL], nil
}

func TestIngestAssignsDeterministicID(t *testing.T) {
	fetcher := &stubFetcher{track: &model.Track{Title: "Neon Nights", RawAudioURL: "https://cdn.example/a.mp3"}}
	svc := NewService(fetcher, newMemoryTrackStore())

	result, err := svc.Ingest(context.Background(), "https://suno.com/song/abc123", 7)
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, model.TrackIDFromSourceURL("https://suno.com/song/abc123"), result.Track.ID)
	assert.Equal(t, int64(7), result.Track.SubmittedBy)
	assert.Equal(t, 1, fetcher.calls)
}

func TestIngestDeduplicatesBySourceURL(t *testing.T) {
	fetcher := &stubFetcher{track: &model.Track{Title: "Neon Nights", RawAudioURL: "https://cdn.example/a.mp3"}}
	svc := NewService(fetcher, newMemoryTrackStore())

	first, err := svc.Ingest(context.Background(), "https://suno.com/song/abc123", 7)
	require.NoError(t, err)

	// Query noise and trailing slashes do not defeat deduplication.
	second, err := svc.Ingest(context.Background(), "https://suno.com/song/abc123/?utm_source=share", 8)
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Track.ID, second.Track.ID)
	assert.Equal(t, 1, fetcher.calls, "a duplicate must not re-fetch metadata")
}

func TestIngestWrapsFetchFailures(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("page scrape failed")}
	svc := NewService(fetcher, newMemoryTrackStore())

	_, err := svc.Ingest(context.Background(), "https://suno.com/song/abc123", 7)
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestIngestRejectsEmptyURL(t *testing.T) {
	svc := NewService(&stubFetcher{}, newMemoryTrackStore())

	_, err := svc.Ingest(context.Background(), "   ", 7)
	assert.ErrorIs(t, err, ErrFetchFailed)
}
