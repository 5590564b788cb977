package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"JamFM/config"
	"JamFM/core/event"
	"JamFM/core/ingest"
	"JamFM/core/jam"
	"JamFM/model"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryTracks struct {
	byID  map[string]*model.Track
	byURL map[string]*model.Track
}

func newMemoryTracks() *memoryTracks {
	return &memoryTracks{byID: map[string]*model.Track{}, byURL: map[string]*model.Track{}}
}

func (m *memoryTracks) CreateTrack(ctx context.Context, track *model.Track) error {
	m.byID[track.ID] = track
	m.byURL[track.SourceURL] = track
	return nil
}

func (m *memoryTracks) GetTrackByID(ctx context.Context, id string) (*model.Track, error) {
	return m.byID[id], nil
}

func (m *memoryTracks) GetTrackBySourceURL(ctx context.Context, sourceURL string) (*model.Track, error) {
	return m.byURL[sourceURL], nil
}

func (m *memoryTracks) ListTracks(ctx context.Context, limit int) ([]*model.Track, error) {
	out := make([]*model.Track, 0, len(m.byID))
	for _, track := range m.byID {
		out = append(out, track)
	}
	return out, nil
}

type fixedFetcher struct{}

func (fixedFetcher) Fetch(ctx context.Context, sourceURL string) (*model.Track, error) {
	return &model.Track{Title: "Fetched", RawAudioURL: "https://cdn.example/a.mp3"}, nil
}

type localResolver struct{}

func (localResolver) Resolve(ctx context.Context, trackID, rawAudioURL string) (*model.PlayableRef, error) {
	return &model.PlayableRef{TrackID: trackID, LocalPath: "/tmp/" + trackID + ".opus"}, nil
}

func testRouter(t *testing.T) (*mux.Router, *jam.Manager, *memoryTracks) {
	t.Helper()

	cfg := &config.Config{QueuePreviewLimit: 25}
	tracks := newMemoryTracks()
	hub := event.NewHub()
	manager := jam.NewManager(hub, jam.Stores{}, 0)
	t.Cleanup(manager.Close)

	resolver := localResolver{}
	player := jam.NewPlayer(manager, tracks, resolver, nil)
	ingestSvc := ingest.NewService(fixedFetcher{}, tracks)

	h := NewAPIHandler(cfg, tracks, ingestSvc, manager, player, resolver, hub)

	router := mux.NewRouter()
	router.HandleFunc("/api/tracks", h.IngestTrackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}", h.GetTrackHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions", h.OpenSessionHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}", h.SessionHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{id}/end", h.EndSessionHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/queue", h.EnqueueHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/queue", h.QueueHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{id}/mode", h.SetModeHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/limit", h.SetLimitHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/submissions", h.SubmissionsHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/play", h.PlayNextHandler).Methods(http.MethodPost)
	return router, manager, tracks
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func openTestSession(t *testing.T, router *mux.Router) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/sessions", map[string]int64{"guildId": 1, "channelId": 2})
	require.Equal(t, http.StatusCreated, rec.Code)

	var snap event.SessionSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	return snap.Session.ID
}

func seedTrack(tracks *memoryTracks, id string) {
	tracks.byID[id] = &model.Track{ID: id, Title: id, RawAudioURL: "https://cdn.example/" + id + ".mp3"}
}

func TestIngestEndpoint(t *testing.T) {
	router, _, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/tracks", map[string]string{"sourceUrl": "https://suno.com/song/abc"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	// The same link again is a duplicate, not an error.
	rec = doJSON(t, router, http.MethodPost, "/api/tracks", map[string]string{"sourceUrl": "https://suno.com/song/abc?ref=x"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"duplicate":true`)

	rec = doJSON(t, router, http.MethodPost, "/api/tracks", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	router, _, tracks := testRouter(t)
	sessionID := openTestSession(t, router)
	seedTrack(tracks, "track-a")

	// Duplicate open on the same channel conflicts.
	rec := doJSON(t, router, http.MethodPost, "/api/sessions", map[string]int64{"guildId": 1, "channelId": 2})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/sessions/"+sessionID+"/queue",
		map[string]interface{}{"trackId": "track-a", "requestedBy": 7})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/sessions/"+sessionID+"/queue", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "track-a")

	rec = doJSON(t, router, http.MethodPost, "/api/sessions/"+sessionID+"/play", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "playable")

	rec = doJSON(t, router, http.MethodPost, "/api/sessions/"+sessionID+"/end", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Ended sessions leave the live partition.
	rec = doJSON(t, router, http.MethodGet, "/api/sessions/"+sessionID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnqueueRejections(t *testing.T) {
	router, _, tracks := testRouter(t)
	sessionID := openTestSession(t, router)
	seedTrack(tracks, "track-a")

	rec := doJSON(t, router, http.MethodPost, "/api/sessions/"+sessionID+"/limit", map[string]int{"limit": 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/sessions/"+sessionID+"/queue",
		map[string]interface{}{"trackId": "track-a", "requestedBy": 7})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/sessions/"+sessionID+"/queue",
		map[string]interface{}{"trackId": "track-a", "requestedBy": 7})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/sessions/"+sessionID+"/submissions", map[string]bool{"open": false})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/sessions/"+sessionID+"/queue",
		map[string]interface{}{"trackId": "track-a", "requestedBy": 8})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Unknown track is a 404, unknown session too.
	rec = doJSON(t, router, http.MethodPost, "/api/sessions/"+sessionID+"/queue",
		map[string]interface{}{"trackId": "ghost", "requestedBy": 8})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/sessions/nope/queue",
		map[string]interface{}{"trackId": "track-a", "requestedBy": 8})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetModeValidation(t *testing.T) {
	router, _, _ := testRouter(t)
	sessionID := openTestSession(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/sessions/"+sessionID+"/mode",
		map[string]interface{}{"mode": "shuffle"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	remaining := 3
	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/sessions/%s/mode", sessionID),
		map[string]interface{}{"mode": model.ModeAutoplay, "remaining": remaining})
	assert.Equal(t, http.StatusOK, rec.Code)

	var snap event.SessionSnapshot
	rec = doJSON(t, router, http.MethodGet, "/api/sessions/"+sessionID, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, model.ModeAutoplay, snap.Session.PlaybackMode)
	assert.Equal(t, remaining, snap.Session.ModeRemaining)
}
