package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"JamFM/config"
	"JamFM/core/cache"
	"JamFM/core/event"
	"JamFM/core/ingest"
	"JamFM/core/jam"
	"JamFM/logger"
	"JamFM/model"
	"JamFM/repository"

	"github.com/gorilla/mux"
)

// APIHandler handles all API requests.
type APIHandler struct {
	cfg     *config.Config
	tracks  repository.TrackRepository
	ingest  *ingest.Service
	manager *jam.Manager
	player  *jam.Player
	cache   jam.Resolver
	hub     *event.Hub
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(
	cfg *config.Config,
	tracks repository.TrackRepository,
	ingestSvc *ingest.Service,
	manager *jam.Manager,
	player *jam.Player,
	cacheResolver jam.Resolver,
	hub *event.Hub,
) *APIHandler {
	return &APIHandler{
		cfg:     cfg,
		tracks:  tracks,
		ingest:  ingestSvc,
		manager: manager,
		player:  player,
		cache:   cacheResolver,
		hub:     hub,
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.Warn("failed to encode response", logger.ErrorField(err))
		}
	}
}

// respondError maps the error taxonomy onto HTTP statuses. User-facing
// rejections keep state unchanged and are not server failures.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, jam.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, jam.ErrSessionEnded):
		status = http.StatusGone
	case errors.Is(err, jam.ErrSubmissionsClosed),
		errors.Is(err, jam.ErrLimitExceeded),
		errors.Is(err, jam.ErrActiveSessionExists):
		status = http.StatusConflict
	case errors.Is(err, cache.ErrUpstreamFetch),
		errors.Is(err, cache.ErrTranscodeFailed),
		errors.Is(err, cache.ErrStorageUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, ingest.ErrFetchFailed):
		status = http.StatusBadGateway
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *APIHandler) session(w http.ResponseWriter, r *http.Request) (*jam.Session, bool) {
	session, err := h.manager.Get(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return nil, false
	}
	return session, true
}

// IngestTrackHandler ingests a submitted track link.
func (h *APIHandler) IngestTrackHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceURL   string `json:"sourceUrl"`
		SubmittedBy int64  `json:"submittedBy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SourceURL == "" {
		http.Error(w, "sourceUrl is required", http.StatusBadRequest)
		return
	}

	result, err := h.ingest.Ingest(r.Context(), req.SourceURL, req.SubmittedBy)
	if err != nil {
		respondError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	respondJSON(w, status, map[string]interface{}{
		"track":     result.Track,
		"duplicate": result.Duplicate,
	})
}

// GetTrackHandler returns one track record.
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	track, err := h.tracks.GetTrackByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	if track == nil {
		http.Error(w, "track not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, track)
}

// StreamTrackHandler resolves a track's artifact and serves it: a local
// artifact streams from disk, an object-tier artifact redirects to its
// signed URL. Never both.
func (h *APIHandler) StreamTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["id"]
	track, err := h.tracks.GetTrackByID(r.Context(), trackID)
	if err != nil {
		respondError(w, err)
		return
	}
	if track == nil {
		http.Error(w, "track not found", http.StatusNotFound)
		return
	}

	ref, err := h.cache.Resolve(r.Context(), track.ID, track.RawAudioURL)
	if err != nil {
		respondError(w, err)
		return
	}

	if ref.SignedURL != "" {
		http.Redirect(w, r, ref.SignedURL, http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", "audio/opus")
	http.ServeFile(w, r, ref.LocalPath)
}

// OpenSessionHandler opens the active session for a (guild, channel) pair.
func (h *APIHandler) OpenSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GuildID   int64 `json:"guildId"`
		ChannelID int64 `json:"channelId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	session, err := h.manager.Open(req.GuildID, req.ChannelID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, session.Snapshot(h.cfg.QueuePreviewLimit))
}

// EndSessionHandler terminates a session.
func (h *APIHandler) EndSessionHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.End(mux.Vars(r)["id"]); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// SessionHandler returns a session snapshot.
func (h *APIHandler) SessionHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, session.Snapshot(h.cfg.QueuePreviewLimit))
}

// EnqueueHandler appends a submission to the session queue.
func (h *APIHandler) EnqueueHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		TrackID     string `json:"trackId"`
		RequestedBy int64  `json:"requestedBy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackID == "" {
		http.Error(w, "trackId is required", http.StatusBadRequest)
		return
	}

	track, err := h.tracks.GetTrackByID(r.Context(), req.TrackID)
	if err != nil {
		respondError(w, err)
		return
	}
	if track == nil {
		http.Error(w, "track not found", http.StatusNotFound)
		return
	}

	entry, err := session.Enqueue(req.TrackID, req.RequestedBy)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

// QueueHandler lists pending entries in pop order.
func (h *APIHandler) QueueHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, session.Pending(0))
}

// RemoveEntryHandler removes the pending entry at a position.
func (h *APIHandler) RemoveEntryHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	position, err := strconv.Atoi(mux.Vars(r)["position"])
	if err != nil {
		http.Error(w, "invalid position", http.StatusBadRequest)
		return
	}

	if err := session.Remove(position); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// ClearQueueHandler removes every pending entry.
func (h *APIHandler) ClearQueueHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	cleared, err := session.Clear()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

// playbackResponse is shared by the play/advance/skip handlers.
func (h *APIHandler) playbackResponse(w http.ResponseWriter, entry *model.QueueEntry, ref *model.PlayableRef, err error) {
	if err != nil {
		respondError(w, err)
		return
	}
	if entry == nil {
		respondJSON(w, http.StatusOK, map[string]string{"status": "nothing to play"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entry":    entry,
		"playable": ref,
	})
}

// PlayNextHandler is the manual "play next" trigger.
func (h *APIHandler) PlayNextHandler(w http.ResponseWriter, r *http.Request) {
	entry, ref, err := h.player.PlayNext(r.Context(), mux.Vars(r)["id"])
	h.playbackResponse(w, entry, ref, err)
}

// AdvanceHandler reports the current entry finished.
func (h *APIHandler) AdvanceHandler(w http.ResponseWriter, r *http.Request) {
	entry, ref, err := h.player.Advance(r.Context(), mux.Vars(r)["id"])
	h.playbackResponse(w, entry, ref, err)
}

// SkipHandler skips the current entry.
func (h *APIHandler) SkipHandler(w http.ResponseWriter, r *http.Request) {
	entry, ref, err := h.player.Skip(r.Context(), mux.Vars(r)["id"])
	h.playbackResponse(w, entry, ref, err)
}

// PauseHandler pauses playback.
func (h *APIHandler) PauseHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.Pause(); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// ResumeHandler resumes playback.
func (h *APIHandler) ResumeHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.Resume(); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "playing"})
}

// SetModeHandler replaces the playback mode.
func (h *APIHandler) SetModeHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Mode      string `json:"mode"`
		Remaining *int   `json:"remaining"` // omitted = unbounded
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	switch req.Mode {
	case model.ModeManual, model.ModeAutoplay, model.ModeDJ:
	default:
		http.Error(w, "mode must be manual, autoplay or dj", http.StatusBadRequest)
		return
	}

	remaining := jam.Unbounded
	if req.Remaining != nil {
		remaining = *req.Remaining
	}
	if err := session.SetMode(req.Mode, remaining); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"mode": req.Mode})
}

// SubmissionsHandler opens or closes the submission gate.
func (h *APIHandler) SubmissionsHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Open bool `json:"open"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var err error
	if req.Open {
		err = session.OpenSubmissions()
	} else {
		err = session.CloseSubmissions()
	}
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"open": req.Open})
}

// SetLimitHandler updates the per-user submission limit.
func (h *APIHandler) SetLimitHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Limit int `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := session.SetLimit(req.Limit); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"limit": req.Limit})
}

// ReactHandler records a reaction to a track in the session.
func (h *APIHandler) ReactHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		TrackID string `json:"trackId"`
		UserID  int64  `json:"userId"`
		Type    string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackID == "" {
		http.Error(w, "trackId is required", http.StatusBadRequest)
		return
	}

	if err := session.React(req.TrackID, req.UserID, req.Type); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
