package jam

import (
	"context"
	"fmt"

	"JamFM/logger"
	"JamFM/model"
)

// Resolver produces a playable artifact for a track. The cache engine
// implements it.
type Resolver interface {
	Resolve(ctx context.Context, trackID, rawAudioURL string) (*model.PlayableRef, error)
}

// TrackSource looks track records up by ID.
type TrackSource interface {
	GetTrackByID(ctx context.Context, id string) (*model.Track, error)
}

// PlaybackSink consumes resolved artifacts. The Discord voice transport
// implements it outside this core; completion and skips come back in as
// Advance/Skip calls.
type PlaybackSink interface {
	Play(ctx context.Context, sessionID string, ref *model.PlayableRef) error
}

// Player drives the full "what plays next" flow: the session machine picks
// an entry, the cache engine resolves its artifact, the sink streams it.
type Player struct {
	manager *Manager
	tracks  TrackSource
	cache   Resolver
	sink    PlaybackSink // nil when no voice client is attached
}

// NewPlayer wires the playback flow together.
func NewPlayer(manager *Manager, tracks TrackSource, cache Resolver, sink PlaybackSink) *Player {
	return &Player{manager: manager, tracks: tracks, cache: cache, sink: sink}
}

// PlayNext handles the manual trigger for a session.
func (p *Player) PlayNext(ctx context.Context, sessionID string) (*model.QueueEntry, *model.PlayableRef, error) {
	session, err := p.manager.Get(sessionID)
	if err != nil {
		return nil, nil, err
	}
	entry, err := session.PlayNext()
	if err != nil {
		return nil, nil, err
	}
	return p.deliver(ctx, sessionID, entry)
}

// Advance handles the completion of the current entry.
func (p *Player) Advance(ctx context.Context, sessionID string) (*model.QueueEntry, *model.PlayableRef, error) {
	session, err := p.manager.Get(sessionID)
	if err != nil {
		return nil, nil, err
	}
	entry, err := session.Advance()
	if err != nil {
		return nil, nil, err
	}
	return p.deliver(ctx, sessionID, entry)
}

// Skip forcibly finishes the current entry and advances.
func (p *Player) Skip(ctx context.Context, sessionID string) (*model.QueueEntry, *model.PlayableRef, error) {
	session, err := p.manager.Get(sessionID)
	if err != nil {
		return nil, nil, err
	}
	entry, err := session.Skip()
	if err != nil {
		return nil, nil, err
	}
	return p.deliver(ctx, sessionID, entry)
}

// deliver resolves the popped entry's artifact and hands it to the sink.
// A nil entry (nothing to play) passes through as a normal outcome.
func (p *Player) deliver(ctx context.Context, sessionID string, entry *model.QueueEntry) (*model.QueueEntry, *model.PlayableRef, error) {
	if entry == nil {
		return nil, nil, nil
	}

	track, err := p.tracks.GetTrackByID(ctx, entry.TrackID)
	if err != nil {
		return entry, nil, fmt.Errorf("failed to load track %s: %w", entry.TrackID, err)
	}
	if track == nil {
		return entry, nil, fmt.Errorf("track %s not found", entry.TrackID)
	}

	ref, err := p.cache.Resolve(ctx, track.ID, track.RawAudioURL)
	if err != nil {
		return entry, nil, err
	}

	if p.sink != nil {
		if err := p.sink.Play(ctx, sessionID, ref); err != nil {
			logger.Warn("playback sink rejected artifact",
				logger.ErrorField(err),
				logger.String("session", sessionID),
				logger.String("trackId", track.ID))
		}
	}
	return entry, ref, nil
}
