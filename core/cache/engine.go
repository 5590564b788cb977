package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"JamFM/logger"
	"JamFM/model"

	"golang.org/x/sync/singleflight"
)

// ObjectStore is the object-storage tier consumed by the engine.
// storage.OpusStore implements it.
type ObjectStore interface {
	ObjectKey(trackID string) string
	Put(ctx context.Context, key string, reader io.Reader, size int64) error
	Stat(ctx context.Context, key string) (time.Time, bool, error)
	SignedURL(ctx context.Context, key string) (string, error)
	Remove(ctx context.Context, key string) error
}

// Options configures an Engine.
type Options struct {
	CacheDir string
	TTL      time.Duration // <=0 means artifacts never expire
	// ObjectPrimary uploads fresh transcodes to the object tier instead of
	// keeping them on local disk.
	ObjectPrimary bool
}

// Engine resolves track IDs to playable Opus artifacts. Artifacts are keyed
// by track ID only, never by session, so a track transcoded for one session
// serves every other session for free. The engine is the sole writer of
// cache artifacts; everything else treats them as read-only.
type Engine struct {
	opts       Options
	transcoder Transcoder
	objects    ObjectStore   // nil when the tier is disabled
	index      ArtifactIndex // nil when no index is configured
	group      singleflight.Group
	now        func() time.Time
}

// NewEngine creates a cache engine. objects and index may be nil.
func NewEngine(opts Options, transcoder Transcoder, objects ObjectStore, index ArtifactIndex) *Engine {
	return &Engine{
		opts:       opts,
		transcoder: transcoder,
		objects:    objects,
		index:      index,
		now:        time.Now,
	}
}

// LocalPath maps a track ID to its artifact path on the local tier.
func (e *Engine) LocalPath(trackID string) string {
	return filepath.Join(e.opts.CacheDir, trackID+".opus")
}

// Resolve returns a playable reference for the track, producing the artifact
// if no fresh copy exists on either tier. Concurrent calls for the same
// track share one transcode; every waiter receives the same result or the
// same error. Errors are never cached.
func (e *Engine) Resolve(ctx context.Context, trackID, rawAudioURL string) (*model.PlayableRef, error) {
	// Fast path: fresh local artifact, no network.
	if ref := e.lookupLocal(trackID); ref != nil {
		return ref, nil
	}

	// Object tier: a fresh copy there IS the cache, do not duplicate it locally.
	if ref, err := e.lookupObject(ctx, trackID); err != nil {
		logger.Warn("object tier check failed, falling back to local transcode",
			logger.ErrorField(err),
			logger.String("trackId", trackID))
	} else if ref != nil {
		return ref, nil
	}

	result, err, _ := e.group.Do(trackID, func() (interface{}, error) {
		// Another waiter may have finished the encode between our check
		// and this flight starting.
		if ref := e.lookupLocal(trackID); ref != nil {
			return ref, nil
		}
		// The flight outlives its callers: a waiter disconnecting must not
		// abort an encode that would serve future requesters.
		return e.produce(context.WithoutCancel(ctx), trackID, rawAudioURL)
	})
	if err != nil {
		return nil, err
	}
	return result.(*model.PlayableRef), nil
}

// lookupLocal returns a ref when a fresh artifact exists on disk. Freshness
// runs off the file mtime, which is set at (re)encode time: re-requesting a
// near-expired artifact does not extend its life.
func (e *Engine) lookupLocal(trackID string) *model.PlayableRef {
	path := e.LocalPath(trackID)
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if e.opts.TTL > 0 && e.now().Sub(info.ModTime()) >= e.opts.TTL {
		return nil
	}
	return &model.PlayableRef{TrackID: trackID, LocalPath: path}
}

// lookupObject checks the object tier for a fresh copy and presigns it.
// A stale object is deleted so the next encode starts clean.
func (e *Engine) lookupObject(ctx context.Context, trackID string) (*model.PlayableRef, error) {
	if e.objects == nil {
		return nil, nil
	}

	key := e.objects.ObjectKey(trackID)
	lastModified, exists, err := e.objects.Stat(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if !exists {
		return nil, nil
	}

	if e.opts.TTL > 0 && e.now().Sub(lastModified) >= e.opts.TTL {
		if err := e.objects.Remove(ctx, key); err != nil {
			logger.Warn("failed to delete stale object",
				logger.ErrorField(err),
				logger.String("key", key))
		}
		return nil, nil
	}

	signed, err := e.objects.SignedURL(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &model.PlayableRef{TrackID: trackID, SignedURL: signed}, nil
}

// produce runs the transcode and lands the artifact on the configured
// primary tier. Called only from inside a single-flight group.
func (e *Engine) produce(ctx context.Context, trackID, rawAudioURL string) (*model.PlayableRef, error) {
	localPath := e.LocalPath(trackID)
	if err := e.transcoder.Transcode(ctx, rawAudioURL, localPath); err != nil {
		return nil, err
	}

	encodedAt := e.now()
	artifact := &model.CacheArtifact{
		TrackID:     trackID,
		StorageTier: model.TierLocal,
		PathOrKey:   localPath,
		EncodedAt:   encodedAt,
	}
	if e.opts.TTL > 0 {
		artifact.ExpiresAt = encodedAt.Add(e.opts.TTL)
	}

	ref := &model.PlayableRef{TrackID: trackID, LocalPath: localPath}

	if e.opts.ObjectPrimary && e.objects != nil {
		uploaded, err := e.uploadArtifact(ctx, trackID, localPath)
		if err != nil {
			// Keep serving the local copy; the object tier being down is
			// not a resolve failure.
			logger.Warn("upload to object tier failed, serving local artifact",
				logger.ErrorField(err),
				logger.String("trackId", trackID))
		} else {
			artifact.StorageTier = model.TierObject
			artifact.PathOrKey = e.objects.ObjectKey(trackID)
			ref = uploaded
			// The object copy is now the cache; drop the local duplicate.
			if err := os.Remove(localPath); err != nil {
				logger.Warn("failed to remove local copy after upload",
					logger.ErrorField(err),
					logger.String("path", localPath))
			}
		}
	}

	e.recordArtifact(ctx, artifact)

	logger.Info("artifact encoded",
		logger.String("trackId", trackID),
		logger.String("tier", artifact.StorageTier))
	return ref, nil
}

func (e *Engine) uploadArtifact(ctx context.Context, trackID, localPath string) (*model.PlayableRef, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	key := e.objects.ObjectKey(trackID)
	if err := e.objects.Put(ctx, key, f, info.Size()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	signed, err := e.objects.SignedURL(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &model.PlayableRef{TrackID: trackID, SignedURL: signed}, nil
}

func (e *Engine) recordArtifact(ctx context.Context, artifact *model.CacheArtifact) {
	if e.index == nil {
		return
	}
	if err := e.index.Record(ctx, artifact); err != nil {
		logger.Warn("failed to index artifact",
			logger.ErrorField(err),
			logger.String("trackId", artifact.TrackID))
	}
}
