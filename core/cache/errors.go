package cache

import "errors"

// Infrastructure errors. None of these are cached: the next Resolve call
// retries from the top of the tier chain.
var (
	// ErrUpstreamFetch means the raw audio could not be downloaded.
	ErrUpstreamFetch = errors.New("upstream audio fetch failed")

	// ErrTranscodeFailed means ffmpeg could not produce an Opus artifact.
	ErrTranscodeFailed = errors.New("opus transcode failed")

	// ErrStorageUnavailable means the object tier is down. Resolve falls
	// back to the local tier; the error only surfaces when local fails too.
	ErrStorageUnavailable = errors.New("object storage unavailable")
)
