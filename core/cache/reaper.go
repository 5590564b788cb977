package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"JamFM/logger"

	"github.com/fsnotify/fsnotify"
)

// Reaper bounds local disk usage by deleting artifacts whose TTL has
// passed. Expiry itself is lazy (Resolve ignores stale files); the reaper
// only reclaims the bytes. It also watches the cache directory so index
// entries do not outlive files removed out-of-band.
type Reaper struct {
	cacheDir string
	ttl      time.Duration
	interval time.Duration
	index    ArtifactIndex // nil when no index is configured
}

// NewReaper creates a reaper for the local tier.
func NewReaper(cacheDir string, ttl, interval time.Duration, index ArtifactIndex) *Reaper {
	return &Reaper{
		cacheDir: cacheDir,
		ttl:      ttl,
		interval: interval,
		index:    index,
	}
}

// Run sweeps on a ticker until ctx is cancelled. Blocks; callers run it in
// its own goroutine.
func (r *Reaper) Run(ctx context.Context) {
	if r.ttl <= 0 || r.interval <= 0 {
		logger.Info("cache reaper disabled")
		return
	}

	watcher := r.startWatcher(ctx)
	if watcher != nil {
		defer watcher.Close()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logger.Info("cache reaper started",
		logger.String("dir", r.cacheDir),
		logger.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep deletes local artifacts past their TTL. The index narrows the
// candidate set when available; the filesystem mtime is the authority.
func (r *Reaper) sweep(ctx context.Context) {
	now := time.Now()
	reaped := 0

	for _, trackID := range r.expiredCandidates(ctx, now) {
		path := filepath.Join(r.cacheDir, trackID+".opus")
		info, err := os.Stat(path)
		if err == nil && now.Sub(info.ModTime()) < r.ttl {
			// Re-encoded since it was indexed as expiring; leave it.
			continue
		}
		if err == nil {
			if err := os.Remove(path); err != nil {
				logger.Warn("failed to reap artifact",
					logger.ErrorField(err),
					logger.String("path", path))
				continue
			}
			reaped++
		}
		r.forget(ctx, trackID)
	}

	if reaped > 0 {
		logger.Info("reaped expired artifacts", logger.Int("count", reaped))
	}
}

// expiredCandidates lists track IDs whose artifacts may have expired.
func (r *Reaper) expiredCandidates(ctx context.Context, now time.Time) []string {
	if r.index != nil {
		ids, err := r.index.ExpiredBefore(ctx, now)
		if err == nil {
			return ids
		}
		logger.Warn("artifact index unavailable, scanning cache dir", logger.ErrorField(err))
	}

	entries, err := os.ReadDir(r.cacheDir)
	if err != nil {
		return nil
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".opus") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) >= r.ttl {
			ids = append(ids, strings.TrimSuffix(name, ".opus"))
		}
	}
	return ids
}

func (r *Reaper) forget(ctx context.Context, trackID string) {
	if r.index == nil {
		return
	}
	if err := r.index.Forget(ctx, trackID); err != nil {
		logger.Warn("failed to drop artifact index entry",
			logger.ErrorField(err),
			logger.String("trackId", trackID))
	}
}

// startWatcher keeps the index in sync when cache files are deleted outside
// the reaper (operators clearing disk, tmp cleaners). Best-effort: a failed
// watcher just means the next sweep does the cleanup.
func (r *Reaper) startWatcher(ctx context.Context) *fsnotify.Watcher {
	if r.index == nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("failed to create cache dir watcher", logger.ErrorField(err))
		return nil
	}
	if err := watcher.Add(r.cacheDir); err != nil {
		logger.Warn("failed to watch cache dir", logger.ErrorField(err))
		watcher.Close()
		return nil
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				name := filepath.Base(event.Name)
				if !strings.HasSuffix(name, ".opus") {
					continue
				}
				r.forget(ctx, strings.TrimSuffix(name, ".opus"))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("cache dir watcher error", logger.ErrorField(err))
			}
		}
	}()

	return watcher
}
