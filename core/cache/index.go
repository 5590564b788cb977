package cache

import (
	"context"
	"fmt"
	"time"

	"JamFM/logger"
	"JamFM/model"

	"github.com/redis/go-redis/v9"
)

// ArtifactIndex tracks artifact metadata so the reaper can find expired
// local files without scanning the disk. The index is advisory: the file or
// object itself is authoritative, and a lost index entry only costs a scan.
type ArtifactIndex interface {
	Record(ctx context.Context, artifact *model.CacheArtifact) error
	Forget(ctx context.Context, trackID string) error
	ExpiredBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

const (
	artifactKeyPrefix = "artifact:"
	artifactExpirySet = "artifact_expiry"
)

// RedisArtifactIndex stores artifact metadata in a hash per track plus a
// sorted set scored by expiry for the reaper sweep.
type RedisArtifactIndex struct {
	client *redis.Client
}

// NewRedisArtifactIndex creates a new RedisArtifactIndex.
func NewRedisArtifactIndex(client *redis.Client) *RedisArtifactIndex {
	return &RedisArtifactIndex{client: client}
}

func artifactKey(trackID string) string {
	return artifactKeyPrefix + trackID
}

// Record writes the artifact metadata and its expiry score.
func (i *RedisArtifactIndex) Record(ctx context.Context, artifact *model.CacheArtifact) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := artifactKey(artifact.TrackID)
	err := i.client.HSet(ctx, key, map[string]interface{}{
		"storageTier": artifact.StorageTier,
		"pathOrKey":   artifact.PathOrKey,
		"encodedAt":   artifact.EncodedAt.Unix(),
		"expiresAt":   artifact.ExpiresAt.Unix(),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to record artifact %s: %w", artifact.TrackID, err)
	}

	err = i.client.ZAdd(ctx, artifactExpirySet, redis.Z{
		Score:  float64(artifact.ExpiresAt.Unix()),
		Member: artifact.TrackID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to index artifact expiry %s: %w", artifact.TrackID, err)
	}

	logger.Debug("artifact indexed",
		logger.String("trackId", artifact.TrackID),
		logger.String("tier", artifact.StorageTier))
	return nil
}

// Forget drops the artifact from the index.
func (i *RedisArtifactIndex) Forget(ctx context.Context, trackID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := i.client.Del(ctx, artifactKey(trackID)).Err(); err != nil {
		return fmt.Errorf("failed to forget artifact %s: %w", trackID, err)
	}
	if err := i.client.ZRem(ctx, artifactExpirySet, trackID).Err(); err != nil {
		return fmt.Errorf("failed to remove artifact expiry %s: %w", trackID, err)
	}
	return nil
}

// ExpiredBefore returns the track IDs whose artifacts expired before cutoff.
func (i *RedisArtifactIndex) ExpiredBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	ids, err := i.client.ZRangeByScore(ctx, artifactExpirySet, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query expired artifacts: %w", err)
	}
	return ids, nil
}
