package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"JamFM/config"
	"JamFM/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var minioClient *minio.Client

// InitMinio initializes the MinIO client and makes sure the bucket exists.
// A missing endpoint disables the object tier entirely.
func InitMinio(cfg *config.Config) error {
	if cfg.MinioEndpoint == "" {
		logger.Info("object tier disabled, no MinIO endpoint configured")
		return nil
	}

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{
			Region: cfg.MinioRegion,
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("bucket created", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	logger.Info("MinIO client initialized",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))
	return nil
}

// GetMinioClient returns the shared MinIO client, nil when the tier is disabled.
func GetMinioClient() *minio.Client {
	return minioClient
}

// OpusStore is the MinIO-backed object tier for transcoded Opus artifacts.
type OpusStore struct {
	client    *minio.Client
	bucket    string
	prefix    string
	signedTTL time.Duration
}

// NewOpusStore builds an OpusStore from the shared client. Returns nil when
// the object tier is disabled so callers can treat the tier as absent.
func NewOpusStore(cfg *config.Config) *OpusStore {
	if minioClient == nil {
		return nil
	}
	return &OpusStore{
		client:    minioClient,
		bucket:    cfg.MinioBucket,
		prefix:    strings.Trim(cfg.MinioPrefix, "/"),
		signedTTL: time.Duration(cfg.SignedURLTTL) * time.Second,
	}
}

// ObjectKey maps a track ID to its object key inside the bucket.
func (s *OpusStore) ObjectKey(trackID string) string {
	filename := trackID + ".opus"
	if s.prefix == "" {
		return filename
	}
	return s.prefix + "/" + filename
}

// Put uploads an artifact to the bucket.
func (s *OpusStore) Put(ctx context.Context, key string, reader io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: "audio/opus",
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}
	return nil
}

// Stat reports whether an object exists and when it was last written.
// A missing object is not an error.
func (s *OpusStore) Stat(ctx context.Context, key string) (time.Time, bool, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to stat object %s: %w", key, err)
	}
	return info.LastModified, true, nil
}

// SignedURL presigns a GET for the object.
func (s *OpusStore) SignedURL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.signedTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %w", key, err)
	}
	return u.String(), nil
}

// Remove deletes an object. Missing objects are ignored.
func (s *OpusStore) Remove(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
			return nil
		}
		return fmt.Errorf("failed to remove object %s: %w", key, err)
	}
	return nil
}
