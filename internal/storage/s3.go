// Package storage archives sealed chains to an S3-compatible object store or
// the local filesystem. Works with any S3-compatible provider: AWS, Garage,
// MinIO, Cloudflare R2, etc.
// Multi-provider failover: if the primary upload fails, it retries on secondary
// providers in order until one succeeds.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Ksmashhero06/smart-data-integration-portal/internal/config"
)

// S3Store wraps an S3 client for a specific bucket / provider.
type S3Store struct {
	client       *s3.Client
	bucket       string
	storageClass string
	provider     string
}

// NewS3Store creates a store from config and makes sure the bucket exists.
func NewS3Store(ctx context.Context, cfg config.S3Config, provider string) (*S3Store, error) {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle: cfg.ForcePathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	store := &S3Store{
		client:       s3.New(opts),
		bucket:       cfg.Bucket,
		storageClass: cfg.StorageClass,
		provider:     provider,
	}
	if err := store.ensureBucketExists(ctx); err != nil {
		return nil, fmt.Errorf("storage: ensure bucket exists: %w", err)
	}
	return store, nil
}

func (s *S3Store) ensureBucketExists(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return err
	}
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Provider returns the human-readable provider label.
func (s *S3Store) Provider() string { return s.provider }

// PutArchive compresses raw and uploads it. The key is content-addressed, so
// repeating an upload is idempotent.
func (s *S3Store) PutArchive(ctx context.Context, kind string, at time.Time, raw []byte) (ObjectMeta, error) {
	compressed, meta, err := PrepareBlob(raw, kind, at)
	if err != nil {
		return ObjectMeta{}, err
	}
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(meta.Key),
		Body:          bytes.NewReader(compressed),
		ContentLength: aws.Int64(meta.Size),
		ContentType:   aws.String("application/json"),
		Metadata:      map[string]string{"sha256": meta.SHA256},
	}
	if s.storageClass != "" {
		in.StorageClass = types.StorageClass(s.storageClass)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return ObjectMeta{}, fmt.Errorf("storage: put object: %w", err)
	}
	meta.Provider = s.provider
	return meta, nil
}

// GetArchive downloads and decompresses a stored archive.
func (s *S3Store) GetArchive(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("storage: get object: %w", err)
	}
	defer out.Body.Close()
	return DecompressBlob(out.Body)
}

func (s *S3Store) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("storage: delete: %w", err)
	}
	return nil
}

// ── Multi-provider failover ───────────────────────────────────────────────────

// MultiStore tries providers in order and returns on first success.
type MultiStore struct {
	providers []Backend
}

// NewMultiStore creates a MultiStore from a list of backends (primary first).
func NewMultiStore(providers ...Backend) *MultiStore {
	return &MultiStore{providers: providers}
}

func (m *MultiStore) Provider() string { return "multi" }

// PutArchive uploads to the first available provider. The returned meta
// names the provider that accepted the object.
func (m *MultiStore) PutArchive(ctx context.Context, kind string, at time.Time, raw []byte) (ObjectMeta, error) {
	var lastErr error
	for _, p := range m.providers {
		meta, err := p.PutArchive(ctx, kind, at, raw)
		if err == nil {
			return meta, nil
		}
		lastErr = err
	}
	return ObjectMeta{}, fmt.Errorf("storage: all providers failed, last error: %w", lastErr)
}

// GetArchive fetches from the first provider that has the object.
func (m *MultiStore) GetArchive(ctx context.Context, key string) ([]byte, error) {
	var lastErr error
	for _, p := range m.providers {
		data, err := p.GetArchive(ctx, key)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("storage: all providers failed: %w", lastErr)
}

// DeleteObject deletes from all providers (best-effort).
func (m *MultiStore) DeleteObject(ctx context.Context, key string) error {
	var lastErr error
	for _, p := range m.providers {
		if err := p.DeleteObject(ctx, key); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
