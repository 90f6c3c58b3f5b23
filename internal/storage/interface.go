package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Ksmashhero06/smart-data-integration-portal/internal/config"
)

// ObjectMeta describes a stored archive.
type ObjectMeta struct {
	Key      string
	SHA256   string // of the uncompressed content
	Size     int64  // compressed bytes
	Provider string
}

// Backend defines the interface for archive storage systems.
type Backend interface {
	// PutArchive compresses raw and stores it under a content-addressed key.
	// kind is the key prefix (e.g. "blockchain").
	PutArchive(ctx context.Context, kind string, at time.Time, raw []byte) (ObjectMeta, error)

	// GetArchive retrieves and decompresses an archive.
	GetArchive(ctx context.Context, key string) ([]byte, error)

	// DeleteObject removes an archive.
	DeleteObject(ctx context.Context, key string) error

	// Provider returns the name of the storage provider (e.g., "s3", "filesystem").
	Provider() string
}

// New builds the backend selected by cfg.Backend: "fs", "s3", or "multi"
// (S3 primary with filesystem fallback).
func New(ctx context.Context, cfg config.StorageConfig, s3cfg config.S3Config) (Backend, error) {
	switch cfg.Backend {
	case "fs":
		return NewFSStore(cfg.FSRoot)
	case "s3":
		return NewS3Store(ctx, s3cfg, "s3")
	case "multi":
		primary, err := NewS3Store(ctx, s3cfg, "s3")
		if err != nil {
			return nil, err
		}
		fallback, err := NewFSStore(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return NewMultiStore(primary, fallback), nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}
