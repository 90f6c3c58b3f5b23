package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ksmashhero06/smart-data-integration-portal/internal/models"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/rebuild"
)

// Interfaces for dependency injection to allow testing.

// Rebuilder regenerates and archives the sealed chain.
type Rebuilder interface {
	Run(ctx context.Context, opts rebuild.Options) (rebuild.Result, error)
}

// ArchiveRepository defines access to archive records.
type ArchiveRepository interface {
	GetByID(id uuid.UUID) (models.ArchiveRecord, error)
	MarkVerified(id uuid.UUID, status models.ArchiveStatus, errMsg string, at time.Time) error
	ListExpired(cutoff time.Time) []models.ArchiveRecord
	MarkExpired(id uuid.UUID) error
}

// ArchiveStorage defines object storage access for archived chains.
type ArchiveStorage interface {
	GetArchive(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
}

// AuditLog records worker actions next to user actions.
type AuditLog interface {
	Append(user, action, details string) (models.AuditEntry, error)
}
