package models

import (
	"time"

	"github.com/google/uuid"
)

type ArchiveStatus string

const (
	ArchiveStatusStored   ArchiveStatus = "stored"
	ArchiveStatusVerified ArchiveStatus = "verified"
	ArchiveStatusViolated ArchiveStatus = "violated"
	ArchiveStatusExpired  ArchiveStatus = "expired"
)

// ArchiveRecord tracks one gzipped blockchain.json uploaded by a rebuild.
type ArchiveRecord struct {
	ID          uuid.UUID     `json:"id"`
	Key         string        `json:"key"`
	Provider    string        `json:"provider"`
	SHA256      string        `json:"sha256"`
	ByteCount   int64         `json:"byte_count"`
	ChainLength int           `json:"chain_length"`
	HeadHash    string        `json:"head_hash"`
	Status      ArchiveStatus `json:"status"`
	ErrMsg      string        `json:"err_msg,omitempty"`
	VerifiedAt  *time.Time    `json:"verified_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}
