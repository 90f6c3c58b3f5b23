// Package db persists portal state as flat JSON files in one data
// directory. Every write goes through a temp file and a rename, so a crash
// never leaves a half-written file behind.
package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/Ksmashhero06/smart-data-integration-portal/internal/config"
)

// File names inside the data directory.
const (
	UsersFile      = "users.json"
	ReportsFile    = "annual_reports.json"
	AuditLogsFile  = "audit_logs.json"
	AttackFile     = "attack_results.json"
	SnapshotFile   = "snapshots.json"
	ArchivesFile   = "archives.json"
	BlockchainFile = "blockchain.json"
)

type DB struct {
	Dir       string
	Users     *UserRepository
	Reports   *ReportRepository
	AuditLogs *AuditLogRepository
	Results   *ResultRepository
	Archives  *ArchiveRepository
}

// Open loads every repository from cfg.Dir, creating the directory and
// seeding default users on first start.
func Open(cfg config.DataConfig, log *zap.Logger) (*DB, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("db: create data dir: %w", err)
	}
	users, err := NewUserRepository(filepath.Join(cfg.Dir, UsersFile), log)
	if err != nil {
		return nil, err
	}
	reports, err := NewReportRepository(filepath.Join(cfg.Dir, ReportsFile), log)
	if err != nil {
		return nil, err
	}
	audit, err := NewAuditLogRepository(filepath.Join(cfg.Dir, AuditLogsFile), log)
	if err != nil {
		return nil, err
	}
	archives, err := NewArchiveRepository(filepath.Join(cfg.Dir, ArchivesFile), log)
	if err != nil {
		return nil, err
	}
	return &DB{
		Dir:       cfg.Dir,
		Users:     users,
		Reports:   reports,
		AuditLogs: audit,
		Results:   NewResultRepository(filepath.Join(cfg.Dir, AttackFile), filepath.Join(cfg.Dir, SnapshotFile), log),
		Archives:  archives,
	}, nil
}

// BlockchainPath is where the offline rebuild writes the sealed chain.
func (db *DB) BlockchainPath() string {
	return filepath.Join(db.Dir, BlockchainFile)
}

// stamp identifies one on-disk version of a file. The api and the worker
// share the data directory, so repositories reload whenever it changes.
type stamp struct {
	mod  time.Time
	size int64
}

func statStamp(path string) stamp {
	fi, err := os.Stat(path)
	if err != nil {
		return stamp{}
	}
	return stamp{mod: fi.ModTime(), size: fi.Size()}
}

func (s stamp) missing() bool { return s.mod.IsZero() }

// writeJSON atomically replaces path with the indented JSON form of v.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("db: encode %s: %w", filepath.Base(path), err)
	}
	return WriteFileAtomic(path, data, 0o644)
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("db: mkdir: %w", err)
	}
	tmpFile, err := os.CreateTemp(dir, ".portal-*.tmp")
	if err != nil {
		return fmt.Errorf("db: create temp: %w", err)
	}
	tmpName := tmpFile.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if err := tmpFile.Chmod(perm); err != nil {
		tmpFile.Close()
		return fmt.Errorf("db: chmod: %w", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("db: write temp: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("db: sync temp: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("db: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("db: rename: %w", err)
	}
	return nil
}

// readJSON decodes path into v. found is false when the file does not
// exist. A file that exists but does not decode is moved aside to
// <path>.corrupt-<unix> and reported as not found, so the caller can start
// from its defaults without destroying the original bytes.
func readJSON(path string, v any, log *zap.Logger) (found bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("db: read %s: %w", filepath.Base(path), err)
	}
	if jsonErr := json.Unmarshal(data, v); jsonErr != nil {
		quarantine := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if err := os.Rename(path, quarantine); err != nil {
			return false, fmt.Errorf("db: quarantine %s: %w", filepath.Base(path), err)
		}
		log.Warn("corrupt data file moved aside",
			zap.String("file", path),
			zap.String("moved_to", quarantine),
			zap.Error(jsonErr),
		)
		return false, nil
	}
	return true, nil
}
