// Package rebuild regenerates the sealed report chain from the report
// registry, writes it next to the registry and archives a compressed copy.
package rebuild

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ksmashhero06/smart-data-integration-portal/internal/contract"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/db"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/models"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/storage"
	"github.com/Ksmashhero06/smart-data-integration-portal/pkg/worm"
)

// ArchiveKind prefixes every archived chain object key.
const ArchiveKind = "blockchain"

// ReportSource is the registry the chain is rebuilt from.
type ReportSource interface {
	Snapshot() *models.Registry
	SetHashes(hashes map[string]string) error
}

// ArchiveRecorder persists metadata about uploaded archives.
type ArchiveRecorder interface {
	Create(rec models.ArchiveRecord) error
}

type Runner struct {
	reports  ReportSource
	store    storage.Backend
	archives ArchiveRecorder
	log      *zap.Logger
	now      func() time.Time
}

// NewRunner wires a runner. store and archives may both be nil, in which
// case the chain is only written to disk.
func NewRunner(reports ReportSource, store storage.Backend, archives ArchiveRecorder, log *zap.Logger) *Runner {
	return &Runner{
		reports:  reports,
		store:    store,
		archives: archives,
		log:      log,
		now:      time.Now,
	}
}

type Options struct {
	// GenesisTimestamp pins the genesis block; nil uses the current time.
	GenesisTimestamp *float64
	// OutPath receives the indented blockchain.json.
	OutPath string
}

type Result struct {
	Blocks  []worm.Block
	OutPath string
	// Archive is nil when no storage backend is configured.
	Archive *models.ArchiveRecord
}

// Head returns the hash of the last sealed block.
func (r Result) Head() string {
	if len(r.Blocks) == 0 {
		return ""
	}
	return r.Blocks[len(r.Blocks)-1].Hash
}

// Entries converts the registry, in insertion order, into sealing input.
// A missing report type falls back to the default type.
func Entries(reg *models.Registry) []worm.Entry {
	out := make([]worm.Entry, 0, reg.Len())
	for _, e := range reg.Entries() {
		rep := e.Report
		reportType := rep.ReportType
		if reportType == "" {
			reportType = contract.DefaultReportType
		}
		out = append(out, worm.Entry{
			ReportID:       e.ID,
			Timestamp:      rep.Timestamp,
			Data:           rep.Data,
			Category:       rep.Category,
			ReportType:     reportType,
			FromDate:       rep.FromDate,
			ToDate:         rep.ToDate,
			Department:     rep.Department,
			Author:         rep.Author,
			Target:         rep.Target,
			TargetUsername: rep.TargetUsername,
		})
	}
	return out
}

// Run rebuilds the chain from a registry snapshot. Archive failures are
// returned after the local chain and registry hashes have been written.
func (r *Runner) Run(ctx context.Context, opts Options) (Result, error) {
	if opts.OutPath == "" {
		return Result{}, fmt.Errorf("rebuild: output path is required")
	}
	start := r.now()
	genesisTS := models.EpochSeconds(start)
	if opts.GenesisTimestamp != nil {
		genesisTS = *opts.GenesisTimestamp
	}

	reg := r.reports.Snapshot()
	blocks, err := worm.Build(genesisTS, Entries(reg))
	if err != nil {
		return Result{}, fmt.Errorf("rebuild: build chain: %w", err)
	}

	raw, err := json.MarshalIndent(blocks, "", "    ")
	if err != nil {
		return Result{}, fmt.Errorf("rebuild: encode chain: %w", err)
	}
	if err := db.WriteFileAtomic(opts.OutPath, raw, 0o644); err != nil {
		return Result{}, fmt.Errorf("rebuild: write chain: %w", err)
	}

	hashes := make(map[string]string, len(blocks)-1)
	for _, b := range blocks[1:] {
		hashes[b.ReportID] = b.Hash
	}
	if err := r.reports.SetHashes(hashes); err != nil {
		return Result{}, fmt.Errorf("rebuild: update registry hashes: %w", err)
	}

	res := Result{Blocks: blocks, OutPath: opts.OutPath}
	r.log.Info("chain rebuilt",
		zap.Int("chain_length", len(blocks)),
		zap.String("head_hash", res.Head()),
		zap.String("out", opts.OutPath),
	)

	if r.store == nil {
		return res, nil
	}
	rec, err := r.archive(ctx, raw, res, start)
	if err != nil {
		return res, err
	}
	res.Archive = &rec
	return res, nil
}

func (r *Runner) archive(ctx context.Context, raw []byte, res Result, at time.Time) (models.ArchiveRecord, error) {
	meta, err := r.store.PutArchive(ctx, ArchiveKind, at, raw)
	if err != nil {
		return models.ArchiveRecord{}, fmt.Errorf("rebuild: archive chain: %w", err)
	}
	rec := models.ArchiveRecord{
		ID:          uuid.New(),
		Key:         meta.Key,
		Provider:    meta.Provider,
		SHA256:      meta.SHA256,
		ByteCount:   meta.Size,
		ChainLength: len(res.Blocks),
		HeadHash:    res.Head(),
		Status:      models.ArchiveStatusStored,
		CreatedAt:   at.UTC(),
	}
	if r.archives != nil {
		if err := r.archives.Create(rec); err != nil {
			return models.ArchiveRecord{}, fmt.Errorf("rebuild: record archive: %w", err)
		}
	}
	r.log.Info("chain archived",
		zap.String("archive_id", rec.ID.String()),
		zap.String("key", rec.Key),
		zap.String("provider", rec.Provider),
	)
	return rec, nil
}

// LoadChain reads a sealed chain written by Run.
func LoadChain(raw []byte) ([]worm.Block, error) {
	var blocks []worm.Block
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, fmt.Errorf("rebuild: decode chain: %w", err)
	}
	return blocks, nil
}
