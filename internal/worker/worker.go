package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Ksmashhero06/smart-data-integration-portal/internal/metrics"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/models"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/notifications"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/queue"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/rebuild"
	"github.com/Ksmashhero06/smart-data-integration-portal/pkg/worm"
)

// SystemUser is the audit log actor for background tasks.
const SystemUser = "system"

type RebuildProcessor struct {
	runner  Rebuilder
	queue   queue.Enqueuer
	audit   AuditLog
	metrics *metrics.Metrics
	outPath string
	log     *zap.Logger
}

func NewRebuildProcessor(runner Rebuilder, q queue.Enqueuer, audit AuditLog, m *metrics.Metrics, outPath string, log *zap.Logger) *RebuildProcessor {
	return &RebuildProcessor{
		runner:  runner,
		queue:   q,
		audit:   audit,
		metrics: m,
		outPath: outPath,
		log:     log,
	}
}

func (p *RebuildProcessor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParseRebuildPayload(t)
	if err != nil {
		return fmt.Errorf("parse payload: %w: %w", err, asynq.SkipRetry)
	}

	start := time.Now()
	res, err := p.runner.Run(ctx, rebuild.Options{OutPath: p.outPath})
	p.metrics.ObserveRebuild(time.Since(start))
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}

	actor := payload.RequestedBy
	if actor == "" {
		actor = SystemUser
	}
	details := fmt.Sprintf("Blockchain rebuilt (%s): %d blocks", payload.Reason, len(res.Blocks))
	if _, err := p.audit.Append(actor, models.ActionRebuildChain, details); err != nil {
		p.log.Warn("audit rebuild failed", zap.Error(err))
	}

	if res.Archive == nil {
		return nil
	}

	// The archive is already stored; a failed enqueue only defers the
	// integrity check, so it is logged rather than retried.
	verifyTask, err := queue.NewVerifyTask(queue.VerifyPayload{ArchiveID: res.Archive.ID})
	if err != nil {
		return fmt.Errorf("archive %s: create verify task: %w", res.Archive.ID, err)
	}
	if _, err := p.queue.EnqueueContext(ctx, verifyTask); err != nil {
		p.log.Error("enqueue verify task failed, archive integrity check deferred",
			zap.String("archive_id", res.Archive.ID.String()),
			zap.Error(err),
		)
	}
	return nil
}

type VerifyProcessor struct {
	archives ArchiveRepository
	storage  ArchiveStorage
	notifier notifications.NotificationService
	audit    AuditLog
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewVerifyProcessor(archives ArchiveRepository, storage ArchiveStorage, notifier notifications.NotificationService, audit AuditLog, m *metrics.Metrics, log *zap.Logger) *VerifyProcessor {
	return &VerifyProcessor{
		archives: archives,
		storage:  storage,
		notifier: notifier,
		audit:    audit,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// errViolation marks integrity failures; retrying cannot fix them.
var errViolation = errors.New("archive integrity violation")

func (p *VerifyProcessor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParseVerifyPayload(t)
	if err != nil {
		return fmt.Errorf("parse payload: %w: %w", err, asynq.SkipRetry)
	}

	rec, err := p.archives.GetByID(payload.ArchiveID)
	if err != nil {
		return fmt.Errorf("get archive: %w", err)
	}
	if rec.Key == "" || rec.SHA256 == "" {
		return fmt.Errorf("archive %s missing key or hash: %w", rec.ID, asynq.SkipRetry)
	}

	data, err := p.storage.GetArchive(ctx, rec.Key)
	if err != nil {
		return fmt.Errorf("archive download: %w", err)
	}

	if err := checkArchive(rec, data); err != nil {
		p.violation(ctx, rec, err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	if err := p.archives.MarkVerified(rec.ID, models.ArchiveStatusVerified, "", p.now().UTC()); err != nil {
		p.log.Warn("mark verified failed", zap.String("archive_id", rec.ID.String()), zap.Error(err))
	}
	p.metrics.ObserveArchive(string(models.ArchiveStatusVerified))
	return nil
}

// checkArchive re-derives the object digest, every block seal and link,
// and the chain summary recorded at archive time.
func checkArchive(rec models.ArchiveRecord, data []byte) error {
	if err := worm.VerifyObject(data, rec.SHA256); err != nil {
		return fmt.Errorf("%w: %w", errViolation, err)
	}
	blocks, err := rebuild.LoadChain(data)
	if err != nil {
		return fmt.Errorf("%w: %w", errViolation, err)
	}
	if err := worm.VerifyChain(blocks); err != nil {
		return fmt.Errorf("%w: %w", errViolation, err)
	}
	if len(blocks) != rec.ChainLength || blocks[len(blocks)-1].Hash != rec.HeadHash {
		return fmt.Errorf("%w: chain summary differs from archive record", errViolation)
	}
	return nil
}

func (p *VerifyProcessor) violation(ctx context.Context, rec models.ArchiveRecord, cause error) {
	p.log.Error("archive integrity violation detected",
		zap.String("archive_id", rec.ID.String()),
		zap.String("key", rec.Key),
		zap.String("provider", rec.Provider),
		zap.Error(cause),
	)
	p.metrics.ObserveArchive(string(models.ArchiveStatusViolated))
	if err := p.archives.MarkVerified(rec.ID, models.ArchiveStatusViolated, cause.Error(), p.now().UTC()); err != nil {
		p.log.Warn("mark violated failed", zap.String("archive_id", rec.ID.String()), zap.Error(err))
	}
	details := fmt.Sprintf("Archive %s failed verification: %v", rec.Key, cause)
	if _, err := p.audit.Append(SystemUser, models.ActionArchiveViolation, details); err != nil {
		p.log.Warn("audit violation failed", zap.Error(err))
	}
	if err := p.notifier.SendAlert(ctx, "Archive integrity violation", notifications.SeverityCritical, details); err != nil {
		p.log.Error("send alert failed", zap.Error(err))
	}
}

type ArchiveExpireProcessor struct {
	archives ArchiveRepository
	storage  ArchiveStorage
	log      *zap.Logger
	now      func() time.Time
}

func NewArchiveExpireProcessor(archives ArchiveRepository, storage ArchiveStorage, log *zap.Logger) *ArchiveExpireProcessor {
	return &ArchiveExpireProcessor{
		archives: archives,
		storage:  storage,
		log:      log,
		now:      time.Now,
	}
}

func (p *ArchiveExpireProcessor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParseExpirePayload(t)
	if err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}
	if payload.RetentionDays <= 0 {
		return nil
	}

	cutoff := p.now().Add(-time.Duration(payload.RetentionDays) * 24 * time.Hour)
	for _, rec := range p.archives.ListExpired(cutoff) {
		if rec.Key != "" {
			if err := p.storage.DeleteObject(ctx, rec.Key); err != nil {
				p.log.Error("failed to delete archive object", zap.String("key", rec.Key), zap.Error(err))
				continue
			}
		}
		if err := p.archives.MarkExpired(rec.ID); err != nil {
			p.log.Error("failed to mark archive expired", zap.String("archive_id", rec.ID.String()), zap.Error(err))
		}
	}
	return nil
}

// RebuildScheduler enqueues one rebuild per interval and, when a retention
// is configured, one expiry sweep per day.
type RebuildScheduler struct {
	queue         queue.Enqueuer
	log           *zap.Logger
	interval      time.Duration
	retentionDays int
	now           func() time.Time
}

func NewRebuildScheduler(q queue.Enqueuer, log *zap.Logger, interval time.Duration, retentionDays int) *RebuildScheduler {
	return &RebuildScheduler{
		queue:         q,
		log:           log,
		interval:      interval,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

func (s *RebuildScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.schedule(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.schedule(ctx)
		}
	}
}

func (s *RebuildScheduler) schedule(ctx context.Context) {
	now := s.now().UTC()
	queued, err := queue.EnqueueRebuild(ctx, s.queue, queue.RebuildPayload{
		Reason:      "scheduled",
		RequestedAt: now,
	}, s.interval)
	if err != nil {
		s.log.Error("scheduler: enqueue rebuild", zap.Error(err))
	} else if !queued {
		s.log.Debug("scheduler: rebuild already queued for this window")
	}

	if s.retentionDays <= 0 {
		return
	}
	task, err := queue.NewExpireTask(queue.ExpirePayload{RetentionDays: s.retentionDays})
	if err != nil {
		s.log.Error("scheduler: create expire task", zap.Error(err))
		return
	}
	taskID := fmt.Sprintf("expire-%s", now.Format("20060102"))
	if _, err := s.queue.EnqueueContext(ctx, task, asynq.TaskID(taskID)); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return
		}
		s.log.Error("scheduler: enqueue expire", zap.Error(err))
	}
}
