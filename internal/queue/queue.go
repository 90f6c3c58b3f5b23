package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TypeChainRebuild  = "chain:rebuild"
	TypeChainVerify   = "chain:verify"
	TypeArchiveExpire = "archive:expire"

	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// RebuildPayload is the task payload for TypeChainRebuild.
type RebuildPayload struct {
	Reason      string    `json:"reason"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// VerifyPayload is the task payload for TypeChainVerify.
type VerifyPayload struct {
	ArchiveID uuid.UUID `json:"archive_id"`
}

// ExpirePayload is the task payload for TypeArchiveExpire.
type ExpirePayload struct {
	RetentionDays int `json:"retention_days"`
}

func NewRebuildTask(p RebuildPayload, opts ...asynq.Option) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal ChainRebuild: %w", err)
	}
	opts = append([]asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(5)}, opts...)
	return asynq.NewTask(TypeChainRebuild, b, opts...), nil
}

// NewVerifyTask runs on the critical queue: a tampered archive should be
// reported before the next rebuild overwrites the evidence.
func NewVerifyTask(p VerifyPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal ChainVerify: %w", err)
	}
	return asynq.NewTask(TypeChainVerify, b, asynq.Queue(QueueCritical)), nil
}

func NewExpireTask(p ExpirePayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal ArchiveExpire: %w", err)
	}
	return asynq.NewTask(TypeArchiveExpire, b, asynq.Queue(QueueLow)), nil
}

func ParseRebuildPayload(t *asynq.Task) (RebuildPayload, error) {
	var p RebuildPayload
	err := json.Unmarshal(t.Payload(), &p)
	return p, err
}

func ParseVerifyPayload(t *asynq.Task) (VerifyPayload, error) {
	var p VerifyPayload
	err := json.Unmarshal(t.Payload(), &p)
	return p, err
}

func ParseExpirePayload(t *asynq.Task) (ExpirePayload, error) {
	var p ExpirePayload
	err := json.Unmarshal(t.Payload(), &p)
	return p, err
}

// Enqueuer is the subset of *asynq.Client producers depend on.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueRebuild enqueues a rebuild that is deduplicated per window of
// RequestedAt: a second request in the same window is dropped and reported
// as false. A zero window disables deduplication.
func EnqueueRebuild(ctx context.Context, q Enqueuer, p RebuildPayload, window time.Duration, opts ...asynq.Option) (bool, error) {
	task, err := NewRebuildTask(p, opts...)
	if err != nil {
		return false, err
	}
	var enqOpts []asynq.Option
	if window > 0 {
		id := fmt.Sprintf("rebuild-%s-%d", p.Reason, p.RequestedAt.Truncate(window).Unix())
		enqOpts = append(enqOpts, asynq.TaskID(id))
	}
	if _, err := q.EnqueueContext(ctx, task, enqOpts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return false, nil
		}
		return false, fmt.Errorf("queue: enqueue rebuild: %w", err)
	}
	return true, nil
}
