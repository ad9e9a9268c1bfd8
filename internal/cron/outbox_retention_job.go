package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/captures-backend/pkg/logger"
	"gorm.io/gorm"
)

const (
	outboxRetentionJobName = "outbox_retention"
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDLQRetention    = 90 * 24 * time.Hour
	defaultPruneChunk      = 1000
)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxRetentionRepo
	// Retention applies to published rows, DLQRetention to dead letters.
	Retention    time.Duration
	DLQRetention time.Duration
	ChunkSize    int
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
	DeleteDeadLettersBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

// NewOutboxRetentionJob prunes published outbox rows and old dead letters.
// Rows still waiting to be published are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	j := &outboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		retention:    params.Retention,
		dlqRetention: params.DLQRetention,
		chunk:        params.ChunkSize,
		now:          time.Now,
	}
	if j.retention <= 0 {
		j.retention = defaultOutboxRetention
	}
	if j.dlqRetention <= 0 {
		j.dlqRetention = defaultDLQRetention
	}
	if j.chunk <= 0 {
		j.chunk = defaultPruneChunk
	}
	return j, nil
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	repo         outboxRetentionRepo
	retention    time.Duration
	dlqRetention time.Duration
	chunk        int
	now          func() time.Time
}

type pruneFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)

func (j *outboxRetentionJob) Name() string { return outboxRetentionJobName }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	published, err := j.prune(ctx, j.repo.DeletePublishedBefore, now.Add(-j.retention))
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	dead, err := j.prune(ctx, j.repo.DeleteDeadLettersBefore, now.Add(-j.dlqRetention))
	if err != nil {
		return fmt.Errorf("dlq retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"published_deleted":    published,
		"dead_letters_deleted": dead,
		"retention":            j.retention.String(),
		"dlq_retention":        j.dlqRetention.String(),
	}), "outbox retention cleanup complete")
	return nil
}

// prune deletes in chunks, one transaction each, until a chunk comes back
// short. Row locks never outlive a single chunk.
func (j *outboxRetentionJob) prune(ctx context.Context, del pruneFunc, cutoff time.Time) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = del(ctx, tx, cutoff, j.chunk)
			return err
		})
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(j.chunk) {
			return total, nil
		}
	}
}
