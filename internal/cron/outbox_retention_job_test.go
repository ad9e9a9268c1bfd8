package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/captures-backend/pkg/db/dbtest"
	"github.com/angelmondragon/captures-backend/pkg/db/models"
	"github.com/angelmondragon/captures-backend/pkg/enums"
	"github.com/angelmondragon/captures-backend/pkg/logger"
	"github.com/angelmondragon/captures-backend/pkg/outbox"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestOutboxRetentionJobCutoffs(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{}
	job := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{Retention: 48 * time.Hour, DLQRetention: 240 * time.Hour})
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, []time.Time{now.Add(-48 * time.Hour)}, repo.publishedCutoffs)
	require.Equal(t, []time.Time{now.Add(-240 * time.Hour)}, repo.deadCutoffs)
}

func TestOutboxRetentionJobDefaults(t *testing.T) {
	job := newOutboxRetentionJob(t, &fakeOutboxRetentionRepo{}, OutboxRetentionJobParams{})
	require.Equal(t, defaultOutboxRetention, job.retention)
	require.Equal(t, defaultDLQRetention, job.dlqRetention)
	require.Equal(t, defaultPruneChunk, job.chunk)
	require.Equal(t, outboxRetentionJobName, job.Name())
}

func TestOutboxRetentionJobLoopsUntilShortChunk(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{published: []int64{3, 3, 1}}
	job := newOutboxRetentionJob(t, repo, OutboxRetentionJobParams{ChunkSize: 3})

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, repo.publishedCutoffs, 3)
	require.Len(t, repo.deadCutoffs, 1)
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	job := newOutboxRetentionJob(t, &fakeOutboxRetentionRepo{err: errors.New("boom")}, OutboxRetentionJobParams{})
	require.ErrorContains(t, job.Run(context.Background()), "outbox retention: boom")
}

func TestOutboxRetentionJobAgainstSQLite(t *testing.T) {
	client := dbtest.Client(t)
	conn := client.DB()
	old := time.Now().UTC().Add(-72 * time.Hour)
	recent := time.Now().UTC().Add(-time.Hour)
	rows := []models.OutboxEvent{
		{EventType: enums.EventCaptureTransitioned, AggregateType: enums.AggregateCapture, AggregateID: "1", Payload: []byte(`{}`), PublishedAt: &old},
		{EventType: enums.EventCaptureTransitioned, AggregateType: enums.AggregateCapture, AggregateID: "2", Payload: []byte(`{}`), PublishedAt: &old},
		{EventType: enums.EventCaptureTransitioned, AggregateType: enums.AggregateCapture, AggregateID: "3", Payload: []byte(`{}`), PublishedAt: &recent},
		{EventType: enums.EventCaptureDeleted, AggregateType: enums.AggregateCapture, AggregateID: "4", Payload: []byte(`{}`)},
	}
	require.NoError(t, conn.Create(&rows).Error)
	letters := []models.OutboxDLQ{
		{EventID: uuid.New(), EventType: enums.EventCaptureDeleted, AggregateType: enums.AggregateCapture, AggregateID: "5", Payload: []byte(`{}`), ErrorReason: enums.OutboxDLQReasonMaxAttempts, AttemptCount: 10, FailedAt: old},
		{EventID: uuid.New(), EventType: enums.EventCaptureDeleted, AggregateType: enums.AggregateCapture, AggregateID: "6", Payload: []byte(`{}`), ErrorReason: enums.OutboxDLQReasonMaxAttempts, AttemptCount: 10, FailedAt: recent},
	}
	require.NoError(t, conn.Create(&letters).Error)

	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:       testLogger(),
		DB:           client,
		Repository:   outbox.NewRepository(conn),
		Retention:    24 * time.Hour,
		DLQRetention: 48 * time.Hour,
		ChunkSize:    1,
	})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Order("aggregate_id").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	require.Equal(t, "3", remaining[0].AggregateID)
	require.Equal(t, "4", remaining[1].AggregateID)

	var kept []models.OutboxDLQ
	require.NoError(t, conn.Find(&kept).Error)
	require.Len(t, kept, 1)
	require.Equal(t, "6", kept[0].AggregateID)
}

func newOutboxRetentionJob(t *testing.T, repo *fakeOutboxRetentionRepo, params OutboxRetentionJobParams) *outboxRetentionJob {
	t.Helper()
	params.Logger = testLogger()
	params.DB = passthroughTx{}
	params.Repository = repo
	jobIface, err := NewOutboxRetentionJob(params)
	require.NoError(t, err)
	job, ok := jobIface.(*outboxRetentionJob)
	require.True(t, ok)
	return job
}

// fakeOutboxRetentionRepo hands out the queued published counts in order and
// zero once they run out.
type fakeOutboxRetentionRepo struct {
	published        []int64
	publishedCutoffs []time.Time
	deadCutoffs      []time.Time
	err              error
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, _ int) (int64, error) {
	f.publishedCutoffs = append(f.publishedCutoffs, cutoff)
	if f.err != nil {
		return 0, f.err
	}
	if len(f.published) == 0 {
		return 0, nil
	}
	n := f.published[0]
	f.published = f.published[1:]
	return n, nil
}

func (f *fakeOutboxRetentionRepo) DeleteDeadLettersBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, _ int) (int64, error) {
	f.deadCutoffs = append(f.deadCutoffs, cutoff)
	return 0, f.err
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
