package moderation

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/angelmondragon/captures-backend/internal/audit"
	"github.com/angelmondragon/captures-backend/internal/captures"
	"github.com/angelmondragon/captures-backend/pkg/auth"
	"github.com/angelmondragon/captures-backend/pkg/db/dbtest"
	"github.com/angelmondragon/captures-backend/pkg/db/models"
	"github.com/angelmondragon/captures-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
	"github.com/angelmondragon/captures-backend/pkg/logger"
	"github.com/angelmondragon/captures-backend/pkg/metrics"
	"github.com/angelmondragon/captures-backend/pkg/outbox"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type harness struct {
	svc   Service
	conn  *gorm.DB
	repo  captures.Repository
	audit audit.Service
}

func newHarness(t *testing.T, opts ...func(*ServiceParams)) *harness {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()
	logg := logger.New(logger.Options{ServiceName: "moderation-test", Output: io.Discard})

	auditSvc, err := audit.NewService(audit.NewRepository(conn))
	require.NoError(t, err)
	repo := captures.NewRepository(conn)

	params := ServiceParams{
		Captures: repo,
		Audit:    auditSvc,
		Tx:       client,
		Outbox:   outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:   logg,
		Metrics:  metrics.NewModerationMetrics(prometheus.NewRegistry()),
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return &harness{svc: svc, conn: conn, repo: repo, audit: auditSvc}
}

func (h *harness) seed(t *testing.T, c models.Capture) *models.Capture {
	t.Helper()
	if c.EventName == "" {
		c.EventName = "Spring Gala"
	}
	if c.BatchKey == "" {
		c.BatchKey = captures.DeriveBatchKey(c.EventName)
	}
	if c.UploadType == "" {
		c.UploadType = enums.UploadTypeDirect
	}
	if c.State == "" {
		c.State = enums.ModerationStatePending
	}
	if c.ImagePath == "" {
		c.ImagePath = "captures/original.jpg"
	}
	require.NoError(t, h.repo.Create(context.Background(), &c))
	return &c
}

func (h *harness) reload(t *testing.T, id int64) *models.Capture {
	t.Helper()
	c, err := h.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (h *harness) ledgerFor(t *testing.T, captureID int64) []models.AuditEntry {
	t.Helper()
	var entries []models.AuditEntry
	for entry, err := range h.audit.Iterate(context.Background(), audit.Filter{CaptureID: &captureID}) {
		require.NoError(t, err)
		entries = append(entries, entry)
	}
	return entries
}

func (h *harness) outboxEvents(t *testing.T) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, h.conn.Order("created_at ASC").Find(&rows).Error)
	return rows
}

func admin(name string) auth.Actor {
	return auth.Actor{ID: uuid.New(), Name: name, Role: enums.ActorRoleAdmin}
}

func TestTransitionPendingToApprovedWritesOneLedgerEntry(t *testing.T) {
	h := newHarness(t)
	actor := admin("Avery")
	capture := h.seed(t, models.Capture{})

	updated, err := h.svc.Transition(context.Background(), TransitionInput{
		CaptureID: capture.ID,
		Target:    enums.ModerationStateApproved,
		Actor:     actor,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ModerationStateApproved, updated.State)
	assert.Equal(t, int64(1), updated.Version)

	entries := h.ledgerFor(t, capture.ID)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, actor.ID, entry.ActorID)
	assert.Equal(t, enums.AuditActionCaptureTransitioned, entry.Action)
	assert.Equal(t, audit.CategoryCaptureManagement, entry.Category)
	require.NotNil(t, entry.FromState)
	require.NotNil(t, entry.ToState)
	assert.Equal(t, enums.ModerationStatePending, *entry.FromState)
	assert.Equal(t, enums.ModerationStateApproved, *entry.ToState)
	assert.Contains(t, entry.Description, "Avery")
	assert.Contains(t, entry.Description, "pending")
	assert.Contains(t, entry.Description, "approved")

	events := h.outboxEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventCaptureTransitioned, events[0].EventType)
	assert.Equal(t, captureAggregateID(capture.ID), events[0].AggregateID)
}

func TestTransitionToDeclinedAlsoEmitsNotificationEvent(t *testing.T) {
	h := newHarness(t)
	capture := h.seed(t, models.Capture{AuthorName: "Jordan"})

	_, err := h.svc.Transition(context.Background(), TransitionInput{
		CaptureID: capture.ID,
		Target:    enums.ModerationStateDeclined,
		Actor:     admin("Avery"),
	})
	require.NoError(t, err)

	events := h.outboxEvents(t)
	require.Len(t, events, 2)
	types := []enums.OutboxEventType{events[0].EventType, events[1].EventType}
	assert.ElementsMatch(t, []enums.OutboxEventType{enums.EventCaptureTransitioned, enums.EventCaptureDeclined}, types)
}

func TestTransitionSameStateIsNoop(t *testing.T) {
	h := newHarness(t)
	capture := h.seed(t, models.Capture{State: enums.ModerationStateApproved})

	got, err := h.svc.Transition(context.Background(), TransitionInput{
		CaptureID: capture.ID,
		Target:    enums.ModerationStateApproved,
		Actor:     admin("Avery"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Version)
	assert.Empty(t, h.ledgerFor(t, capture.ID))
	assert.Empty(t, h.outboxEvents(t))
}

func TestTransitionBetweenTerminalStatesIsAllowed(t *testing.T) {
	h := newHarness(t)
	capture := h.seed(t, models.Capture{State: enums.ModerationStateApproved})

	got, err := h.svc.Transition(context.Background(), TransitionInput{
		CaptureID: capture.ID,
		Target:    enums.ModerationStateDeclined,
		Actor:     admin("Avery"),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ModerationStateDeclined, got.State)
	assert.Len(t, h.ledgerFor(t, capture.ID), 1)
}

func TestTransitionErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	actor := admin("Avery")
	live := h.seed(t, models.Capture{})
	deleted := h.seed(t, models.Capture{Deleted: true})
	stale := int64(3)

	cases := []struct {
		name  string
		input TransitionInput
		code  pkgerrors.Code
	}{
		{"missing capture", TransitionInput{CaptureID: 9999, Target: enums.ModerationStateApproved, Actor: actor}, pkgerrors.CodeNotFound},
		{"deleted capture", TransitionInput{CaptureID: deleted.ID, Target: enums.ModerationStateApproved, Actor: actor}, pkgerrors.CodeInvalidTransition},
		{"pending target", TransitionInput{CaptureID: live.ID, Target: enums.ModerationStatePending, Actor: actor}, pkgerrors.CodeInvalidTransition},
		{"unknown target", TransitionInput{CaptureID: live.ID, Target: "archived", Actor: actor}, pkgerrors.CodeInvalidTransition},
		{"empty target", TransitionInput{CaptureID: live.ID, Actor: actor}, pkgerrors.CodeValidation},
		{"bad id", TransitionInput{CaptureID: 0, Target: enums.ModerationStateApproved, Actor: actor}, pkgerrors.CodeValidation},
		{"anonymous actor", TransitionInput{CaptureID: live.ID, Target: enums.ModerationStateApproved}, pkgerrors.CodeValidation},
		{"stale version", TransitionInput{CaptureID: live.ID, Target: enums.ModerationStateApproved, Actor: actor, ExpectedVersion: &stale}, pkgerrors.CodeConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Transition(ctx, tc.input)
			require.Error(t, err)
			assert.Equal(t, tc.code, pkgerrors.CodeOf(err))
		})
	}

	assert.Equal(t, enums.ModerationStatePending, h.reload(t, live.ID).State)
	assert.Empty(t, h.ledgerFor(t, live.ID))
}

func TestConcurrentTransitionsExactlyOneWins(t *testing.T) {
	h := newHarness(t)
	capture := h.seed(t, models.Capture{})
	expected := capture.Version

	targets := []enums.ModerationState{enums.ModerationStateApproved, enums.ModerationStateDeclined}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target enums.ModerationState) {
			defer wg.Done()
			_, errs[i] = h.svc.Transition(context.Background(), TransitionInput{
				CaptureID:       capture.ID,
				Target:          target,
				Actor:           admin("Admin"),
				ExpectedVersion: &expected,
			})
		}(i, target)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)

	entries := h.ledgerFor(t, capture.ID)
	require.Len(t, entries, 1)
	stored := h.reload(t, capture.ID)
	assert.Equal(t, *entries[0].ToState, stored.State)
	assert.Equal(t, int64(1), stored.Version)
}

type failingAudit struct{}

func (failingAudit) AppendTx(context.Context, *gorm.DB, audit.Entry) (*models.AuditEntry, error) {
	return nil, pkgerrors.New(pkgerrors.CodeStorageUnavailable, "ledger offline")
}

func TestTransitionRollsBackWhenLedgerAppendFails(t *testing.T) {
	h := newHarness(t, func(p *ServiceParams) { p.Audit = failingAudit{} })
	capture := h.seed(t, models.Capture{})

	_, err := h.svc.Transition(context.Background(), TransitionInput{
		CaptureID: capture.ID,
		Target:    enums.ModerationStateApproved,
		Actor:     admin("Avery"),
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStorageUnavailable))
	require.True(t, pkgerrors.Retryable(err))

	stored := h.reload(t, capture.ID)
	assert.Equal(t, enums.ModerationStatePending, stored.State)
	assert.Equal(t, int64(0), stored.Version)
	assert.Empty(t, h.outboxEvents(t))
}

func TestPromoteBatchIsAllOrNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	actor := admin("Avery")

	a := h.seed(t, models.Capture{EventName: "Gala Night", UploadType: enums.UploadTypeBatch, State: enums.ModerationStateApproved})
	b := h.seed(t, models.Capture{EventName: "Gala Night", UploadType: enums.UploadTypeBatch, State: enums.ModerationStateApproved})
	c := h.seed(t, models.Capture{EventName: "Gala Night", UploadType: enums.UploadTypeBatch, State: enums.ModerationStatePending})

	result, err := h.svc.PromoteBatch(ctx, "gala-night", actor)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodePartialBatch, pkgerrors.CodeOf(err))
	assert.Equal(t, []int64{c.ID}, result.Blocked)
	assert.Empty(t, result.Promoted)
	for _, id := range []int64{a.ID, b.ID, c.ID} {
		stored := h.reload(t, id)
		assert.Equal(t, enums.UploadTypeBatch, stored.UploadType)
	}
	assert.Empty(t, h.outboxEvents(t))

	_, err = h.svc.Transition(ctx, TransitionInput{CaptureID: c.ID, Target: enums.ModerationStateApproved, Actor: actor})
	require.NoError(t, err)

	result, err = h.svc.PromoteBatch(ctx, "Gala Night", actor)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID, c.ID}, result.Promoted)
	assert.Empty(t, result.Blocked)
	for _, id := range result.Promoted {
		stored := h.reload(t, id)
		assert.Equal(t, enums.UploadTypeDirect, stored.UploadType)
		promotions := 0
		for _, entry := range h.ledgerFor(t, id) {
			if entry.Action == enums.AuditActionCapturePromoted {
				promotions++
				assert.Equal(t, audit.CategoryBatchManagement, entry.Category)
			}
		}
		assert.Equal(t, 1, promotions)
	}
}

// racingRepo loses the CAS on its nth call, as if another writer got there
// first.
type racingRepo struct {
	captures.Repository
	calls  *int
	loseAt int
}

func (r racingRepo) WithTx(tx *gorm.DB) captures.Repository {
	return racingRepo{Repository: r.Repository.WithTx(tx), calls: r.calls, loseAt: r.loseAt}
}

func (r racingRepo) CompareAndSwap(ctx context.Context, id, expected int64, updates map[string]any) (bool, error) {
	*r.calls++
	if *r.calls == r.loseAt {
		return false, nil
	}
	return r.Repository.CompareAndSwap(ctx, id, expected, updates)
}

func TestPromoteBatchRollsBackWhenAMemberLosesItsRace(t *testing.T) {
	calls := 0
	h := newHarness(t, func(p *ServiceParams) {
		p.Captures = racingRepo{Repository: p.Captures, calls: &calls, loseAt: 2}
	})
	members := make([]*models.Capture, 3)
	for i := range members {
		members[i] = h.seed(t, models.Capture{EventName: "Harbour Run", UploadType: enums.UploadTypeBatch, State: enums.ModerationStateApproved})
	}

	_, err := h.svc.PromoteBatch(context.Background(), "harbour-run", admin("Avery"))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
	assert.Equal(t, 2, calls)

	for _, m := range members {
		stored := h.reload(t, m.ID)
		assert.Equal(t, enums.UploadTypeBatch, stored.UploadType)
		assert.Equal(t, m.Version, stored.Version)
		assert.Empty(t, h.ledgerFor(t, m.ID))
	}
	assert.Empty(t, h.outboxEvents(t))
}

func TestPromoteBatchIgnoresDeletedMembers(t *testing.T) {
	h := newHarness(t)
	kept := h.seed(t, models.Capture{EventName: "Expo", UploadType: enums.UploadTypeBatch, State: enums.ModerationStateApproved})
	h.seed(t, models.Capture{EventName: "Expo", UploadType: enums.UploadTypeBatch, State: enums.ModerationStatePending, Deleted: true})

	result, err := h.svc.PromoteBatch(context.Background(), "expo", admin("Avery"))
	require.NoError(t, err)
	assert.Equal(t, []int64{kept.ID}, result.Promoted)
}

func TestPromoteBatchEmptyGroupIsNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.PromoteBatch(context.Background(), "nothing-here", admin("Avery"))
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	_, err = h.svc.PromoteBatch(context.Background(), "   ", admin("Avery"))
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestSoftDeleteThenRestoreKeepsState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	actor := admin("Avery")
	h.seed(t, models.Capture{ID: 7, State: enums.ModerationStateApproved})

	deleted, err := h.svc.SoftDelete(ctx, SoftDeleteInput{CaptureID: 7, Actor: actor, Reason: "disagreement"})
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)
	assert.Equal(t, enums.ModerationStateApproved, deleted.State)
	require.NotNil(t, deleted.DeletedReason)
	assert.Equal(t, "disagreement", *deleted.DeletedReason)

	restored, err := h.svc.Restore(ctx, RestoreInput{CaptureID: 7, Actor: actor})
	require.NoError(t, err)
	assert.False(t, restored.Deleted)
	assert.Equal(t, enums.ModerationStateApproved, restored.State)
	assert.Nil(t, restored.DeletedReason)

	entries := h.ledgerFor(t, 7)
	require.Len(t, entries, 2)
	assert.Equal(t, enums.AuditActionCaptureDeleted, entries[0].Action)
	assert.Equal(t, "Deleted a capture with id 7 as disagreement", entries[0].Description)
	assert.Equal(t, enums.AuditActionCaptureRestored, entries[1].Action)
}

func TestRestoreTwiceIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	actor := admin("Avery")
	capture := h.seed(t, models.Capture{Deleted: true, State: enums.ModerationStateDeclined})

	first, err := h.svc.Restore(ctx, RestoreInput{CaptureID: capture.ID, Actor: actor})
	require.NoError(t, err)
	second, err := h.svc.Restore(ctx, RestoreInput{CaptureID: capture.ID, Actor: actor})
	require.NoError(t, err)

	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.State, second.State)
	assert.Len(t, h.ledgerFor(t, capture.ID), 1)
}

func TestSoftDeleteTwiceIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	capture := h.seed(t, models.Capture{})

	_, err := h.svc.SoftDelete(ctx, SoftDeleteInput{CaptureID: capture.ID, Actor: admin("A"), Reason: "duplicate"})
	require.NoError(t, err)
	again, err := h.svc.SoftDelete(ctx, SoftDeleteInput{CaptureID: capture.ID, Actor: admin("B"), Reason: "duplicate"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), again.Version)
	assert.Len(t, h.ledgerFor(t, capture.ID), 1)
}

func TestSoftDeleteRequiresReason(t *testing.T) {
	h := newHarness(t)
	capture := h.seed(t, models.Capture{})

	_, err := h.svc.SoftDelete(context.Background(), SoftDeleteInput{CaptureID: capture.ID, Actor: admin("A"), Reason: "  "})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = h.svc.SoftDelete(context.Background(), SoftDeleteInput{CaptureID: 4040, Actor: admin("A"), Reason: "spam"})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

type failingOutbox struct{}

func (failingOutbox) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox insert failed")
}

func TestSoftDeleteRollsBackWhenOutboxFails(t *testing.T) {
	h := newHarness(t, func(p *ServiceParams) { p.Outbox = failingOutbox{} })
	capture := h.seed(t, models.Capture{})

	_, err := h.svc.SoftDelete(context.Background(), SoftDeleteInput{CaptureID: capture.ID, Actor: admin("A"), Reason: "spam"})
	require.Error(t, err)

	stored := h.reload(t, capture.ID)
	assert.False(t, stored.Deleted)
	assert.Empty(t, h.ledgerFor(t, capture.ID))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}
