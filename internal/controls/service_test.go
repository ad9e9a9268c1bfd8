package controls

import (
	"context"
	"io"
	"testing"

	"github.com/angelmondragon/captures-backend/internal/audit"
	"github.com/angelmondragon/captures-backend/pkg/auth"
	"github.com/angelmondragon/captures-backend/pkg/db/dbtest"
	"github.com/angelmondragon/captures-backend/pkg/db/models"
	"github.com/angelmondragon/captures-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
	"github.com/angelmondragon/captures-backend/pkg/logger"
	"github.com/angelmondragon/captures-backend/pkg/outbox"
	"github.com/angelmondragon/captures-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newControls(t *testing.T) (Service, audit.Service, *gorm.DB) {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()
	logg := logger.New(logger.Options{ServiceName: "controls-test", Output: io.Discard})
	auditSvc, err := audit.NewService(audit.NewRepository(conn))
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(conn),
		Audit:  auditSvc,
		Tx:     client,
		Outbox: outbox.NewService(outbox.NewRepository(conn), logg),
		Logger: logg,
	})
	require.NoError(t, err)
	return svc, auditSvc, conn
}

func operator() auth.Actor {
	return auth.Actor{ID: uuid.New(), Name: "Robin", Role: enums.ActorRoleAdmin}
}

func TestListReturnsEveryKnownKey(t *testing.T) {
	svc, _, _ := newControls(t)
	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 5)
	assert.Equal(t, KeyCaptureAutoRequest, list[0].Key)
	for _, item := range list {
		assert.Empty(t, item.Value)
		assert.Zero(t, item.Version)
	}
}

func TestSetNormalisesAndRecords(t *testing.T) {
	svc, auditSvc, conn := newControls(t)
	ctx := context.Background()
	actor := operator()

	got, err := svc.Set(ctx, SetInput{Key: KeyCaptureAutoRequest, Value: "true", Actor: actor})
	require.NoError(t, err)
	assert.Equal(t, "ON", got.Value)
	assert.Equal(t, int64(1), got.Version)
	require.NotNil(t, got.UpdatedBy)
	assert.Equal(t, actor.ID, *got.UpdatedBy)

	got, err = svc.Set(ctx, SetInput{Key: KeyCaptureAutoRequest, Value: "OFF", Actor: actor})
	require.NoError(t, err)
	assert.Equal(t, "OFF", got.Value)
	assert.Equal(t, int64(2), got.Version)

	page, err := auditSvc.Query(ctx, audit.Filter{Category: audit.CategoryControlManagement}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, enums.AuditActionControlUpdated, page.Items[1].Action)
	assert.Contains(t, page.Items[1].Description, "capture-auto-request")

	var events []models.OutboxEvent
	require.NoError(t, conn.Where("event_type = ?", enums.EventControlUpdated).Find(&events).Error)
	require.Len(t, events, 2)
	assert.Equal(t, KeyCaptureAutoRequest, events[0].AggregateID)

	fetched, err := svc.Get(ctx, KeyCaptureAutoRequest)
	require.NoError(t, err)
	assert.Equal(t, "OFF", fetched.Value)
}

func TestSetSameValueIsNoop(t *testing.T) {
	svc, auditSvc, _ := newControls(t)
	ctx := context.Background()

	_, err := svc.Set(ctx, SetInput{Key: KeyDay1, Value: "2026-05-01", Actor: operator()})
	require.NoError(t, err)
	again, err := svc.Set(ctx, SetInput{Key: KeyDay1, Value: "2026-05-01", Actor: operator()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Version)

	page, err := auditSvc.Query(ctx, audit.Filter{}, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestSetRejectsUnknownKeysAndStaleVersions(t *testing.T) {
	svc, _, _ := newControls(t)
	ctx := context.Background()

	_, err := svc.Set(ctx, SetInput{Key: "Day-4", Value: "2026-05-01", Actor: operator()})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = svc.Get(ctx, "Day-4")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = svc.Set(ctx, SetInput{Key: KeyDay1, Value: "soon", Actor: operator()})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = svc.Set(ctx, SetInput{Key: KeyDay1, Value: "2026-05-01"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	stale := int64(4)
	_, err = svc.Set(ctx, SetInput{Key: KeyDay1, Value: "2026-05-01", Actor: operator(), ExpectedVersion: &stale})
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))

	zero := int64(0)
	got, err := svc.Set(ctx, SetInput{Key: KeyDay1, Value: "2026-05-01", Actor: operator(), ExpectedVersion: &zero})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
}
