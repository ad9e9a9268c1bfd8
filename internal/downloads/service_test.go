package downloads

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/captures-backend/internal/captures"
	"github.com/angelmondragon/captures-backend/pkg/db/dbtest"
	"github.com/angelmondragon/captures-backend/pkg/db/models"
	"github.com/angelmondragon/captures-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
	"github.com/angelmondragon/captures-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc      Service
	repo     *Repository
	captures captures.Repository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	captureRepo := captures.NewRepository(conn)
	svc, err := NewService(ServiceParams{Downloads: repo, Captures: captureRepo})
	require.NoError(t, err)
	return fixture{svc: svc, repo: repo, captures: captureRepo}
}

func (f fixture) capture(t *testing.T, deleted bool) int64 {
	t.Helper()
	c := &models.Capture{
		EventName:  "Gala",
		BatchKey:   "gala",
		UploadType: enums.UploadTypeDirect,
		State:      enums.ModerationStateApproved,
		ImagePath:  "captures/a.jpg",
		Deleted:    deleted,
	}
	require.NoError(t, f.captures.Create(context.Background(), c))
	return c.ID
}

func TestLogDownloadCountsEveryCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	captureID := f.capture(t, false)
	user := uuid.New()

	first, err := f.svc.LogDownload(ctx, captureID, user)
	require.NoError(t, err)
	second, err := f.svc.LogDownload(ctx, captureID, user)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.TotalDownloads)
	assert.Equal(t, int64(2), second.TotalDownloads)

	total, err := f.svc.Count(ctx, captureID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestLogDownloadRejectsHiddenCaptures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.LogDownload(ctx, f.capture(t, true), uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	_, err = f.svc.LogDownload(ctx, 999, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	_, err = f.svc.LogDownload(ctx, 1, uuid.Nil)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestCountsByCapture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.capture(t, false), f.capture(t, false), f.capture(t, false)

	for _, id := range []int64{a, a, a, b} {
		_, err := f.svc.LogDownload(ctx, id, uuid.New())
		require.NoError(t, err)
	}

	all, err := f.svc.CountsByCapture(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []CaptureCount{{CaptureID: a, Downloads: 3}, {CaptureID: b, Downloads: 1}}, all)

	some, err := f.svc.CountsByCapture(ctx, []int64{b, c})
	require.NoError(t, err)
	assert.Equal(t, []CaptureCount{{CaptureID: b, Downloads: 1}}, some)
}

func TestDownloadTotalsKeysByCapture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.capture(t, false), f.capture(t, false)

	for _, id := range []int64{a, b, b} {
		_, err := f.svc.LogDownload(ctx, id, uuid.New())
		require.NoError(t, err)
	}

	totals, err := f.svc.DownloadTotals(ctx, []int64{a, b})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{a: 1, b: 2}, totals)

	_, err = f.svc.DownloadTotals(ctx, make([]int64, 101))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListLogsPaginatesAndFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.capture(t, false), f.capture(t, false)
	user := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := f.svc.LogDownload(ctx, a, user)
		require.NoError(t, err)
	}
	_, err := f.svc.LogDownload(ctx, b, uuid.New())
	require.NoError(t, err)

	page, err := f.svc.ListLogs(ctx, LogFilter{CaptureID: &a}, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.Cursor)

	rest, err := f.svc.ListLogs(ctx, LogFilter{CaptureID: &a}, pagination.Params{Limit: 2, Cursor: page.Cursor})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.Empty(t, rest.Cursor)
	assert.Greater(t, rest.Items[0].ID, page.Items[1].ID)

	byUser, err := f.svc.ListLogs(ctx, LogFilter{UserID: &user}, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, byUser.Items, 3)

	future := time.Now().Add(time.Hour)
	none, err := f.svc.ListLogs(ctx, LogFilter{From: &future}, pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, none.Items)

	past := time.Now().Add(-time.Hour)
	_, err = f.svc.ListLogs(ctx, LogFilter{From: &future, To: &past}, pagination.Params{})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = f.svc.ListLogs(ctx, LogFilter{}, pagination.Params{Cursor: "garbage!"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestMarkExportedOnlyStampsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	captureID := f.capture(t, false)
	for i := 0; i < 3; i++ {
		_, err := f.svc.LogDownload(ctx, captureID, uuid.New())
		require.NoError(t, err)
	}

	pending, err := f.repo.ListUnexported(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	ids := []int64{pending[0].ID, pending[1].ID}
	n, err := f.repo.MarkExported(ctx, ids, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = f.repo.MarkExported(ctx, ids, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	remaining, err := f.repo.ListUnexported(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Greater(t, remaining[0].ID, ids[1])
}
