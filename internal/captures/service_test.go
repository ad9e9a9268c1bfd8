package captures

import (
	"context"
	"testing"

	"github.com/angelmondragon/captures-backend/pkg/db/dbtest"
	"github.com/angelmondragon/captures-backend/pkg/db/models"
	"github.com/angelmondragon/captures-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (Service, Repository) {
	t.Helper()
	repo := NewRepository(dbtest.Open(t))
	svc, err := NewService(repo)
	require.NoError(t, err)
	return svc, repo
}

func TestCreateStartsPendingWithDerivedBatchKey(t *testing.T) {
	svc, _ := newTestService(t)

	capture, err := svc.Create(context.Background(), CreateInput{
		EventName:  "  Spring   Gala 2026 ",
		UploadType: enums.UploadTypeBatch,
		ImagePath:  "captures/spring/1.jpg",
		AuthorName: "Dana",
	})
	require.NoError(t, err)
	assert.NotZero(t, capture.ID)
	assert.Equal(t, enums.ModerationStatePending, capture.State)
	assert.Equal(t, int64(0), capture.Version)
	assert.False(t, capture.Deleted)
	assert.Equal(t, "spring-gala-2026", capture.BatchKey)
	assert.Equal(t, "Spring   Gala 2026", capture.EventName)
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateInput{ImagePath: "a.jpg"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Create(context.Background(), CreateInput{EventName: "x", ImagePath: "a.jpg", UploadType: "sideload"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGetMissingCaptureIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), 404)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Get(context.Background(), 0)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListExcludesDeletedAndPaginates(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &models.Capture{
			EventName:  "Gala",
			BatchKey:   "gala",
			UploadType: enums.UploadTypeDirect,
			State:      enums.ModerationStatePending,
			ImagePath:  "p.jpg",
			Deleted:    i == 2,
		}))
	}

	first, err := svc.List(ctx, ListParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.Cursor)

	second, err := svc.List(ctx, ListParams{Limit: 2, Cursor: first.Cursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	require.Empty(t, second.Cursor)

	seen := map[int64]bool{}
	for _, item := range append(first.Items, second.Items...) {
		assert.False(t, item.Deleted)
		assert.False(t, seen[item.ID])
		seen[item.ID] = true
	}

	deleted, err := svc.List(ctx, ListParams{Deleted: true})
	require.NoError(t, err)
	require.Len(t, deleted.Items, 1)
}

func TestListPublishedOnlyApprovedDirect(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	rows := []models.Capture{
		{EventName: "a", UploadType: enums.UploadTypeDirect, State: enums.ModerationStateApproved, ImagePath: "a"},
		{EventName: "b", UploadType: enums.UploadTypeBatch, State: enums.ModerationStateApproved, ImagePath: "b"},
		{EventName: "c", UploadType: enums.UploadTypeDirect, State: enums.ModerationStatePending, ImagePath: "c"},
		{EventName: "d", UploadType: enums.UploadTypeDirect, State: enums.ModerationStateApproved, ImagePath: "d", Deleted: true},
	}
	for i := range rows {
		require.NoError(t, repo.Create(ctx, &rows[i]))
	}

	res, err := svc.ListPublished(ctx, PublishedParams{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, rows[0].ID, res.Items[0].ID)
}

type fakeCounter struct {
	totals map[int64]int64
	asked  [][]int64
	err    error
}

func (f *fakeCounter) DownloadTotals(_ context.Context, ids []int64) (map[int64]int64, error) {
	f.asked = append(f.asked, ids)
	return f.totals, f.err
}

func seedPublished(t *testing.T, repo Repository, category string) models.Capture {
	t.Helper()
	c := models.Capture{
		EventName:     "Fair",
		EventCategory: category,
		UploadType:    enums.UploadTypeDirect,
		State:         enums.ModerationStateApproved,
		ImagePath:     "fair.jpg",
	}
	require.NoError(t, repo.Create(context.Background(), &c))
	return c
}

func TestListPublishedFiltersByCategory(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	music := seedPublished(t, repo, "music")
	seedPublished(t, repo, "sports")
	other := seedPublished(t, repo, "music")

	res, err := svc.ListPublished(ctx, PublishedParams{Category: " music "})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, music.ID, res.Items[0].ID)
	assert.Equal(t, other.ID, res.Items[1].ID)

	res, err = svc.ListPublished(ctx, PublishedParams{Category: "theatre"})
	require.NoError(t, err)
	assert.Empty(t, res.Items)

	all, err := svc.ListPublished(ctx, PublishedParams{})
	require.NoError(t, err)
	assert.Len(t, all.Items, 3)
}

func TestListPublishedAttachesDownloadCountsOnRequest(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	counter := &fakeCounter{}
	svc, err := NewService(repo, WithDownloadCounter(counter))
	require.NoError(t, err)
	ctx := context.Background()

	a := seedPublished(t, repo, "music")
	b := seedPublished(t, repo, "music")
	counter.totals = map[int64]int64{a.ID: 4}

	plain, err := svc.ListPublished(ctx, PublishedParams{})
	require.NoError(t, err)
	require.Len(t, plain.Items, 2)
	assert.Nil(t, plain.Items[0].Downloads)
	assert.Empty(t, counter.asked)

	counted, err := svc.ListPublished(ctx, PublishedParams{IncludeDownloads: true})
	require.NoError(t, err)
	require.Len(t, counted.Items, 2)
	require.NotNil(t, counted.Items[0].Downloads)
	assert.Equal(t, int64(4), *counted.Items[0].Downloads)
	require.NotNil(t, counted.Items[1].Downloads)
	assert.Equal(t, int64(0), *counted.Items[1].Downloads)
	assert.Equal(t, [][]int64{{a.ID, b.ID}}, counter.asked)

	counter.err = pkgerrors.New(pkgerrors.CodeStorageUnavailable, "down")
	_, err = svc.ListPublished(ctx, PublishedParams{IncludeDownloads: true})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStorageUnavailable))
}

func TestListPublishedWithoutCounterLeavesCountsEmpty(t *testing.T) {
	svc, repo := newTestService(t)
	seedPublished(t, repo, "")

	res, err := svc.ListPublished(context.Background(), PublishedParams{IncludeDownloads: true})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Nil(t, res.Items[0].Downloads)
}

func TestListBatchFilterAcceptsEventName(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 2; i++ {
		c, err := svc.Create(ctx, CreateInput{EventName: "Spring Gala", UploadType: enums.UploadTypeBatch, ImagePath: "g.jpg"})
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	_, err := svc.Create(ctx, CreateInput{EventName: "Autumn Fair", UploadType: enums.UploadTypeBatch, ImagePath: "f.jpg"})
	require.NoError(t, err)

	for _, filter := range []string{"Spring Gala", "  spring   GALA ", "spring-gala"} {
		res, err := svc.List(ctx, ListParams{BatchKey: filter})
		require.NoError(t, err, filter)
		require.Len(t, res.Items, 2, filter)
		assert.Equal(t, ids, []int64{res.Items[0].ID, res.Items[1].ID}, filter)
	}
}

func TestListRejectsBadCursor(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.List(context.Background(), ListParams{Cursor: "%%%"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDeriveBatchKey(t *testing.T) {
	cases := map[string]string{
		"Spring Gala":       "spring-gala",
		"  spring   gala  ": "spring-gala",
		"GALA":              "gala",
		"":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, DeriveBatchKey(in), in)
	}
}
