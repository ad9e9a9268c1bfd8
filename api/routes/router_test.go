package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/captures-backend/internal/audit"
	"github.com/angelmondragon/captures-backend/internal/captures"
	"github.com/angelmondragon/captures-backend/internal/controls"
	"github.com/angelmondragon/captures-backend/internal/downloads"
	"github.com/angelmondragon/captures-backend/internal/likes"
	"github.com/angelmondragon/captures-backend/internal/moderation"
	"github.com/angelmondragon/captures-backend/internal/requests"
	pkgAuth "github.com/angelmondragon/captures-backend/pkg/auth"
	"github.com/angelmondragon/captures-backend/pkg/config"
	"github.com/angelmondragon/captures-backend/pkg/db/dbtest"
	"github.com/angelmondragon/captures-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
	"github.com/angelmondragon/captures-backend/pkg/logger"
	"github.com/angelmondragon/captures-backend/pkg/metrics"
	"github.com/angelmondragon/captures-backend/pkg/outbox"
)

type memoryRedis struct {
	mu     sync.Mutex
	values map[string]string
	counts map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{values: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key], _ = value.(string)
	return true, nil
}

func (m *memoryRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key], _ = value.(string)
	return nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryRedis) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[scope]++
	return m.counts[scope] <= limit, m.counts[scope], nil
}

func (m *memoryRedis) Ping(context.Context) error { return nil }

type testServer struct {
	handler  http.Handler
	cfg      *config.Config
	captures captures.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()
	logg := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})
	registry := prometheus.NewRegistry()

	cfg := &config.Config{
		App:       config.AppConfig{Env: "test"},
		JWT:       config.JWTConfig{Secret: "secret", Issuer: "captures-identity", ExpirationMinutes: 60},
		RateLimit: config.RateLimitConfig{LikeWindow: time.Minute, LikeLimit: 3, DownloadWindow: time.Minute, DownloadLimit: 100},
		Eventing:  config.EventingConfig{IdempotencyTTL: time.Hour},
	}

	captureRepo := captures.NewRepository(conn)
	auditSvc, err := audit.NewService(audit.NewRepository(conn))
	require.NoError(t, err)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)
	moderationSvc, err := moderation.NewService(moderation.ServiceParams{
		Captures: captureRepo,
		Audit:    auditSvc,
		Tx:       client,
		Outbox:   outboxSvc,
		Logger:   logg,
		Metrics:  metrics.NewModerationMetrics(registry),
	})
	require.NoError(t, err)
	likesSvc, err := likes.NewService(likes.ServiceParams{Likes: likes.NewRepository(conn), Captures: captureRepo, Logger: logg})
	require.NoError(t, err)
	downloadsSvc, err := downloads.NewService(downloads.ServiceParams{Downloads: downloads.NewRepository(conn), Captures: captureRepo, Logger: logg})
	require.NoError(t, err)
	captureSvc, err := captures.NewService(captureRepo, captures.WithDownloadCounter(downloadsSvc))
	require.NoError(t, err)
	controlsSvc, err := controls.NewService(controls.ServiceParams{
		Repo:   controls.NewRepository(conn),
		Audit:  auditSvc,
		Tx:     client,
		Outbox: outboxSvc,
		Logger: logg,
	})
	require.NoError(t, err)
	requestsSvc, err := requests.NewService(requests.ServiceParams{
		Requests:   requests.NewRepository(conn),
		Captures:   captureRepo,
		Moderation: moderationSvc,
		Logger:     logg,
	})
	require.NoError(t, err)

	verifier, err := pkgAuth.NewVerifier(cfg.JWT)
	require.NoError(t, err)

	store := newMemoryRedis()
	handler := NewRouter(RouterParams{
		Config:      cfg,
		Logger:      logg,
		Gatherer:    registry,
		Verifier:    verifier,
		DB:          client,
		Redis:       store,
		Idempotency: store,
		RateLimits:  store,
		Captures:    captureSvc,
		Moderation:  moderationSvc,
		Audit:       auditSvc,
		Likes:       likesSvc,
		Downloads:   downloadsSvc,
		Controls:    controlsSvc,
		Requests:    requestsSvc,
	})
	return &testServer{handler: handler, cfg: cfg, captures: captureSvc}
}

func (s *testServer) token(t *testing.T, name string, role enums.ActorRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(s.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Name:   name,
		Role:   role,
	})
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) seed(t *testing.T, eventName string, uploadType enums.UploadType) int64 {
	t.Helper()
	capture, err := s.captures.Create(context.Background(), captures.CreateInput{
		EventName:  eventName,
		UploadType: uploadType,
		ImagePath:  "captures/" + uuid.NewString() + ".jpg",
	})
	require.NoError(t, err)
	return capture.ID
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code      string         `json:"code"`
		Message   string         `json:"message"`
		Retryable bool           `json:"retryable"`
		Details   map[string]any `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	if dest != nil && env.Data != nil {
		require.NoError(t, json.Unmarshal(env.Data, dest))
	}
	return env
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health/live", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "test", rec.Header().Get("X-Captures-Env"))

	rec = s.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestAdminRoutesRequireModerator(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/admin/v1/captures", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/admin/v1/captures", s.token(t, "Member", enums.ActorRoleMember), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/admin/v1/captures", s.token(t, "Mod", enums.ActorRoleModerator), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestModerationFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.token(t, "Grace", enums.ActorRoleAdmin)

	var created captures.CaptureDTO
	rec := s.do(t, http.MethodPost, "/api/admin/v1/captures", adminToken, map[string]any{
		"event_name":  "Harbor Lights",
		"upload_type": "direct",
		"image_path":  "captures/harbor.jpg",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &created)
	require.Equal(t, enums.ModerationStatePending, created.State)

	rec = s.do(t, http.MethodGet, "/api/v1/captures", "", nil)
	var public captures.ListResult
	decode(t, rec, &public)
	require.Empty(t, public.Items)

	path := "/api/admin/v1/captures/" + itoa(created.ID)
	var moved captures.CaptureDTO
	rec = s.do(t, http.MethodPost, path+"/transition", adminToken, map[string]any{"target": "approved", "expected_version": created.Version})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &moved)
	require.Equal(t, enums.ModerationStateApproved, moved.State)

	rec = s.do(t, http.MethodPost, path+"/transition", adminToken, map[string]any{"target": "declined", "expected_version": created.Version})
	require.Equal(t, http.StatusConflict, rec.Code)
	env := decode(t, rec, nil)
	require.Equal(t, string(pkgerrors.CodeConflict), env.Error.Code)

	rec = s.do(t, http.MethodPost, path+"/transition", adminToken, map[string]any{"target": "pending"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/captures", "", nil)
	decode(t, rec, &public)
	require.Len(t, public.Items, 1)

	rec = s.do(t, http.MethodPost, path+"/delete", adminToken, map[string]any{"reason": "disagreement"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/captures", "", nil)
	decode(t, rec, &public)
	require.Empty(t, public.Items)

	rec = s.do(t, http.MethodPost, path+"/restore", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var restored captures.CaptureDTO
	decode(t, rec, &restored)
	require.False(t, restored.Deleted)
	require.Equal(t, enums.ModerationStateApproved, restored.State)

	var page audit.Page
	rec = s.do(t, http.MethodGet, "/api/admin/v1/audit?capture_id="+itoa(created.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &page)
	require.Len(t, page.Items, 3)
	require.Equal(t, enums.AuditActionCaptureTransitioned, page.Items[0].Action)
	require.Equal(t, "Grace", page.Items[0].ActorName)
	require.Equal(t, enums.AuditActionCaptureDeleted, page.Items[1].Action)
	require.Equal(t, enums.AuditActionCaptureRestored, page.Items[2].Action)
}

func TestBatchPromotionOverHTTP(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.token(t, "Grace", enums.ActorRoleAdmin)
	first := s.seed(t, "Night Market", enums.UploadTypeBatch)
	second := s.seed(t, "Night Market", enums.UploadTypeBatch)

	rec := s.do(t, http.MethodPost, "/api/admin/v1/batches/night-market/promote", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result moderation.BatchResult
	decode(t, rec, &result)
	require.ElementsMatch(t, []int64{first, second}, result.Promoted)

	rec = s.do(t, http.MethodPost, "/api/admin/v1/batches/no-such-event/promote", adminToken, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIdempotentReplayOverHTTP(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.token(t, "Grace", enums.ActorRoleAdmin)
	id := s.seed(t, "Lantern Walk", enums.UploadTypeDirect)
	path := "/api/admin/v1/captures/" + itoa(id) + "/transition"

	first := s.do(t, http.MethodPost, path, adminToken, map[string]any{"target": "approved"}, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, first.Code)
	replay := s.do(t, http.MethodPost, path, adminToken, map[string]any{"target": "approved"}, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, replay.Code)
	require.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	require.Equal(t, first.Body.String(), replay.Body.String())

	reused := s.do(t, http.MethodPost, path, adminToken, map[string]any{"target": "declined"}, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusConflict, reused.Code)
	require.Equal(t, string(pkgerrors.CodeIdempotency), decode(t, reused, nil).Error.Code)
}

func TestLikesAndDownloadsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	member := s.token(t, "Visitor", enums.ActorRoleMember)
	id := s.seed(t, "Lantern Walk", enums.UploadTypeDirect)
	path := "/api/v1/captures/" + itoa(id)

	rec := s.do(t, http.MethodPut, path+"/like", "", map[string]any{"liked": true})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var like likes.LikeResult
	for i := 0; i < 2; i++ {
		rec = s.do(t, http.MethodPut, path+"/like", member, map[string]any{"liked": true})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &like)
		require.True(t, like.Liked)
		require.Equal(t, int64(1), like.TotalLikes)
	}

	rec = s.do(t, http.MethodPut, path+"/like", member, map[string]any{"liked": false})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPut, path+"/like", member, map[string]any{"liked": true})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.True(t, decode(t, rec, nil).Error.Retryable)

	rec = s.do(t, http.MethodPut, path+"/like", member, map[string]any{})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var dl downloads.DownloadResult
	for i := 1; i <= 2; i++ {
		rec = s.do(t, http.MethodPost, path+"/downloads", member, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decode(t, rec, &dl)
		require.Equal(t, int64(i), dl.TotalDownloads)
	}

	adminToken := s.token(t, "Grace", enums.ActorRoleAdmin)
	rec = s.do(t, http.MethodGet, "/api/admin/v1/downloads/counts?ids="+itoa(id), adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var counts struct {
		Items []downloads.CaptureCount `json:"items"`
	}
	decode(t, rec, &counts)
	require.Equal(t, []downloads.CaptureCount{{CaptureID: id, Downloads: 2}}, counts.Items)

	rec = s.do(t, http.MethodGet, "/api/admin/v1/downloads?capture_id="+itoa(id)+"&limit=1", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var logs downloads.LogPage
	decode(t, rec, &logs)
	require.Len(t, logs.Items, 1)
	require.NotEmpty(t, logs.Cursor)
}

func TestControlsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.token(t, "Grace", enums.ActorRoleAdmin)

	rec := s.do(t, http.MethodPut, "/api/admin/v1/controls/capture-auto-request", adminToken, map[string]any{"value": "true"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var control controls.ControlDTO
	decode(t, rec, &control)
	require.Equal(t, "ON", control.Value)
	require.Equal(t, int64(1), control.Version)

	rec = s.do(t, http.MethodPut, "/api/admin/v1/controls/Day-1", adminToken, map[string]any{"value": "03/01/2024"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/admin/v1/controls/unknown", adminToken, map[string]any{"value": "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/admin/v1/controls", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []controls.ControlDTO `json:"items"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Items, len(controls.Definitions()))
}

func TestAuditAppendRecordsNote(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.token(t, "Grace", enums.ActorRoleAdmin)

	rec := s.do(t, http.MethodPost, "/api/admin/v1/audit", adminToken, map[string]any{"description": "  rotated the gallery banner  "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var entry audit.EntryDTO
	decode(t, rec, &entry)
	require.Equal(t, enums.AuditActionNote, entry.Action)
	require.Equal(t, audit.CategoryGeneral, entry.Category)
	require.Equal(t, "rotated the gallery banner", entry.Description)

	rec = s.do(t, http.MethodGet, "/api/admin/v1/audit?action=bogus", adminToken, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "VALIDATION_ERROR"))
}

func (s *testServer) publish(t *testing.T, adminToken, category string) int64 {
	t.Helper()
	var created captures.CaptureDTO
	rec := s.do(t, http.MethodPost, "/api/admin/v1/captures", adminToken, map[string]any{
		"event_name":     "Harbor Lights",
		"event_category": category,
		"upload_type":    "direct",
		"image_path":     "captures/" + uuid.NewString() + ".jpg",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &created)
	rec = s.do(t, http.MethodPost, "/api/admin/v1/captures/"+itoa(created.ID)+"/transition", adminToken, map[string]any{"target": "approved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return created.ID
}

func TestPublicGalleryCategoryAndModeratorCounts(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.token(t, "Grace", enums.ActorRoleAdmin)
	member := s.token(t, "Visitor", enums.ActorRoleMember)
	music := s.publish(t, adminToken, "music")
	s.publish(t, adminToken, "sports")

	rec := s.do(t, http.MethodPost, "/api/v1/captures/"+itoa(music)+"/downloads", member, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var public captures.ListResult
	rec = s.do(t, http.MethodGet, "/api/v1/captures?category=music", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &public)
	require.Len(t, public.Items, 1)
	require.Equal(t, music, public.Items[0].ID)
	require.Nil(t, public.Items[0].Downloads)
	require.NotContains(t, rec.Body.String(), `"downloads"`)

	rec = s.do(t, http.MethodGet, "/api/v1/captures?category=music", member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), `"downloads"`)

	var moderated captures.ListResult
	rec = s.do(t, http.MethodGet, "/api/v1/captures?category=music", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &moderated)
	require.Len(t, moderated.Items, 1)
	require.NotNil(t, moderated.Items[0].Downloads)
	require.Equal(t, int64(1), *moderated.Items[0].Downloads)

	rec = s.do(t, http.MethodGet, "/api/v1/captures", "not-a-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRemovalRequestFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.token(t, "Grace", enums.ActorRoleAdmin)
	id := s.publish(t, adminToken, "")

	body := map[string]any{
		"capture_id":   id,
		"name":         "Ada",
		"email":        "ada@example.com",
		"description":  "Please take this down.",
		"id_card_path": "id-cards/ada.jpg",
	}
	rec := s.do(t, http.MethodPost, "/api/v1/removal-requests", "", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var receipt requests.SubmitReceipt
	decode(t, rec, &receipt)
	require.Equal(t, id, receipt.CaptureID)
	require.NotContains(t, rec.Body.String(), "ada@example.com")

	body["email"] = "nope"
	rec = s.do(t, http.MethodPost, "/api/v1/removal-requests", "", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/admin/v1/removal-requests", s.token(t, "Visitor", enums.ActorRoleMember), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	var page requests.Page
	rec = s.do(t, http.MethodGet, "/api/admin/v1/removal-requests?unresolved=true", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &page)
	require.Len(t, page.Items, 1)
	require.Equal(t, "ada@example.com", page.Items[0].Email)

	rec = s.do(t, http.MethodPost, "/api/admin/v1/removal-requests/"+itoa(receipt.ID)+"/resolve", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resolved requests.RequestDTO
	decode(t, rec, &resolved)
	require.NotNil(t, resolved.Resolution)

	var public captures.ListResult
	rec = s.do(t, http.MethodGet, "/api/v1/captures", "", nil)
	decode(t, rec, &public)
	require.Empty(t, public.Items)

	var ledger audit.Page
	rec = s.do(t, http.MethodGet, "/api/admin/v1/audit?action=capture_deleted&capture_id="+itoa(id), adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &ledger)
	require.Len(t, ledger.Items, 1)
	require.Contains(t, ledger.Items[0].Description, requests.DeleteReason(receipt.ID))

	rec = s.do(t, http.MethodGet, "/api/admin/v1/removal-requests?unresolved=true", adminToken, nil)
	decode(t, rec, &page)
	require.Empty(t, page.Items)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
