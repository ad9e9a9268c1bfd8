package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/captures-backend/pkg/auth"
	"github.com/angelmondragon/captures-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
	"github.com/google/uuid"
)

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: make(map[string]int64)}
}

func (f *fakeRateStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func likeRequest(actor *auth.Actor) *http.Request {
	req := httptest.NewRequest(http.MethodPut, "/api/v1/captures/1/like", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	if actor != nil {
		req = req.WithContext(WithActor(req.Context(), *actor))
	}
	return req
}

func TestRateLimitBlocksPerUser(t *testing.T) {
	store := newFakeRateStore()
	policy := NewRateLimitPolicy("like", time.Minute, 2)
	handler := RateLimit(policy, store, nil)(okHandler())

	first := &auth.Actor{ID: uuid.New(), Name: "a", Role: enums.ActorRoleMember}
	second := &auth.Actor{ID: uuid.New(), Name: "b", Role: enums.ActorRoleMember}

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, likeRequest(first))

		switch {
		case i < 2 && rec.Code != http.StatusOK:
			t.Fatalf("expected success before limit, got %d", rec.Code)
		case i >= 2:
			if rec.Code != http.StatusTooManyRequests {
				t.Fatalf("expected 429, got %d", rec.Code)
			}
			if rec.Header().Get("Retry-After") != "60" {
				t.Fatalf("expected Retry-After 60, got %q", rec.Header().Get("Retry-After"))
			}
			var payload struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if payload.Error.Code != string(pkgerrors.CodeRateLimit) {
				t.Fatalf("unexpected code: %s", payload.Error.Code)
			}
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, likeRequest(second))
	if rec.Code != http.StatusOK {
		t.Fatalf("other users keep their own budget, got %d", rec.Code)
	}
}

func TestRateLimitFallsBackToClientIP(t *testing.T) {
	store := newFakeRateStore()
	handler := RateLimit(NewRateLimitPolicy("download", time.Minute, 1), store, nil)(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), likeRequest(nil))

	if store.counts["ip:download:1.2.3.4"] != 1 {
		t.Fatalf("expected ip counter, got %v", store.counts)
	}
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	store := newFakeRateStore()
	handler := RateLimit(NewRateLimitPolicy("like", 0, 0), store, nil)(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, likeRequest(nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}
	if len(store.counts) != 0 {
		t.Fatalf("disabled policy must not touch the store")
	}
}

func TestRateLimitStoreFailureIsRetryable(t *testing.T) {
	store := newFakeRateStore()
	store.err = errors.New("redis down")
	handler := RateLimit(NewRateLimitPolicy("like", time.Minute, 5), store, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, likeRequest(nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
