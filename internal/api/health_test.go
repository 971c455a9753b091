package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLiveness(t *testing.T) {
	h := NewHealthHandler(nil, nil, "test", "1.2.3")
	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode[LivenessResponse](t, rec)
	if resp.Status != "ok" || resp.Version != "1.2.3" || resp.Env != "test" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestReadinessWithoutPostgres(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := NewHealthHandler(nil, client, "test", "dev")
	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	resp := decode[ReadinessResponse](t, rec)
	if resp.Status != "error" {
		t.Errorf("expected error status, got %q", resp.Status)
	}
	if resp.Dependencies["postgres"] != "down" || resp.Dependencies["redis"] != "ok" {
		t.Errorf("unexpected dependencies %v", resp.Dependencies)
	}
}

func TestReadinessRedisDisabled(t *testing.T) {
	h := NewHealthHandler(nil, nil, "test", "dev")
	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	resp := decode[ReadinessResponse](t, rec)
	if resp.Dependencies["redis"] != "disabled" {
		t.Errorf("expected redis disabled, got %q", resp.Dependencies["redis"])
	}
}
