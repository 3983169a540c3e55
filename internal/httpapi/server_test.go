package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthz(t *testing.T) {
	redisUp := true
	s := New(":0", map[string]Check{
		"db": func(context.Context) error { return nil },
		"redis": func(context.Context) error {
			if redisUp { return nil }
			return errors.New("connection refused")
		},
	})
	h := s.Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK { t.Fatalf("status = %d", rec.Code) }

	redisUp = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable { t.Fatalf("status = %d", rec.Code) }
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil { t.Fatalf("decode: %v", err) }
	if body.Status != "degraded" || len(body.Checks) != 2 || body.Checks[1].Name != "redis" || body.Checks[1].Error == "" {
		t.Fatalf("body = %+v", body)
	}
}

func TestMetricsExposed(t *testing.T) {
	rec := httptest.NewRecorder()
	New(":0", nil).Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") { t.Fatalf("metrics status = %d", rec.Code) }
}
