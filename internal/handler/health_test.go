package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeChecker struct {
	err error
}

func (f *fakeChecker) Ping(ctx context.Context) error {
	return f.err
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := NewHealthHandler(nil, nil)

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		db         HealthChecker
		cache      HealthChecker
		wantStatus int
		wantBody   string
		wantDB     string
		wantCache  string
	}{
		{
			name:       "all healthy",
			db:         &fakeChecker{},
			cache:      &fakeChecker{},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantDB:     "ok",
			wantCache:  "ok",
		},
		{
			name:       "db down",
			db:         &fakeChecker{err: errors.New("connection refused")},
			cache:      &fakeChecker{},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unhealthy",
			wantDB:     "error: connection refused",
			wantCache:  "ok",
		},
		{
			name:       "cache down",
			db:         &fakeChecker{},
			cache:      &fakeChecker{err: errors.New("redis timeout")},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unhealthy",
			wantDB:     "ok",
			wantCache:  "error: redis timeout",
		},
		{
			name:       "nothing configured",
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantDB:     "not configured",
			wantCache:  "not configured",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHealthHandler(tt.db, tt.cache)

			rec := httptest.NewRecorder()
			h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Status != tt.wantBody {
				t.Errorf("body status = %q, want %q", body.Status, tt.wantBody)
			}
			if body.Checks["postgres"] != tt.wantDB {
				t.Errorf("postgres check = %q, want %q", body.Checks["postgres"], tt.wantDB)
			}
			if body.Checks["redis"] != tt.wantCache {
				t.Errorf("redis check = %q, want %q", body.Checks["redis"], tt.wantCache)
			}
		})
	}
}
