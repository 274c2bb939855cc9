package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/timeline/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment:               "test",
		HTTPBind:                  "127.0.0.1",
		HTTPPort:                  0,
		DBBackend:                 config.DatabaseSQLite,
		DBDSN:                     ":memory:",
		TickInterval:              time.Hour,
		DefaultMinIntervalMinutes: 11,
		Location:                  time.UTC,
		ComputeRateLimit:          60,
		EventBus:                  config.EventBusMemory,
	}
}

func TestServerServesHealthAndTimeline(t *testing.T) {
	srv, err := New(testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer srv.Close()

	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || strings.Contains(rr.Body.String(), "leader") {
		t.Fatalf("healthz = %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing")
	}

	// The loop evaluates once on start.
	deadline := time.Now().Add(3 * time.Second)
	for {
		rr = httptest.NewRecorder()
		srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/timeline", nil))
		if rr.Code == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeline never became ready: %d %s", rr.Code, rr.Body.String())
		}
		time.Sleep(20 * time.Millisecond)
	}

	rr = httptest.NewRecorder()
	srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "timeline_scheduler_ticks_total") {
		t.Fatalf("metrics = %d", rr.Code)
	}
}

func TestServerRunsWithCacheDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.CacheEnabled = false
	srv, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer srv.Close()

	serve := func(method, path, body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		srv.router.ServeHTTP(rr, req)
		return rr
	}

	if rr := serve(http.MethodPatch, "/api/v1/settings", `{"min_interval_minutes":20}`); rr.Code != http.StatusOK {
		t.Fatalf("settings update = %d %s", rr.Code, rr.Body.String())
	}
	if rr := serve(http.MethodGet, "/api/v1/settings", ""); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"min_interval_minutes":20`) {
		t.Fatalf("settings get = %d %s", rr.Code, rr.Body.String())
	}
	body := `{"id":"news","name":"News","slots":[{"day_of_week":1,"start_time":"10:00","duration_minutes":30}]}`
	if rr := serve(http.MethodPost, "/api/v1/channels", body); rr.Code != http.StatusCreated {
		t.Fatalf("create channel = %d %s", rr.Code, rr.Body.String())
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		rr := serve(http.MethodGet, "/api/v1/timeline", "")
		if rr.Code == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeline never became ready: %d %s", rr.Code, rr.Body.String())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestServerRejectsBadDatabase(t *testing.T) {
	cfg := testConfig()
	cfg.DBBackend = "oracle"
	if _, err := New(cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestServerCloseIsIdempotent(t *testing.T) {
	srv, err := New(testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
