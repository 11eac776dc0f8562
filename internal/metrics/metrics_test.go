package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/health":                     "/health",
		"/api/schedules":              "/api/schedules",
		"/api/schedules/abc-123":      "/api/schedules/:id",
		"/api/schedules/abc-123/run":  "/api/schedules/:id/run",
		"/api/accounts/u1-tiktok-9f2": "/api/accounts/:id",
	}
	for in, want := range tests {
		require.Equal(t, want, NormalizePath(in), in)
	}
}

func TestHandlerExposesDomainMetrics(t *testing.T) {
	RecordFire(FireDispatched)
	RecordCycle("ok")
	RecordPost("tiktok", "posted")
	RecordPublish("tiktok", 3*time.Second)
	SetActiveTriggers(2)
	RecordHTTPRequest(http.MethodGet, "/health", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{
		"clipcast_schedule_fires_total",
		"clipcast_cycles_total",
		"clipcast_posts_total",
		"clipcast_publish_duration_seconds",
		"clipcast_active_triggers 2",
		"clipcast_http_requests_total",
	} {
		require.True(t, strings.Contains(body, name), "missing %s", name)
	}
}
