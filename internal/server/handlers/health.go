package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/watzon/clipcast/internal/database"
	"github.com/watzon/clipcast/internal/metrics"
	"github.com/watzon/clipcast/internal/posts"
	"github.com/watzon/clipcast/internal/requestctx"
	"github.com/watzon/clipcast/internal/scheduler"
)

// HealthHandlers reports whether the process can store records and fire schedules.
type HealthHandlers struct {
	db        *database.DB
	scheduler *scheduler.Scheduler
	posts     *posts.Store
	version   string
	started   time.Time
}

func NewHealthHandlers(db *database.DB, sched *scheduler.Scheduler, ps *posts.Store, version string) *HealthHandlers {
	return &HealthHandlers{
		db:        db,
		scheduler: sched,
		posts:     ps,
		version:   version,
		started:   time.Now(),
	}
}

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

type ComponentHealth struct {
	Status  HealthStatus `json:"status"`
	Latency string       `json:"latency,omitempty"`
	Message string       `json:"message,omitempty"`
}

type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Timestamp  string                     `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

const (
	healthCheckTimeout = 5 * time.Second
	readyCheckTimeout  = 2 * time.Second
)

// worse returns the more severe of two statuses.
func worse(a, b HealthStatus) HealthStatus {
	rank := map[HealthStatus]int{HealthStatusHealthy: 0, HealthStatusDegraded: 1, HealthStatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Health handles GET /health. The database and scheduler decide the overall
// status; a failing pending-post count only degrades it.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	components := map[string]ComponentHealth{
		"database":  h.checkDatabase(ctx),
		"scheduler": h.checkScheduler(),
	}
	if h.posts != nil {
		components["posts"] = h.checkPosts(ctx)
	}

	overall := HealthStatusHealthy
	for _, c := range components {
		overall = worse(overall, c.Status)
	}

	status := http.StatusOK
	if overall == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	JSON(w, status, HealthResponse{
		Status:     overall,
		Version:    h.version,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: components,
	})
}

func (h *HealthHandlers) checkDatabase(ctx context.Context) ComponentHealth {
	start := time.Now()
	if err := h.db.Ping(ctx); err != nil {
		requestctx.Logger(ctx).Warn().Err(err).Msg("Database ping failed")
		return ComponentHealth{
			Status:  HealthStatusUnhealthy,
			Latency: time.Since(start).String(),
			Message: "database ping failed",
		}
	}
	return ComponentHealth{Status: HealthStatusHealthy, Latency: time.Since(start).String()}
}

func (h *HealthHandlers) checkScheduler() ComponentHealth {
	if h.scheduler == nil || !h.scheduler.Running() {
		return ComponentHealth{Status: HealthStatusUnhealthy, Message: "scheduler is not running"}
	}

	triggers := h.scheduler.Triggers()
	msg := fmt.Sprintf("%d active triggers", len(triggers))
	var next time.Time
	for _, t := range triggers {
		if !t.Next.IsZero() && (next.IsZero() || t.Next.Before(next)) {
			next = t.Next
		}
	}
	if !next.IsZero() {
		msg += ", next fire " + next.UTC().Format(time.RFC3339)
	}
	return ComponentHealth{Status: HealthStatusHealthy, Message: msg}
}

func (h *HealthHandlers) checkPosts(ctx context.Context) ComponentHealth {
	n, err := h.posts.CountPending(ctx)
	if err != nil {
		return ComponentHealth{Status: HealthStatusDegraded, Message: "could not count pending posts"}
	}
	return ComponentHealth{Status: HealthStatusHealthy, Message: fmt.Sprintf("%d pending", n)}
}

// Liveness handles GET /health/live.
func (h *HealthHandlers) Liveness(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness handles GET /health/ready. Not ready until schedules are registered.
func (h *HealthHandlers) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	reason := ""
	switch {
	case h.db.Ping(ctx) != nil:
		reason = "database unavailable"
	case h.scheduler == nil || !h.scheduler.Running():
		reason = "scheduler not running"
	}
	if reason != "" {
		JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "reason": reason})
		return
	}

	JSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	NumGC        uint32 `json:"num_gc"`
}

// Stats handles GET /api/stats.
func (h *HealthHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	dbStats := h.db.Stats()
	metrics.UpdateDBStats(dbStats.OpenConnections, dbStats.InUse)

	resp := map[string]any{
		"uptime": time.Since(h.started).Round(time.Second).String(),
		"runtime": RuntimeStats{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			MemAlloc:     m.Alloc,
			NumGC:        m.NumGC,
		},
		"database": map[string]int{
			"open_connections": dbStats.OpenConnections,
			"in_use":           dbStats.InUse,
			"idle":             dbStats.Idle,
		},
	}

	if h.scheduler != nil {
		resp["triggers"] = h.scheduler.Triggers()
	}
	if h.posts != nil {
		if pending, err := h.posts.CountPending(r.Context()); err == nil {
			resp["pending_posts"] = pending
		}
	}

	JSON(w, http.StatusOK, resp)
}
