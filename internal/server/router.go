package server

import (
	"net/http"

	"github.com/watzon/clipcast/internal/metrics"
	"github.com/watzon/clipcast/internal/server/handlers"
)

type Middleware func(http.Handler) http.Handler

// Router is the API mux behind a middleware chain assembled once at construction.
type Router struct {
	mux     *http.ServeMux
	handler http.Handler
}

type route struct {
	pattern string
	handler http.HandlerFunc
}

func NewRouter(srv *Server) *Router {
	r := &Router{mux: http.NewServeMux()}
	for _, rt := range routes(srv) {
		r.mux.HandleFunc(rt.pattern, rt.handler)
	}
	if srv.cfg.Metrics.Enabled {
		r.mux.Handle("GET "+metricsPath(srv), metrics.Handler())
	}

	// Listed outermost first.
	chain := []Middleware{RecoveryMiddleware, RequestIDMiddleware, LoggingMiddleware}
	if srv.cfg.Metrics.Enabled {
		chain = append(chain, MetricsMiddleware(metricsPath(srv)))
	}
	if limit := srv.cfg.Server.MaxBodySize; limit > 0 {
		chain = append(chain, MaxBodySizeMiddleware(limit))
	}

	var h http.Handler = r.mux
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	r.handler = h
	return r
}

func metricsPath(srv *Server) string {
	if p := srv.cfg.Metrics.Path; p != "" {
		return p
	}
	return "/metrics"
}

func routes(srv *Server) []route {
	d := srv.deps
	health := handlers.NewHealthHandlers(srv.DB(), d.Scheduler, d.Posts, d.Version)
	sched := handlers.NewScheduleHandlers(d.Schedules, d.Scheduler, d.State)
	acc := handlers.NewAccountHandlers(d.Accounts, d.Sessions)
	ps := handlers.NewPostHandlers(d.Posts)

	rs := []route{
		{"GET /health", health.Health},
		{"GET /health/live", health.Liveness},
		{"GET /health/ready", health.Readiness},
		{"GET /api/stats", health.Stats},

		{"GET /api/schedules", sched.List},
		{"POST /api/schedules", sched.Create},
		{"GET /api/schedules/{id}", sched.Get},
		{"PATCH /api/schedules/{id}", sched.Update},
		{"DELETE /api/schedules/{id}", sched.Delete},
		{"POST /api/schedules/{id}/run", sched.Run},

		{"GET /api/accounts", acc.List},
		{"POST /api/accounts", acc.Create},
		{"PATCH /api/accounts/{id}", acc.Update},
		{"DELETE /api/accounts/{id}", acc.Delete},

		{"GET /api/posts", ps.List},
	}

	if d.Media != nil {
		mh := handlers.NewMediaHandlers(d.Media)
		rs = append(rs,
			route{"POST /api/media", mh.Upload},
			route{"GET /api/media/{id}", mh.Get},
		)
	}
	return rs
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}
