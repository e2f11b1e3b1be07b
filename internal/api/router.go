// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api provides the daemon's loopback-only HTTP surface: workflow
// lifecycle, CI registry inspection, health, version, and shutdown.
package api

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/ckoons/argo/internal/broker"
	"github.com/ckoons/argo/internal/ciregistry"
	"github.com/ckoons/argo/internal/log"
	"github.com/ckoons/argo/internal/supervisor"
	"github.com/ckoons/argo/internal/tracing"
	"github.com/ckoons/argo/internal/workflow"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds build metadata surfaced at GET /api/version.
type RouterConfig struct {
	Version   string
	Commit    string
	BuildDate string
}

// ShutdownRequester lets the shutdown handler signal the daemon's main
// loop without importing it (avoids an import cycle: daemon wires api).
type ShutdownRequester interface {
	RequestShutdown()
}

// Deps bundles every component the router's handlers call into.
type Deps struct {
	Config      RouterConfig
	Registry    *workflow.Registry
	Supervisor  *supervisor.Supervisor
	CIRegistry  *ciregistry.Registry
	CILifecycle *ciregistry.Manager
	Broker      *broker.Broker
	Shutdown    ShutdownRequester
	MetricsMux  http.Handler
	Logger      *slog.Logger
	Tracer      *tracing.Provider
}

// NewRouter builds the full mux with every route in the daemon's HTTP
// surface, wrapped in the middleware chain: recover, request logging,
// correlation ID, then dispatch.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	wh := &workflowHandler{registry: d.Registry, supervisor: d.Supervisor, broker: d.Broker, logger: d.Logger}
	ch := &ciHandler{registry: d.CIRegistry, lifecycle: d.CILifecycle}

	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion(d.Config))
	mux.HandleFunc("POST /api/shutdown", handleShutdown(d.Shutdown))

	startLimiter := rate.NewLimiter(rate.Limit(5), 10)
	mux.Handle("POST /api/workflow/start", rateLimited(startLimiter, http.HandlerFunc(wh.handleStart)))
	mux.HandleFunc("GET /api/workflow/list", wh.handleList)
	mux.HandleFunc("GET /api/workflow/status", wh.handleStatus)
	mux.HandleFunc("DELETE /api/workflow/abandon", wh.handleAbandon)
	mux.HandleFunc("POST /api/workflow/pause", wh.handlePause)
	mux.HandleFunc("POST /api/workflow/resume", wh.handleResume)
	mux.HandleFunc("POST /api/workflow/input/{id}", wh.handleInput)
	mux.HandleFunc("GET /api/workflow/output/{id}", wh.handleOutput)

	mux.HandleFunc("GET /api/ci/list", ch.handleList)
	mux.HandleFunc("GET /api/ci/status", ch.handleStatus)

	if d.MetricsMux != nil {
		mux.Handle("GET /api/metrics", d.MetricsMux)
	} else {
		mux.Handle("GET /api/metrics", promhttp.Handler())
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var handler http.Handler = mux
	if d.Tracer != nil {
		handler = tracing.SpanMiddleware(d.Tracer)(handler)
	}
	handler = tracing.Middleware(handler)
	handler = log.Middleware(logger)(handler)
	handler = recoverMiddleware(logger)(handler)
	return handler
}

// rateLimited rejects requests exceeding limiter's rate with 429, bounding
// start-rate so a misbehaving client cannot flood the process table.
func rateLimited(limiter *rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, `{"error":"workflow start rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverMiddleware turns a panicking handler into a 500 response instead
// of taking down the whole daemon process.
func recoverMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("handler panicked", slog.Any("panic", rec), slog.String("path", r.URL.Path))
					http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
