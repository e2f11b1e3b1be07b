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

// Package metrics exposes the daemon's Prometheus counters and gauges at
// GET /api/metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every instrument the daemon updates. A single instance
// is created at startup and threaded through the components that report
// into it.
type Metrics struct {
	Registry *prometheus.Registry

	WorkflowsStartedTotal prometheus.Counter
	WorkflowsActive       prometheus.Gauge
	WorkflowsFailedTotal  prometheus.Counter
	CIEntriesTotal        prometheus.Gauge
	SchedulerTickDuration prometheus.Histogram
	ReapQueueDepth        prometheus.Gauge
}

// New creates a Metrics bundle registered against a fresh registry, kept
// separate from the global default registry so tests can create
// independent instances without collector-already-registered panics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		WorkflowsStartedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "argo_workflows_started_total",
			Help: "Total number of workflows started by the daemon.",
		}),
		WorkflowsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "argo_workflows_active",
			Help: "Number of workflows currently running or suspended.",
		}),
		WorkflowsFailedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "argo_workflows_failed_total",
			Help: "Total number of workflows that ended in a failed state.",
		}),
		CIEntriesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "argo_ci_entries_total",
			Help: "Number of CI workers currently registered.",
		}),
		SchedulerTickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "argo_scheduler_tick_duration_seconds",
			Help:    "Time spent running due scheduler tasks per tick.",
			Buckets: prometheus.DefBuckets,
		}),
		ReapQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "argo_reap_queue_depth",
			Help: "Number of exited-child events buffered awaiting reap.",
		}),
	}
}

// IncWorkflowStarted increments the started-workflows counter. Satisfies
// supervisor.Metrics.
func (m *Metrics) IncWorkflowStarted() {
	m.WorkflowsStartedTotal.Inc()
}

// IncWorkflowFailed increments the failed-workflows counter. Satisfies
// supervisor.Metrics.
func (m *Metrics) IncWorkflowFailed() {
	m.WorkflowsFailedTotal.Inc()
}
