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

// Package supervisor owns the process lifecycle of workflow executors:
// spawning, pausing/resuming by signal, abandoning, and reaping exits
// enqueued by the signal layer.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ckoons/argo/internal/apierr"
	"github.com/ckoons/argo/internal/lifecycle"
	"github.com/ckoons/argo/internal/tracing"
	"github.com/ckoons/argo/internal/workflow"
)

func workflowAttr(workflowID string) attribute.KeyValue {
	return attribute.String("workflow_id", workflowID)
}

// Broker is the subset of the I/O channel broker the supervisor needs to
// wire up and tear down per-workflow channels as executors come and go.
type Broker interface {
	Open(workflowID string)
	Close(workflowID string)
}

// Metrics is the subset of the daemon's instrument set the supervisor
// reports into. Left unset (nil) in tests that don't assert on it.
type Metrics interface {
	IncWorkflowStarted()
	IncWorkflowFailed()
}

// Config configures a Supervisor.
type Config struct {
	// ExecutorPaths is the ordered list of candidate executor binary
	// locations, tried before a final $PATH lookup via exec.LookPath.
	ExecutorPaths []string
	// LogDir is where per-workflow executor stdout/stderr is appended.
	LogDir string
	// CheckpointDir is where the executor writes progress checkpoints.
	CheckpointDir string
	// AbandonGraceTimeout bounds how long abandon waits before forcing.
	AbandonGraceTimeout time.Duration
}

// Supervisor spawns, signals, and reaps workflow executor processes.
type Supervisor struct {
	cfg      Config
	registry *workflow.Registry
	broker   Broker
	logger   *slog.Logger
	spawner  *lifecycle.Spawner
	tracer   *tracing.Provider
	metrics  Metrics
}

// New creates a Supervisor bound to the given workflow registry.
func New(cfg Config, registry *workflow.Registry, broker Broker, logger *slog.Logger) *Supervisor {
	if cfg.AbandonGraceTimeout == 0 {
		cfg.AbandonGraceTimeout = time.Second
	}
	return &Supervisor{
		cfg:      cfg,
		registry: registry,
		broker:   broker,
		logger:   logger,
		spawner:  lifecycle.NewSpawner(),
	}
}

// SetTracer attaches a trace provider; Start and Abandon record a child
// span when one is set. Safe to leave unset (nil) in tests.
func (s *Supervisor) SetTracer(p *tracing.Provider) {
	s.tracer = p
}

// SetMetrics attaches a metrics sink; Start and the reap path report into
// it when one is set. Safe to leave unset (nil) in tests.
func (s *Supervisor) SetMetrics(m Metrics) {
	s.metrics = m
}

// resolveExecutor implements the fixed path-precedence search: each
// configured candidate, in order, then a final $PATH lookup.
func (s *Supervisor) resolveExecutor() (string, error) {
	for _, candidate := range s.cfg.ExecutorPaths {
		if abs, err := filepath.Abs(candidate); err == nil {
			if info, statErr := execStat(abs); statErr == nil && !info.IsDir() && isExecutable(info) {
				return abs, nil
			}
		}
	}

	path, err := exec.LookPath("argo_workflow_executor")
	if err != nil {
		return "", &apierr.SystemError{Op: "resolve executor", Cause: err}
	}
	return path, nil
}

// Start spawns a workflow executor for the given workflow id and template.
func (s *Supervisor) Start(ctx context.Context, workflowID, templateName, instanceName, branch, templatePath string) (err error) {
	_, span := tracing.StartSpan(ctx, s.tracer, "argo/supervisor", "supervisor.Start")
	span.SetAttributes(workflowAttr(workflowID))
	defer func() { tracing.EndSpan(span, err) }()

	if _, err := s.registry.Get(workflowID); err == nil {
		return apierr.Duplicate("workflow", workflowID)
	}

	binary, err := s.resolveExecutor()
	if err != nil {
		return err
	}

	logPath := filepath.Join(s.cfg.LogDir, workflowID+".log")
	args := []string{"--workflow-id", workflowID, "--template", templatePath, "--branch", branch}

	inst := &workflow.Instance{
		WorkflowID:   workflowID,
		TemplateName: templateName,
		InstanceName: instanceName,
		ActiveBranch: branch,
		Status:       workflow.StatusPending,
	}
	if err := s.registry.Add(inst); err != nil {
		return err
	}

	pid, err := s.spawner.SpawnDetached(binary, args, logPath)
	if err != nil {
		s.registry.Remove(workflowID)
		return &apierr.SystemError{Op: "spawn executor", Cause: err}
	}

	if err := s.registry.SetPID(workflowID, pid); err != nil {
		return err
	}
	if err := s.registry.UpdateState(workflowID, workflow.StatusRunning); err != nil {
		return err
	}
	if s.broker != nil {
		s.broker.Open(workflowID)
	}
	if s.metrics != nil {
		s.metrics.IncWorkflowStarted()
	}

	s.logger.Info("workflow executor started", "workflow_id", workflowID, "pid", pid)
	return nil
}

// Pause sends SIGUSR1, asking the executor to suspend at its next checkpoint.
func (s *Supervisor) Pause(workflowID string) error {
	return s.signal(workflowID, syscall.SIGUSR1, workflow.StatusSuspended)
}

// Resume sends SIGUSR2, asking a suspended executor to continue.
func (s *Supervisor) Resume(workflowID string) error {
	return s.signal(workflowID, syscall.SIGUSR2, workflow.StatusRunning)
}

func (s *Supervisor) signal(workflowID string, sig syscall.Signal, nextStatus workflow.Status) error {
	inst, err := s.registry.Get(workflowID)
	if err != nil {
		return err
	}

	if inst.ExecutorPID <= 0 || !lifecycle.IsProcessRunning(inst.ExecutorPID) {
		// Silently-dead worker: reconcile rather than error, per contract
		// that pause/resume on a dead process still returns success.
		s.registry.Finish(workflowID, workflow.StatusCompleted, 0)
		return nil
	}

	if err := lifecycle.SendSignal(inst.ExecutorPID, sig); err != nil {
		return &apierr.SystemError{Op: fmt.Sprintf("signal %v", sig), Cause: err}
	}
	return s.registry.UpdateState(workflowID, nextStatus)
}

// Abandon terminates a workflow's executor: SIGTERM, brief grace period,
// then SIGKILL if still alive. The registry entry is left for the SIGCHLD
// drainer to remove once the exit is reaped, so exit code capture stays
// consistent regardless of which path kills the process.
func (s *Supervisor) Abandon(ctx context.Context, workflowID string) (err error) {
	_, span := tracing.StartSpan(ctx, s.tracer, "argo/supervisor", "supervisor.Abandon")
	span.SetAttributes(workflowAttr(workflowID))
	defer func() { tracing.EndSpan(span, err) }()

	inst, err := s.registry.Get(workflowID)
	if err != nil {
		return err
	}

	if inst.ExecutorPID <= 0 || !lifecycle.IsProcessRunning(inst.ExecutorPID) {
		return nil
	}

	if err := lifecycle.GracefulShutdown(inst.ExecutorPID, s.cfg.AbandonGraceTimeout, true); err != nil {
		s.logger.Warn("abandon did not cleanly stop executor", "workflow_id", workflowID, "error", err)
	}
	return nil
}

// IsAlive reports whether the given PID is a live process. Used both to
// detect silently-dead workers and to validate state at status queries.
func IsAlive(pid int) bool {
	return pid > 0 && lifecycle.IsProcessRunning(pid)
}
