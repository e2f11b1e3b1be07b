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

package supervisor

import (
	"syscall"

	"github.com/ckoons/argo/internal/workflow"
)

// ExitEvent is one (pid, wait status) pair enqueued by the signal handler.
type ExitEvent struct {
	PID    int
	Status syscall.WaitStatus
}

// ReapQueue is a wait-free single-producer/single-consumer queue the
// async-signal-safe SIGCHLD handler writes to; the scheduler's reap task is
// the sole consumer. The handler itself performs no allocation beyond the
// fixed-capacity channel send.
type ReapQueue struct {
	ch chan ExitEvent
}

// NewReapQueue creates a queue with the given buffer capacity. Capacity
// should comfortably exceed the number of workflows that could plausibly
// exit between two scheduler ticks.
func NewReapQueue(capacity int) *ReapQueue {
	return &ReapQueue{ch: make(chan ExitEvent, capacity)}
}

// Enqueue is safe to call from a signal handler: it never blocks and never
// allocates beyond the channel send itself. A full queue silently drops the
// event rather than blocking the signal handler. The child has already
// been reaped by then, so a dropped event's exit is not recorded.
func (q *ReapQueue) Enqueue(pid int, status syscall.WaitStatus) {
	select {
	case q.ch <- ExitEvent{PID: pid, Status: status}:
	default:
	}
}

// Depth returns the number of queued-but-undrained events, exposed as a
// metrics gauge.
func (q *ReapQueue) Depth() int {
	return len(q.ch)
}

// Drain pulls every currently queued event and applies it to the registry:
// translate wait status to terminal status/exit code, remove the workflow,
// tear down its I/O channel. This is the only place workflow removal for a
// process exit happens, so exit code capture is consistent regardless of
// whether the process died from pause/resume/abandon or on its own.
func (s *Supervisor) Drain(queue *ReapQueue) {
	for {
		var ev ExitEvent
		select {
		case ev = <-queue.ch:
		default:
			return
		}
		s.reapOne(ev)
	}
}

func (s *Supervisor) reapOne(ev ExitEvent) {
	workflowID, found := s.registry.FindByPID(ev.PID)
	if !found {
		return
	}

	status := workflow.StatusCompleted
	exitCode := 0
	switch {
	case ev.Status.Exited():
		exitCode = ev.Status.ExitStatus()
		if exitCode != 0 {
			status = workflow.StatusFailed
		}
	case ev.Status.Signaled():
		status = workflow.StatusFailed
		exitCode = -int(ev.Status.Signal())
	}

	if err := s.registry.Finish(workflowID, status, exitCode); err != nil {
		s.logger.Warn("failed to finish reaped workflow", "workflow_id", workflowID, "error", err)
		return
	}
	if s.broker != nil {
		s.broker.Close(workflowID)
	}
	if s.metrics != nil && status == workflow.StatusFailed {
		s.metrics.IncWorkflowFailed()
	}
	s.registry.Remove(workflowID)

	s.logger.Info("workflow executor reaped", "workflow_id", workflowID, "status", status, "exit_code", exitCode)
}
