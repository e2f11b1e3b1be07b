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

package workflow

import (
	"sync"
	"time"

	"github.com/ckoons/argo/internal/apierr"
)

// Registry maps workflow_id to Instance, in insertion order, with a dirty
// flag the scheduler flushes to disk on its own schedule.
type Registry struct {
	mu       sync.Mutex
	order    []string
	byID     map[string]*Instance
	dirty    bool
	capacity int
}

// NewRegistry creates an empty registry. A capacity of 0 means unbounded.
func NewRegistry(capacity int) *Registry {
	return &Registry{
		byID:     make(map[string]*Instance),
		capacity: capacity,
	}
}

// Add inserts a new instance. Returns an InputError (duplicate) if the
// workflow_id is already present, or a resource-limit InputError if the
// registry is at capacity.
func (r *Registry) Add(inst *Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[inst.WorkflowID]; exists {
		return apierr.Duplicate("workflow", inst.WorkflowID)
	}
	if r.capacity > 0 && len(r.byID) >= r.capacity {
		return &apierr.InputError{Message: "workflow registry at capacity", Status: 409}
	}

	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now()
	}
	r.byID[inst.WorkflowID] = inst
	r.order = append(r.order, inst.WorkflowID)
	r.dirty = true
	return nil
}

// Get returns a copy of the instance, or a not-found InputError.
func (r *Registry) Get(workflowID string) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.byID[workflowID]
	if !ok {
		return nil, apierr.NotFound("workflow", workflowID)
	}
	copied := *inst
	return &copied, nil
}

// List returns a snapshot of all instances in insertion order.
func (r *Registry) List() []*Instance {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Instance, 0, len(r.order))
	for _, id := range r.order {
		copied := *r.byID[id]
		out = append(out, &copied)
	}
	return out
}

// UpdateState transitions a workflow's status. No-op error if the workflow
// is already in a terminal state (terminal statuses are monotone).
func (r *Registry) UpdateState(workflowID string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.byID[workflowID]
	if !ok {
		return apierr.NotFound("workflow", workflowID)
	}
	if inst.Status.Terminal() {
		return nil
	}

	inst.Status = status
	if status.Terminal() && inst.EndedAt.IsZero() {
		inst.EndedAt = time.Now()
	}
	if status == StatusRunning && inst.StartedAt.IsZero() {
		inst.StartedAt = time.Now()
	}
	r.dirty = true
	return nil
}

// UpdateProgress records checkpoint progress parsed from the executor's
// on-disk checkpoint file.
func (r *Registry) UpdateProgress(workflowID string, currentStep, totalSteps int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.byID[workflowID]
	if !ok {
		return apierr.NotFound("workflow", workflowID)
	}
	inst.CurrentStep = currentStep
	inst.TotalSteps = totalSteps
	r.dirty = true
	return nil
}

// SetPID records the supervisor-assigned executor PID.
func (r *Registry) SetPID(workflowID string, pid int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.byID[workflowID]
	if !ok {
		return apierr.NotFound("workflow", workflowID)
	}
	inst.ExecutorPID = pid
	r.dirty = true
	return nil
}

// Finish marks a workflow terminal with an exit code, clearing its PID. Used
// by the SIGCHLD drainer after a child has been reaped.
func (r *Registry) Finish(workflowID string, status Status, exitCode int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.byID[workflowID]
	if !ok {
		return apierr.NotFound("workflow", workflowID)
	}
	inst.Status = status
	inst.ExitCode = exitCode
	inst.ExecutorPID = 0
	if inst.EndedAt.IsZero() {
		inst.EndedAt = time.Now()
	}
	r.dirty = true
	return nil
}

// FindByPID returns the workflow_id whose ExecutorPID matches pid, if any.
func (r *Registry) FindByPID(pid int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, inst := range r.byID {
		if inst.ExecutorPID == pid {
			return id, true
		}
	}
	return "", false
}

// Remove deletes a workflow from the registry. Returns a not-found
// InputError if it was already absent.
func (r *Registry) Remove(workflowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[workflowID]; !ok {
		return apierr.NotFound("workflow", workflowID)
	}
	delete(r.byID, workflowID)
	for i, id := range r.order {
		if id == workflowID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.dirty = true
	return nil
}

// Count returns the number of instances, optionally filtered by status.
// Pass "" to count all instances.
func (r *Registry) Count(status Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if status == "" {
		return len(r.byID)
	}
	n := 0
	for _, inst := range r.byID {
		if inst.Status == status {
			n++
		}
	}
	return n
}

// Prune removes terminal instances whose EndedAt is before cutoff. Returns
// the number of instances removed.
func (r *Registry) Prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	remaining := r.order[:0]
	for _, id := range r.order {
		inst := r.byID[id]
		if inst.Status.Terminal() && inst.EndedAt.Before(cutoff) {
			delete(r.byID, id)
			removed++
			continue
		}
		remaining = append(remaining, id)
	}
	r.order = remaining
	if removed > 0 {
		r.dirty = true
	}
	return removed
}

// Dirty reports whether the registry has unsaved mutations.
func (r *Registry) Dirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

// ClearDirty resets the dirty flag; called after a successful Save.
func (r *Registry) ClearDirty() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirty = false
}
