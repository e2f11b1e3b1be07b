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

// Package workflow tracks the lifecycle of workflow instances supervised by
// the daemon, and persists that state as crash-safe JSON.
package workflow

import "time"

// Status is the lifecycle state of a workflow instance.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether status is a terminal (non-advancing) state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusAbandoned:
		return true
	default:
		return false
	}
}

// Instance is one workflow execution tracked by the registry.
type Instance struct {
	WorkflowID   string    `json:"workflow_id"`
	TemplateName string    `json:"template_name"`
	InstanceName string    `json:"instance_name"`
	ActiveBranch string    `json:"active_branch"`
	Status       Status    `json:"status"`
	ExecutorPID  int       `json:"executor_pid"`
	CreatedAt    time.Time `json:"created_at"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	EndedAt      time.Time `json:"ended_at,omitempty"`
	CurrentStep  int       `json:"current_step"`
	TotalSteps   int       `json:"total_steps"`
	ExitCode     int       `json:"exit_code"`
}

// ID builds the canonical workflow_id from a template/instance pair.
func ID(template, instance string) string {
	return template + "_" + instance
}
