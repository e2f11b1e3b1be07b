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

package ciregistry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ckoons/argo/internal/apierr"
)

// Transition records one state change in a CI worker's history.
type Transition struct {
	At     time.Time `json:"at"`
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	Event  string    `json:"event"`
	Reason string    `json:"reason,omitempty"`
}

// Record is the lifecycle bookkeeping owned 1:1 by a CI registry entry,
// linked by name rather than direct ownership (the registry entry itself
// stays a flat, JSON-serializable value). Holds the data the state machine
// needs beyond the bare Status field: the in-flight task, error tally, and
// heartbeat-miss counter that drives Sweep.
type Record struct {
	CurrentTask      string    `json:"current_task,omitempty"`
	TaskStartTime    time.Time `json:"task_start_time,omitempty"`
	ErrorCount       int       `json:"error_count"`
	LastError        string    `json:"last_error,omitempty"`
	MissedHeartbeats int       `json:"missed_heartbeats"`
}

// validNext enumerates the allowed transitions. Anything not listed here is
// a no-op, not an error: callers describe what they observed, and the
// machine decides whether it changes anything.
var validNext = map[Status]map[Status]bool{
	StatusOffline:  {StatusStarting: true},
	StatusStarting: {StatusReady: true, StatusError: true, StatusShutdown: true},
	StatusReady:    {StatusBusy: true, StatusError: true, StatusShutdown: true},
	StatusBusy:     {StatusReady: true, StatusError: true, StatusShutdown: true},
	StatusError:    {StatusShutdown: true, StatusStarting: true},
	StatusShutdown: {StatusOffline: true},
}

// Manager layers a lifecycle state machine on top of a Registry, keeping an
// append-only transition history and a Record per CI worker.
type Manager struct {
	mu      sync.Mutex
	reg     *Registry
	history map[string][]Transition
	records map[string]*Record
	logger  *slog.Logger

	heartbeatTimeout time.Duration
	maxMissed        int
}

// NewManager creates a lifecycle manager over reg. heartbeatTimeout governs
// Sweep's per-tick staleness check; maxMissed is the number of consecutive
// stale sweeps tolerated before a worker is pushed to StatusError (a value
// <= 0 means "react on the first miss", matching pre-counter behavior).
func NewManager(reg *Registry, heartbeatTimeout time.Duration, maxMissed int, logger *slog.Logger) *Manager {
	return &Manager{
		reg:              reg,
		history:          make(map[string][]Transition),
		records:          make(map[string]*Record),
		heartbeatTimeout: heartbeatTimeout,
		maxMissed:        maxMissed,
		logger:           logger,
	}
}

// SetHeartbeatTimeout changes the staleness window Sweep applies on its
// next tick. Safe to call concurrently with Sweep; intended for a live
// config reload (SPEC_FULL §10) rather than per-request use.
func (m *Manager) SetHeartbeatTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeatTimeout = d
}

// record returns (creating if needed) the Record for name. Callers must
// hold m.mu.
func (m *Manager) record(name string) *Record {
	r, ok := m.records[name]
	if !ok {
		r = &Record{}
		m.records[name] = r
	}
	return r
}

// Transition attempts to move name from its current status to next. An
// invalid transition is a logged no-op, not an error, since a late or
// duplicate event from a CI worker shouldn't fail the caller.
func (m *Manager) Transition(name string, next Status, event, reason string) error {
	entry, err := m.reg.Find(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	from := entry.Status
	if from == next {
		return nil
	}
	if !validNext[from][next] {
		if m.logger != nil {
			m.logger.Warn("ignoring invalid ci state transition",
				"name", name, "from", from, "to", next, "event", event)
		}
		return nil
	}

	if err := m.reg.UpdateStatus(name, next); err != nil {
		return err
	}
	m.history[name] = append(m.history[name], Transition{
		At: time.Now(), From: from, To: next, Event: event, Reason: reason,
	})
	rec := m.record(name)
	if next == StatusError {
		rec.ErrorCount++
		rec.LastError = reason
	}
	if next != StatusBusy {
		rec.CurrentTask = ""
		rec.TaskStartTime = time.Time{}
	}
	return nil
}

// History returns the transition history for name, oldest first.
func (m *Manager) History(name string) []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	hist := m.history[name]
	out := make([]Transition, len(hist))
	copy(out, hist)
	return out
}

// ClearHistory discards name's transition history, the one sanctioned way
// an append-only history shrinks (per the invariant that only removing a
// CI, or an explicit clear, makes history disappear).
func (m *Manager) ClearHistory(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.history, name)
}

// Record returns a copy of name's lifecycle record (zero value if none
// recorded yet).
func (m *Manager) Record(name string) Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[name]; ok {
		return *r
	}
	return Record{}
}

// Sweep checks every non-offline entry's heartbeat age. A stale entry's
// missed-heartbeat counter is incremented; once it reaches maxMissed, an
// error event fires and the counter resets. A fresh heartbeat resets the
// counter to zero. Intended to run on the scheduler's tick.
func (m *Manager) Sweep() {
	now := time.Now()
	threshold := m.maxMissed
	if threshold <= 0 {
		threshold = 1
	}
	for _, e := range m.reg.List() {
		if e.Status == StatusOffline || e.Status == StatusShutdown || e.Status == StatusError {
			continue
		}
		m.mu.Lock()
		rec := m.record(e.Name)
		if e.LastHeartbeat.IsZero() || now.Sub(e.LastHeartbeat) <= m.heartbeatTimeout {
			rec.MissedHeartbeats = 0
			m.mu.Unlock()
			continue
		}
		rec.MissedHeartbeats++
		fire := rec.MissedHeartbeats >= threshold
		if fire {
			rec.MissedHeartbeats = 0
		}
		m.mu.Unlock()
		if fire {
			_ = m.Transition(e.Name, StatusError, "error", "max missed heartbeats exceeded")
		}
	}
}

// Assign picks an available worker for role and marks it busy, recording
// task as its current task. Returns a 409 (conflict) InputError if no
// ready worker exists for the role.
func (m *Manager) Assign(role Role, task string) (*Entry, error) {
	entry, ok := m.reg.FindAvailable(role)
	if !ok {
		return nil, &apierr.InputError{Field: "role", Message: "no available ci worker for role " + string(role), Status: 409}
	}
	if err := m.Transition(entry.Name, StatusBusy, "task_assigned", task); err != nil {
		return nil, err
	}
	m.mu.Lock()
	rec := m.record(entry.Name)
	rec.CurrentTask = task
	rec.TaskStartTime = time.Now()
	m.mu.Unlock()
	entry.Status = StatusBusy
	return entry, nil
}

// Release marks a busy worker ready again once its assigned task completes,
// regardless of whether the task succeeded; success/failure is recorded in
// the transition reason only.
func (m *Manager) Release(name string, success bool, reason string) error {
	event := "task_complete"
	if !success && reason == "" {
		reason = "task failed"
	}
	return m.Transition(name, StatusReady, event, reason)
}
