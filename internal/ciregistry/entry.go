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

// Package ciregistry tracks Companion Intelligence (CI) workers: their
// names, roles, allocated ports, and status, layered with a lifecycle state
// machine that records every transition.
package ciregistry

import "time"

// Role is the kind of work a CI worker is assigned.
type Role string

const (
	RoleBuilder      Role = "builder"
	RoleCoordinator  Role = "coordinator"
	RoleRequirements Role = "requirements"
	RoleAnalysis     Role = "analysis"
	RoleReserved     Role = "reserved"
)

// Status is a CI worker's current lifecycle state.
type Status string

const (
	StatusOffline  Status = "offline"
	StatusStarting Status = "starting"
	StatusReady    Status = "ready"
	StatusBusy     Status = "busy"
	StatusError    Status = "error"
	StatusShutdown Status = "shutdown"
)

// Entry is one CI registry record.
type Entry struct {
	Name          string    `json:"name"`
	Role          Role      `json:"role"`
	Model         string    `json:"model"`
	Host          string    `json:"host"`
	Port          int       `json:"port"`
	Status        Status    `json:"status"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	RegisteredAt  time.Time `json:"registered_at"`
	Sent          int64     `json:"sent"`
	Received      int64     `json:"received"`
	Errors        int64     `json:"errors"`
}

// roleBase defines the contiguous port-slot range for each role: base +
// role_offset, 10 slots per role.
var roleBase = map[Role]int{
	RoleBuilder:      20000,
	RoleCoordinator:  20010,
	RoleRequirements: 20020,
	RoleAnalysis:     20030,
	RoleReserved:     20040,
}

const slotsPerRole = 10
