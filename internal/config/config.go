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

// Package config loads and validates the argo daemon's configuration.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the daemon needs to start.
type Config struct {
	// Version is the config file format version (1 = initial release).
	Version int `yaml:"version,omitempty"`

	// Port is the TCP loopback port the HTTP front end binds to.
	Port int `yaml:"port"`

	// DataDir anchors all on-disk state ($HOME/.argo by default).
	DataDir string `yaml:"data_dir"`

	// ExecutorPaths is the ordered list of candidate locations searched for
	// the workflow executor binary, ahead of a final $PATH lookup.
	ExecutorPaths []string `yaml:"executor_paths,omitempty"`

	// HeartbeatTimeout is how long a CI worker may go without a heartbeat
	// before it is considered to have missed one.
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`

	// MaxMissedHeartbeats is the number of consecutive missed heartbeats
	// before the lifecycle manager emits an error event for a CI worker.
	MaxMissedHeartbeats int `yaml:"max_missed_heartbeats"`

	// ShutdownTimeout bounds how long the daemon waits for a graceful
	// executor or listener shutdown before forcing it.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// ScheduleCheckInterval is the shared-services scheduler's tick period.
	ScheduleCheckInterval time.Duration `yaml:"schedule_check_interval"`

	// RegistrySaveInterval is how often the workflow registry flushes a
	// dirty in-memory state to disk.
	RegistrySaveInterval time.Duration `yaml:"registry_save_interval"`

	// LogLevel is one of the few settings safe to change on a live daemon:
	// the fsnotify-driven override-file watcher applies a changed value to
	// the running logger without a restart. Empty means "leave as started."
	LogLevel string `yaml:"log_level,omitempty"`

	// Env is informational; it records the ARC_ENV value the daemon was
	// started with. It is not included in the /api/version response.
	Env string `yaml:"-"`
}

const (
	// DefaultPort is the daemon's default HTTP listen port.
	DefaultPort = 9876

	envPort = "ARGO_DAEMON_PORT"
	envHome = "HOME"
	envEnv  = "ARC_ENV"
)

// Default returns a Config populated with the daemon's built-in defaults.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".argo")

	return &Config{
		Version: 1,
		Port:    DefaultPort,
		DataDir: dataDir,
		ExecutorPaths: []string{
			"./bin/argo_workflow_executor",
			filepath.Join(home, ".local", "bin", "argo_workflow_executor"),
		},
		HeartbeatTimeout:      30 * time.Second,
		MaxMissedHeartbeats:   3,
		ShutdownTimeout:       5 * time.Second,
		ScheduleCheckInterval: 100 * time.Millisecond,
		RegistrySaveInterval:  5 * time.Second,
	}
}

// FromEnv overlays environment variables onto the defaults: ARGO_DAEMON_PORT,
// HOME (required; anchors DataDir) and ARC_ENV (informational).
func FromEnv() (*Config, error) {
	cfg := Default()

	home := os.Getenv(envHome)
	if home == "" {
		return nil, errHomeRequired
	}
	cfg.DataDir = filepath.Join(home, ".argo")
	cfg.ExecutorPaths[1] = filepath.Join(home, ".local", "bin", "argo_workflow_executor")

	if p := os.Getenv(envPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, &portError{value: p, err: err}
		}
		cfg.Port = port
	}

	cfg.Env = os.Getenv(envEnv)

	return cfg, nil
}

// LoadFile overlays an operator-supplied YAML override file onto cfg.
// A missing file is not an error; the defaults/environment values stand.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return yaml.Unmarshal(data, c)
}

// Validate checks invariants that cannot be expressed in the zero value.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &portError{value: strconv.Itoa(c.Port)}
	}
	if c.DataDir == "" {
		return errDataDirRequired
	}
	return nil
}

// OverridePath is the location of the optional live-reloadable YAML config.
func (c *Config) OverridePath() string {
	return filepath.Join(c.DataDir, "daemon.yaml")
}
