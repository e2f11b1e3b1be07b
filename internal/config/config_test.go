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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.NotEmpty(t, cfg.DataDir)
	assert.Len(t, cfg.ExecutorPaths, 2)
	require.NoError(t, cfg.Validate())
}

func TestFromEnv(t *testing.T) {
	t.Run("requires HOME", func(t *testing.T) {
		t.Setenv("HOME", "")
		os.Unsetenv("HOME")
		_, err := FromEnv()
		assert.ErrorIs(t, err, errHomeRequired)
	})

	t.Run("applies port override", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		t.Setenv("ARGO_DAEMON_PORT", "9000")
		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Port)
	})

	t.Run("rejects non-numeric port", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		t.Setenv("ARGO_DAEMON_PORT", "not-a-number")
		_, err := FromEnv()
		assert.Error(t, err)
	})

	t.Run("carries ARC_ENV through", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		t.Setenv("ARC_ENV", "staging")
		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, "staging", cfg.Env)
	})
}

func TestLoadFile(t *testing.T) {
	t.Run("missing file is not an error", func(t *testing.T) {
		cfg := Default()
		err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.NoError(t, err)
	})

	t.Run("overlays YAML values", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "daemon.yaml")
		require.NoError(t, os.WriteFile(path, []byte("port: 8080\n"), 0o600))

		cfg := Default()
		require.NoError(t, cfg.LoadFile(path))
		assert.Equal(t, 8080, cfg.Port)
	})
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.DataDir = ""
	assert.Error(t, cfg.Validate())
}

func TestOverridePath(t *testing.T) {
	cfg := Default()
	assert.Equal(t, filepath.Join(cfg.DataDir, "daemon.yaml"), cfg.OverridePath())
}
