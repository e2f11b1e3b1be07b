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

package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ckoons/argo/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Port = 0
	cfg.HeartbeatTimeout = 2 * time.Second
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func TestNew_WiresComponentsWithoutError(t *testing.T) {
	d, err := New(testConfig(t), Options{Version: "test"})
	require.NoError(t, err)
	assert.NotNil(t, d.registry)
	assert.NotNil(t, d.ciRegistry)
	assert.NotNil(t, d.broker)
	assert.NotNil(t, d.supervisor)
	assert.NotNil(t, d.scheduler)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Port = 19876 // fixed loopback port, unlikely to collide in test sandbox
	d, err := New(cfg, Options{Version: "test"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop within timeout")
	}
}

func TestRequestShutdown_IsIdempotent(t *testing.T) {
	d, err := New(testConfig(t), Options{Version: "test"})
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		d.RequestShutdown()
		d.RequestShutdown()
	})
}
