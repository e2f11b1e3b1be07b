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

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ckoons/argo/internal/broker"
	"github.com/ckoons/argo/internal/ciregistry"
	"github.com/ckoons/argo/internal/supervisor"
	"github.com/ckoons/argo/internal/workflow"
)

func newStatusTestRouter(t *testing.T) (http.Handler, *workflow.Registry, string) {
	t.Helper()

	reg := workflow.NewRegistry(0)
	ciReg := ciregistry.NewRegistry(0)
	b := broker.New(0)

	checkpointDir := t.TempDir()
	sup := supervisor.New(supervisor.Config{
		CheckpointDir: checkpointDir,
	}, reg, b, nil)

	deps := Deps{
		Config:      RouterConfig{Version: "test"},
		Registry:    reg,
		Supervisor:  sup,
		CIRegistry:  ciReg,
		CILifecycle: ciregistry.NewManager(ciReg, 0, 1, nil),
		Broker:      b,
		Shutdown:    &fakeShutdown{},
	}
	return NewRouter(deps), reg, checkpointDir
}

func TestHandleWorkflowStatus_ReflectsCheckpointPause(t *testing.T) {
	router, reg, checkpointDir := newStatusTestRouter(t)

	workflowID := workflow.ID("release", "demo")
	require.NoError(t, reg.Add(&workflow.Instance{
		WorkflowID:   workflowID,
		TemplateName: "release",
		InstanceName: "demo",
		Status:       workflow.StatusRunning,
	}))

	checkpoint := `{"current_step":3,"total_steps":9,"is_paused":true}`
	require.NoError(t, os.WriteFile(filepath.Join(checkpointDir, workflowID+".json"), []byte(checkpoint), 0600))

	req := httptest.NewRequest(http.MethodGet, "/api/workflow/status?workflow_name="+workflowID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		IsPaused    bool `json:"is_paused"`
		CurrentStep int  `json:"current_step"`
		TotalSteps  int  `json:"total_steps"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.IsPaused)
	assert.Equal(t, 3, body.CurrentStep)
	assert.Equal(t, 9, body.TotalSteps)

	updated, err := reg.Get(workflowID)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.CurrentStep)
	assert.Equal(t, 9, updated.TotalSteps)
}

func TestHandleWorkflowStatus_NoCheckpointKeepsRegistryState(t *testing.T) {
	router, reg, _ := newStatusTestRouter(t)

	workflowID := workflow.ID("release", "solo")
	require.NoError(t, reg.Add(&workflow.Instance{
		WorkflowID:   workflowID,
		TemplateName: "release",
		InstanceName: "solo",
		Status:       workflow.StatusSuspended,
		CurrentStep:  1,
		TotalSteps:   4,
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/workflow/status?workflow_name="+workflowID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		IsPaused    bool `json:"is_paused"`
		CurrentStep int  `json:"current_step"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.IsPaused, "suspended status without a checkpoint still reports paused")
	assert.Equal(t, 1, body.CurrentStep)
}

func TestHandleWorkflowStatus_MissingWorkflow(t *testing.T) {
	router, _, _ := newStatusTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/workflow/status?workflow_name=nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())
}
