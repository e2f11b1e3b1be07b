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
	"io"
	"log/slog"
	"net/http"

	"github.com/ckoons/argo/internal/api/httputil"
	"github.com/ckoons/argo/internal/broker"
	"github.com/ckoons/argo/internal/supervisor"
	"github.com/ckoons/argo/internal/workflow"
)

type workflowHandler struct {
	registry   *workflow.Registry
	supervisor *supervisor.Supervisor
	broker     *broker.Broker
	logger     *slog.Logger
}

// log returns h.logger, falling back to slog.Default() so handlers never
// need a nil check of their own before logging.
func (h *workflowHandler) log() *slog.Logger {
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}

type startRequest struct {
	Template    string `json:"template"`
	Instance    string `json:"instance"`
	Branch      string `json:"branch"`
	Environment string `json:"environment"`
}

type startResponse struct {
	WorkflowID string `json:"workflow_id"`
}

func (h *workflowHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Template == "" || req.Instance == "" {
		httputil.WriteError(w, http.StatusBadRequest, "template and instance are required")
		return
	}
	branch := req.Branch
	if branch == "" {
		branch = "main"
	}

	workflowID := workflow.ID(req.Template, req.Instance)
	templatePath := req.Template + ".yaml"

	if err := h.supervisor.Start(r.Context(), workflowID, req.Template, req.Instance, branch, templatePath); err != nil {
		httputil.WriteAPIError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, startResponse{WorkflowID: workflowID})
}

func (h *workflowHandler) handleList(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"workflows": h.registry.List()})
}

// statusResponse merges the registry's instance record with the executor's
// latest on-disk checkpoint, per SPEC_FULL §4.3: "the supervisor parses
// this to fill the status response."
type statusResponse struct {
	*workflow.Instance
	IsPaused bool `json:"is_paused"`
}

func (h *workflowHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("workflow_name")
	if name == "" {
		httputil.WriteError(w, http.StatusBadRequest, "workflow_name is required")
		return
	}
	inst, err := h.registry.Get(name)
	if err != nil {
		httputil.WriteAPIError(w, err)
		return
	}

	isPaused := inst.Status == workflow.StatusSuspended
	if h.supervisor != nil {
		cp, err := h.supervisor.ReadCheckpoint(name)
		if err != nil {
			h.log().Warn("failed to read workflow checkpoint", "workflow_id", name, "error", err)
		} else if cp.TotalSteps > 0 || cp.CurrentStep > 0 || cp.IsPaused {
			if uerr := h.registry.UpdateProgress(name, cp.CurrentStep, cp.TotalSteps); uerr != nil {
				h.log().Warn("failed to record workflow progress", "workflow_id", name, "error", uerr)
			} else {
				inst.CurrentStep = cp.CurrentStep
				inst.TotalSteps = cp.TotalSteps
			}
			isPaused = cp.IsPaused
		}
	}

	httputil.WriteJSON(w, http.StatusOK, statusResponse{Instance: inst, IsPaused: isPaused})
}

func (h *workflowHandler) handleAbandon(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("workflow_name")
	if name == "" {
		httputil.WriteError(w, http.StatusBadRequest, "workflow_name is required")
		return
	}
	if err := h.supervisor.Abandon(r.Context(), name); err != nil {
		httputil.WriteAPIError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "abandoned"})
}

func (h *workflowHandler) handlePause(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("workflow_name")
	if name == "" {
		httputil.WriteError(w, http.StatusBadRequest, "workflow_name is required")
		return
	}
	if err := h.supervisor.Pause(name); err != nil {
		httputil.WriteAPIError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (h *workflowHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("workflow_name")
	if name == "" {
		httputil.WriteError(w, http.StatusBadRequest, "workflow_name is required")
		return
	}
	if err := h.supervisor.Resume(name); err != nil {
		httputil.WriteAPIError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (h *workflowHandler) handleInput(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "failed to read body: "+err.Error())
		return
	}
	if err := h.broker.PushInput(id, data); err != nil {
		httputil.WriteAPIError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

func (h *workflowHandler) handleOutput(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	msg, ok, err := h.broker.PopOutput(id)
	if err != nil {
		httputil.WriteAPIError(w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, msg)
}
