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
	"net/http"

	"github.com/ckoons/argo/internal/api/httputil"
	"github.com/ckoons/argo/internal/ciregistry"
)

type ciHandler struct {
	registry  *ciregistry.Registry
	lifecycle *ciregistry.Manager
}

func (h *ciHandler) handleList(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"ci": h.registry.List()})
}

type ciStatusResponse struct {
	*ciregistry.Entry
	ciregistry.Record
	History []ciregistry.Transition `json:"history"`
}

func (h *ciHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		httputil.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}
	entry, err := h.registry.Find(name)
	if err != nil {
		httputil.WriteAPIError(w, err)
		return
	}
	var history []ciregistry.Transition
	var record ciregistry.Record
	if h.lifecycle != nil {
		history = h.lifecycle.History(name)
		record = h.lifecycle.Record(name)
	}
	httputil.WriteJSON(w, http.StatusOK, ciStatusResponse{Entry: entry, Record: record, History: history})
}
