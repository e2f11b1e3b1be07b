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

package supervisor

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Checkpoint is the subset of the executor's on-disk progress file the
// supervisor reads to fill a status response. The executor owns the file
// format; the daemon reads only these fields and ignores the rest.
type Checkpoint struct {
	CurrentStep int  `json:"current_step"`
	TotalSteps  int  `json:"total_steps"`
	IsPaused    bool `json:"is_paused"`
}

// ReadCheckpoint reads the checkpoint for workflowID. A missing file is
// non-fatal: it returns a zero-value Checkpoint and a nil error.
func (s *Supervisor) ReadCheckpoint(workflowID string) (*Checkpoint, error) {
	path := filepath.Join(s.cfg.CheckpointDir, workflowID+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Checkpoint{}, nil
		}
		return nil, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		// Treat a partially-written checkpoint as absent rather than fatal;
		// the executor will overwrite it again shortly.
		return &Checkpoint{}, nil
	}
	return &cp, nil
}
