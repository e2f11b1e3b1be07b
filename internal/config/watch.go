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
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the override file and invokes onReload with a freshly
// parsed Config whenever it changes. Only the fields documented as
// reloadable (heartbeat timeout, log level) are meant to be applied live;
// changes to port or data dir are logged and otherwise ignored by the
// caller.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	logger  *slog.Logger
}

// NewWatcher starts watching the directory containing path (fsnotify
// watches directories, not individual files, so it survives editor
// save-as-rename patterns).
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fw.Add(dirOf(path)); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{watcher: fw, path: path, logger: logger}, nil
}

// Run blocks, invoking onReload each time the override file is written,
// until Close is called.
func (w *Watcher) Run(onReload func(*Config)) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			cfg := Default()
			if err := cfg.LoadFile(w.path); err != nil {
				w.logger.Warn("config reload failed", "path", w.path, "error", err)
				continue
			}
			onReload(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
