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
	"os"
	"os/signal"
	"syscall"
)

// WatchSIGCHLD registers a SIGCHLD handler that does the minimum possible
// work: reap every exited child with a non-blocking wait4 and enqueue its
// (pid, status) pair. All real handling happens later, on the scheduler's
// reap task — never here. Returns a stop function.
func WatchSIGCHLD(queue *ReapQueue) (stop func()) {
	sigCh := make(chan os.Signal, 16)
	signal.Notify(sigCh, syscall.SIGCHLD)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigCh:
				reapExited(queue)
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// reapExited drains every exited child currently reapable via a
// non-blocking wait4 loop, enqueueing each. This mirrors the C idiom of
// looping wait() in a SIGCHLD handler until ECHILD, since multiple children
// can exit before the handler runs once.
func reapExited(queue *ReapQueue) {
	for {
		var status syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &status, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
		queue.Enqueue(pid, status)
	}
}
