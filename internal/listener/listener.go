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

// Package listener binds the daemon's loopback-only HTTP port, taking
// over gracefully from a still-running prior instance when the port is
// already in use.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ckoons/argo/internal/lifecycle"
)

// ErrRemoteBindRejected is returned when the configured address is not a
// loopback address. This daemon never binds to a non-loopback interface:
// workflow execution is a local-machine privilege, not a network service.
type ErrRemoteBindRejected struct {
	Addr string
}

func (e *ErrRemoteBindRejected) Error() string {
	return fmt.Sprintf("refusing to bind %s: only loopback addresses are allowed", e.Addr)
}

// Options configures New.
type Options struct {
	Addr             string // e.g. "127.0.0.1:9876"
	TakeoverTimeout  time.Duration
	ShutdownEndpoint string // e.g. "http://127.0.0.1:9876/api/shutdown"
	HealthEndpoint   string // e.g. "http://127.0.0.1:9876/api/health"
	Logger           *slog.Logger
}

// New binds a TCP listener on a loopback address. If the address is
// already bound by a live daemon, it asks that daemon to shut down
// gracefully and retries before giving up.
func New(ctx context.Context, opts Options) (net.Listener, error) {
	if !isLoopbackAddr(opts.Addr) {
		return nil, &ErrRemoteBindRejected{Addr: opts.Addr}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", opts.Addr)
	if err == nil {
		return ln, nil
	}
	if !isAddrInUse(err) {
		return nil, fmt.Errorf("listen %s: %w", opts.Addr, err)
	}

	logger.Info("port in use, attempting graceful takeover", slog.String("addr", opts.Addr))
	if takeoverErr := takeover(ctx, opts, logger); takeoverErr != nil {
		return nil, fmt.Errorf("listen %s: port in use and takeover failed: %w", opts.Addr, takeoverErr)
	}

	ln, err = net.Listen("tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: still in use after takeover: %w", opts.Addr, err)
	}
	return ln, nil
}

// takeover asks the process currently holding the port to shut down,
// then waits for the port to free up. It implements only the graceful
// phase: a stuck or unresponsive prior daemon is reported as an error
// rather than forcibly killed by PID (see DESIGN.md's listener entry).
func takeover(ctx context.Context, opts Options, logger *slog.Logger) error {
	checker := lifecycle.NewHealthChecker(opts.HealthEndpoint)
	result := checker.Check(ctx)
	if !result.Success {
		return fmt.Errorf("port is in use but no healthy daemon answered at %s", opts.HealthEndpoint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.ShutdownEndpoint, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting shutdown: %w", err)
	}
	resp.Body.Close()

	timeout := opts.TakeoverTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		probe, err := net.DialTimeout("tcp", opts.Addr, 200*time.Millisecond)
		if err != nil {
			logger.Info("port released by prior daemon", slog.String("addr", opts.Addr))
			return nil
		}
		probe.Close()
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("prior daemon did not release %s within %s", opts.Addr, timeout)
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "" {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func isAddrInUse(err error) bool {
	return err != nil && strings.Contains(err.Error(), "address already in use")
}
