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

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/ckoons/argo/internal/config"
	"github.com/ckoons/argo/internal/daemon"
	"github.com/ckoons/argo/internal/log"
)

// Version information, injected via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		port        = flag.Int("port", 0, "TCP loopback port to bind (overrides config and ARGO_DAEMON_PORT)")
		configPath  = flag.String("config", "", "Path to a daemon.yaml override file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("argo-daemon %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	overridePath := *configPath
	if overridePath == "" {
		overridePath = cfg.OverridePath()
	}
	if err := cfg.LoadFile(overridePath); err != nil {
		logger.Error("failed to load config override file", slog.Any("error", err))
		os.Exit(1)
	}

	if *port != 0 {
		cfg.Port = *port
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", slog.Any("error", err))
		os.Exit(1)
	}

	printBanner(cfg.Port)

	d, err := daemon.New(cfg, daemon.Options{Version: version, Commit: commit, BuildDate: buildDate})
	if err != nil {
		logger.Error("failed to create daemon", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nreceived signal %v, shutting down...\n", sig)
		cancel()
	}()

	if err := d.Run(ctx); err != nil {
		logger.Error("daemon exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

// printBanner prints a short startup banner, colored only when stdout is
// an interactive terminal.
func printBanner(port int) {
	isTTY := os.Getenv("NO_COLOR") == "" && term.IsTerminal(int(os.Stdout.Fd()))

	msg := fmt.Sprintf("argo daemon listening on 127.0.0.1:%d", port)
	if isTTY {
		fmt.Printf("\033[1;36m%s\033[0m\n", msg)
		return
	}
	fmt.Println(msg)
}
