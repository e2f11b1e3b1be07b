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

// Package daemon wires together the workflow registry, executor
// supervisor, CI registry, channel broker, scheduler, and HTTP front end
// into the running argo daemon process.
package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ckoons/argo/internal/api"
	"github.com/ckoons/argo/internal/broker"
	"github.com/ckoons/argo/internal/ciregistry"
	"github.com/ckoons/argo/internal/config"
	"github.com/ckoons/argo/internal/lifecycle"
	internallog "github.com/ckoons/argo/internal/log"
	"github.com/ckoons/argo/internal/listener"
	"github.com/ckoons/argo/internal/metrics"
	"github.com/ckoons/argo/internal/scheduler"
	"github.com/ckoons/argo/internal/supervisor"
	"github.com/ckoons/argo/internal/tracing"
	"github.com/ckoons/argo/internal/workflow"

	"log/slog"
)

// Options carries build metadata set at link time via -ldflags.
type Options struct {
	Version   string
	Commit    string
	BuildDate string
}

// Daemon owns every long-lived component and the HTTP server that fronts
// them.
type Daemon struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	registry    *workflow.Registry
	ciRegistry  *ciregistry.Registry
	ciLifecycle *ciregistry.Manager
	broker      *broker.Broker
	supervisor  *supervisor.Supervisor
	scheduler   *scheduler.Scheduler
	metrics     *metrics.Metrics
	reapQueue   *supervisor.ReapQueue
	stopSIGCHLD func()
	tracer      *tracing.Provider
	tracerFile  *os.File
	pidFile     *lifecycle.PIDFileManager
	logLevel    *slog.LevelVar
	cfgWatcher  *config.Watcher

	registryPath string
	ciRegPath    string

	server *http.Server
	ln     net.Listener

	mu       sync.Mutex
	started  bool
	shutdown chan struct{}
}

// New constructs a Daemon from cfg, wiring every component together but
// not yet binding the listener or starting background loops.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	baseLogger, levelVar := internallog.NewDynamic(internallog.FromEnv())
	logger := internallog.WithComponent(baseLogger, "daemon")

	if err := ensureDataDir(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	workflowsDir := filepath.Join(cfg.DataDir, "workflows")
	registryPath := filepath.Join(workflowsDir, "registry.json")
	reg := workflow.NewRegistry(1024)
	if err := reg.Load(registryPath, logger); err != nil {
		return nil, fmt.Errorf("loading workflow registry: %w", err)
	}

	ciRegPath := filepath.Join(cfg.DataDir, "ci_registry.json")
	ciReg := ciregistry.NewRegistry(256)
	if err := ciReg.LoadState(ciRegPath); err != nil {
		logger.Warn("failed to load ci registry state, starting empty", internallog.Error(err))
	}
	ciLifecycle := ciregistry.NewManager(ciReg, cfg.HeartbeatTimeout, cfg.MaxMissedHeartbeats, logger)

	pidFile := lifecycle.NewPIDFileManager(filepath.Join(cfg.DataDir, "daemon.pid"))
	if err := claimPIDFile(pidFile); err != nil {
		return nil, fmt.Errorf("claiming pid file: %w", err)
	}

	chBroker := broker.New(0)

	tracerFile, err := os.OpenFile(filepath.Join(cfg.DataDir, "traces.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening trace log: %w", err)
	}
	tracer, err := tracing.NewProvider("argo-daemon", opts.Version, tracerFile)
	if err != nil {
		return nil, fmt.Errorf("creating trace provider: %w", err)
	}

	sup := supervisor.New(supervisor.Config{
		ExecutorPaths:       cfg.ExecutorPaths,
		LogDir:              filepath.Join(cfg.DataDir, "logs"),
		CheckpointDir:       filepath.Join(workflowsDir, "checkpoints"),
		AbandonGraceTimeout: cfg.ShutdownTimeout,
	}, reg, chBroker, logger)
	sup.SetTracer(tracer)

	m := metrics.New()
	sup.SetMetrics(m)
	sched := scheduler.New(cfg.ScheduleCheckInterval, logger)
	sched.TickObserver = func(d time.Duration) { m.SchedulerTickDuration.Observe(d.Seconds()) }
	reapQueue := supervisor.NewReapQueue(256)

	d := &Daemon{
		cfg:          cfg,
		opts:         opts,
		logger:       logger,
		registry:     reg,
		ciRegistry:   ciReg,
		ciLifecycle:  ciLifecycle,
		broker:       chBroker,
		supervisor:   sup,
		scheduler:    sched,
		metrics:      m,
		reapQueue:    reapQueue,
		tracer:       tracer,
		tracerFile:   tracerFile,
		pidFile:      pidFile,
		logLevel:     levelVar,
		registryPath: registryPath,
		ciRegPath:    ciRegPath,
		shutdown:     make(chan struct{}),
	}

	d.registerScheduledTasks(registryPath, ciRegPath)
	return d, nil
}

// claimPIDFile creates the daemon's PID file, clearing out a stale one left
// by a process that is no longer running.
func claimPIDFile(pidFile *lifecycle.PIDFileManager) error {
	err := pidFile.Create(os.Getpid())
	if err == nil {
		return nil
	}
	if err != lifecycle.ErrPIDFileExists {
		return err
	}

	existing, readErr := pidFile.Read()
	if readErr == nil && lifecycle.IsProcessRunning(existing) {
		return fmt.Errorf("daemon already running with pid %d", existing)
	}

	if rmErr := pidFile.Remove(); rmErr != nil {
		return fmt.Errorf("removing stale pid file: %w", rmErr)
	}
	return pidFile.Create(os.Getpid())
}

func (d *Daemon) registerScheduledTasks(registryPath, ciRegPath string) {
	d.scheduler.Register(scheduler.Task{
		Name:     "drain_reap_queue",
		Enabled:  true,
		Interval: 200 * time.Millisecond,
		Fn: func(ctx context.Context) {
			d.metrics.ReapQueueDepth.Set(float64(d.reapQueue.Depth()))
			d.supervisor.Drain(d.reapQueue)
		},
	})
	d.scheduler.Register(scheduler.Task{
		Name:     "flush_workflow_registry",
		Enabled:  true,
		Interval: d.cfg.RegistrySaveInterval,
		Fn: func(ctx context.Context) {
			if !d.registry.Dirty() {
				return
			}
			if err := d.registry.Save(registryPath); err != nil {
				d.logger.Error("failed to save workflow registry", internallog.Error(err))
			}
		},
	})
	d.scheduler.Register(scheduler.Task{
		Name:     "ci_heartbeat_sweep",
		Enabled:  true,
		Interval: d.cfg.HeartbeatTimeout / 2,
		Fn: func(ctx context.Context) {
			d.ciLifecycle.Sweep()
			if err := d.ciRegistry.SaveState(ciRegPath); err != nil {
				d.logger.Error("failed to save ci registry", internallog.Error(err))
			}
		},
	})
	d.scheduler.Register(scheduler.Task{
		Name:     "prune_old_workflows",
		Enabled:  true,
		Interval: time.Minute,
		Fn: func(ctx context.Context) {
			removed := d.registry.Prune(time.Now().Add(-24 * time.Hour))
			if removed > 0 {
				d.logger.Info("pruned stale workflows", slog.Int("count", removed))
			}
		},
	})
	d.scheduler.Register(scheduler.Task{
		Name:     "refresh_gauges",
		Enabled:  true,
		Interval: d.cfg.ScheduleCheckInterval * 5,
		Fn: func(ctx context.Context) {
			active := d.registry.Count(workflow.StatusRunning) + d.registry.Count(workflow.StatusSuspended)
			d.metrics.WorkflowsActive.Set(float64(active))
			d.metrics.CIEntriesTotal.Set(float64(len(d.ciRegistry.List())))
		},
	})
}

// RequestShutdown signals the daemon to begin a graceful shutdown.
// Satisfies api.ShutdownRequester.
func (d *Daemon) RequestShutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.shutdown:
	default:
		close(d.shutdown)
	}
}

// Run binds the listener, starts every background loop, and serves HTTP
// until ctx is cancelled or a shutdown is requested. It blocks until the
// daemon has fully stopped.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.started = true
	d.mu.Unlock()

	addr := fmt.Sprintf("127.0.0.1:%d", d.cfg.Port)
	ln, err := listener.New(ctx, listener.Options{
		Addr:             addr,
		ShutdownEndpoint: fmt.Sprintf("http://%s/api/shutdown", addr),
		HealthEndpoint:   fmt.Sprintf("http://%s/api/health", addr),
		Logger:           d.logger,
	})
	if err != nil {
		return fmt.Errorf("binding listener: %w", err)
	}
	d.ln = ln

	router := api.NewRouter(api.Deps{
		Config:      api.RouterConfig{Version: d.opts.Version, Commit: d.opts.Commit, BuildDate: d.opts.BuildDate},
		Registry:    d.registry,
		Supervisor:  d.supervisor,
		CIRegistry:  d.ciRegistry,
		CILifecycle: d.ciLifecycle,
		Broker:      d.broker,
		Shutdown:    d,
		Logger:      d.logger,
		Tracer:      d.tracer,
		MetricsMux:  promhttp.HandlerFor(d.metrics.Registry, promhttp.HandlerOpts{}),
	})

	d.server = &http.Server{
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	d.stopSIGCHLD = supervisor.WatchSIGCHLD(d.reapQueue)
	d.scheduler.Start(ctx)

	if watcher, err := config.NewWatcher(d.cfg.OverridePath(), d.logger); err != nil {
		d.logger.Warn("config watcher unavailable, live reload disabled", internallog.Error(err))
	} else {
		d.cfgWatcher = watcher
		go watcher.Run(d.applyConfigReload)
	}

	d.logger.Info("argo daemon starting",
		slog.String("version", d.opts.Version),
		slog.String("listen_addr", ln.Addr().String()))

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := d.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		select {
		case <-gctx.Done():
		case <-d.shutdown:
		}
		return d.shutdownComponents()
	})

	return group.Wait()
}

// applyConfigReload applies the subset of cfg documented as live-reloadable
// (SPEC_FULL §10: heartbeat timeout and log level). A changed port or data
// dir is logged as needing a restart; every other field is ignored until
// the next restart.
func (d *Daemon) applyConfigReload(cfg *config.Config) {
	if cfg.HeartbeatTimeout > 0 && cfg.HeartbeatTimeout != d.cfg.HeartbeatTimeout {
		d.ciLifecycle.SetHeartbeatTimeout(cfg.HeartbeatTimeout)
		d.cfg.HeartbeatTimeout = cfg.HeartbeatTimeout
		d.logger.Info("heartbeat timeout reloaded", slog.Duration("heartbeat_timeout", cfg.HeartbeatTimeout))
	}
	if cfg.LogLevel != "" && cfg.LogLevel != d.cfg.LogLevel {
		internallog.SetLevel(d.logLevel, cfg.LogLevel)
		d.cfg.LogLevel = cfg.LogLevel
		d.logger.Info("log level reloaded", slog.String("log_level", cfg.LogLevel))
	}
	if cfg.Port != d.cfg.Port || cfg.DataDir != d.cfg.DataDir {
		d.logger.Warn("ignoring non-reloadable config change, restart required",
			slog.Int("port", cfg.Port), slog.String("data_dir", cfg.DataDir))
	}
}

func (d *Daemon) shutdownComponents() error {
	d.logger.Info("graceful shutdown initiated")

	d.scheduler.Stop()
	if d.stopSIGCHLD != nil {
		d.stopSIGCHLD()
	}
	if d.cfgWatcher != nil {
		if err := d.cfgWatcher.Close(); err != nil {
			d.logger.Warn("config watcher did not close cleanly", internallog.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("http server did not shut down cleanly", internallog.Error(err))
	}

	if err := d.registry.Save(d.registryPath); err != nil {
		d.logger.Error("failed to save workflow registry on shutdown", internallog.Error(err))
	}
	if err := d.ciRegistry.SaveState(d.ciRegPath); err != nil {
		d.logger.Error("failed to save ci registry on shutdown", internallog.Error(err))
	}

	if err := d.tracer.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("trace provider did not shut down cleanly", internallog.Error(err))
	}
	if err := d.tracerFile.Close(); err != nil {
		d.logger.Warn("failed to close trace log", internallog.Error(err))
	}

	if d.pidFile != nil {
		if err := d.pidFile.Remove(); err != nil {
			d.logger.Warn("failed to remove pid file", internallog.Error(err))
		}
	}

	d.logger.Info("argo daemon stopped")
	return nil
}

// ensureDataDir creates the daemon's data directory if missing.
func ensureDataDir(path string) error {
	return os.MkdirAll(path, 0700)
}
