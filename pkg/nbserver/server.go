// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package nbserver is the notebook server process started by the launcher. It owns the
// notebook store and the running-instance record for as long as it serves.
package nbserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teradata-labs/nblaunch/internal/version"
	"github.com/teradata-labs/nblaunch/pkg/backend"
	"github.com/teradata-labs/nblaunch/pkg/instance"
	"github.com/teradata-labs/nblaunch/pkg/notebook"
)

// Process exit codes of `nblaunch serve`. The launcher maps ExitBind to a bind error,
// so it must stay distinct from the 1 the CLI exits with on flag or config errors.
const (
	ExitOK             = 0
	ExitFailure        = 2
	ExitAlreadyRunning = 3
	ExitBind           = 98
)

// ErrBind is returned when the listener cannot be opened.
var ErrBind = errors.New("failed to bind listener")

// DefaultReapSchedule is how often idle worksheets are checked.
const DefaultReapSchedule = "@every 1m"

// Config configures Run.
type Config struct {
	// ConfigPath is the rendered configuration to serve.
	ConfigPath string

	// CPUProfile, when set, records a CPU profile to this file until shutdown.
	CPUProfile string

	// StoreKey is the notebook store encryption key, if any.
	StoreKey string

	// OpenBrowser opens the automatic-login URL once listening. Nil disables it.
	OpenBrowser func(url string) error

	// ReapSchedule is a cron spec for the idle worksheet reaper (default: DefaultReapSchedule).
	ReapSchedule string

	// ShutdownTimeout bounds the HTTP drain (default: 10s).
	ShutdownTimeout time.Duration

	// Ready, when set, receives the listen address once serving.
	Ready chan<- net.Addr

	Logger *zap.Logger
}

// ExitCode maps an error returned by Run to the serve process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrBind):
		return ExitBind
	case errors.Is(err, instance.ErrAlreadyRunning):
		return ExitAlreadyRunning
	default:
		return ExitFailure
	}
}

// Run serves the configuration at config.ConfigPath until ctx is done, then stops the
// HTTP server and runs the shutdown hooks.
func Run(ctx context.Context, config Config) error {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.ReapSchedule == "" {
		config.ReapSchedule = DefaultReapSchedule
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	logger := config.Logger

	cfg, err := backend.Load(config.ConfigPath)
	if err != nil {
		return err
	}
	if !version.Compatible(cfg.Version) {
		logger.Warn("Configuration was rendered by an incompatible nblaunch version",
			zap.String("rendered_by", cfg.Version),
			zap.String("running", version.Get()))
	}

	if config.CPUProfile != "" {
		stop, err := startCPUProfile(config.CPUProfile)
		if err != nil {
			return err
		}
		defer stop()
		logger.Info("CPU profiling enabled", zap.String("file", config.CPUProfile))
	}

	nb, err := notebook.Load(ctx, cfg.Directory, notebook.Config{Key: config.StoreKey, Logger: logger})
	if err != nil {
		return err
	}
	defer nb.Close()

	record, err := instance.Acquire(cfg.Directory)
	if err != nil {
		return err
	}
	defer func() {
		if err := record.Release(); err != nil {
			logger.Warn("Failed to release instance record", zap.Error(err))
		}
	}()

	strat, err := newStrategy(cfg, logger)
	if err != nil {
		return err
	}
	hook := newPersistHook(nb, logger)
	strat.addShutdownHook(hook.run)

	ln, err := strat.listen()
	if err != nil {
		return err
	}

	h := newHandler(nb, cfg.StartupToken, logger)
	srv := &http.Server{
		Handler:           h.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	reaper := cron.New()
	if _, err := reaper.AddFunc(config.ReapSchedule, func() {
		if _, err := nb.StopIdleWorksheets(ctx, nb.Conf().IdleTimeout()); err != nil {
			logger.Warn("Idle worksheet reaper failed", zap.Error(err))
		}
	}); err != nil {
		_ = ln.Close()
		return fmt.Errorf("invalid reap schedule %q: %w", config.ReapSchedule, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()
	hook.markStarted()
	reaper.Start()

	logger.Info("Notebook server listening",
		zap.String("backend", cfg.Backend.String()),
		zap.String("address", ln.Addr().String()),
		zap.Bool("secure", cfg.Secure),
		zap.String("directory", cfg.Directory))
	h.publish("ready")
	if config.Ready != nil {
		config.Ready <- ln.Addr()
	}

	if cfg.OpenURL != "" && config.OpenBrowser != nil {
		if err := config.OpenBrowser(cfg.OpenURL); err != nil {
			logger.Warn("Failed to open web browser", zap.String("url", cfg.OpenURL), zap.Error(err))
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down notebook server")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("notebook server failed: %w", err)
		}
	}

	<-reaper.Stop().Done()
	h.publish("stopping")
	h.close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}

	// The drain deadline may already be spent; the hooks still have to save the notebook.
	if err := strat.shutdown(context.WithoutCancel(ctx)); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// persistHook quits then saves the notebook. It does nothing if the server never
// started and runs at most once.
type persistHook struct {
	nb     *notebook.Notebook
	logger *zap.Logger

	mu      sync.Mutex
	started bool
	done    bool
}

func newPersistHook(nb *notebook.Notebook, logger *zap.Logger) *persistHook {
	return &persistHook{nb: nb, logger: logger}
}

func (p *persistHook) markStarted() {
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()
}

func (p *persistHook) run(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.done {
		return nil
	}
	p.done = true

	if err := p.nb.Quit(ctx); err != nil {
		return err
	}
	if err := p.nb.Save(ctx); err != nil {
		return err
	}
	p.logger.Info("Notebook saved on shutdown", zap.String("dir", p.nb.Directory()))
	return nil
}

func startCPUProfile(path string) (func(), error) {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to start CPU profile: %w", err)
	}
	return func() {
		pprof.StopCPUProfile()
		_ = f.Close()
	}, nil
}
