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
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/teradata-labs/nblaunch/pkg/instance"
	"github.com/teradata-labs/nblaunch/pkg/nbserver"
)

// Process is a started notebook server.
type Process interface {
	Pid() int
	Signal(sig os.Signal) error
	Wait() error
}

// StartFunc starts argv with working directory dir.
type StartFunc func(argv []string, dir string) (Process, error)

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int                   { return p.cmd.Process.Pid }
func (p *execProcess) Signal(sig os.Signal) error { return p.cmd.Process.Signal(sig) }
func (p *execProcess) Wait() error                { return p.cmd.Wait() }

// execStart runs argv as a child sharing the launcher's terminal.
func execStart(argv []string, dir string) (Process, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	// #nosec G204 -- Intentional: argv is the launcher's own executable and rendered config path
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

// Child is a server started with Fork. The launcher does not wait for it.
type Child struct {
	Process
	dir string
}

// WaitReady blocks until the server has written its instance record and returns its pid.
func (c *Child) WaitReady(ctx context.Context) (int, error) {
	return instance.WaitForRecord(ctx, c.dir)
}

// Wait waits for the server to exit and maps its status like a non-forked launch.
func (c *Child) Wait() error {
	return exitError(c.Process.Wait(), c.Pid())
}

// exitError maps a child's wait result. Only nbserver.ExitBind is a bind failure; any
// other nonzero status, including the CLI's own exit 1, is a spawn failure.
func exitError(err error, pid int) error {
	if err == nil {
		return nil
	}
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		code := coded.ExitCode()
		if code == nbserver.ExitBind {
			return NewError(ErrorCodeBindFailed, ErrBind, "notebook server could not bind its port").
				WithContext("pid", pid).
				WithCause(err).
				WithSuggestion("Another program took the port; launch again or choose another --port")
		}
		return NewError(ErrorCodeSpawnFailed, ErrSpawnFailure,
			fmt.Sprintf("notebook server exited with status %d", code)).
			WithContext("pid", pid).
			WithCause(err)
	}
	return NewError(ErrorCodeSpawnFailed, ErrSpawnFailure, "notebook server failed").
		WithContext("pid", pid).
		WithCause(err)
}

// waitForwarding waits for proc while relaying SIGINT and SIGTERM to it. Cancelling
// ctx sends SIGTERM.
func waitForwarding(ctx context.Context, proc Process, logger *zap.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan error, 1)
	go func() { done <- proc.Wait() }()

	for {
		select {
		case err := <-done:
			return exitError(err, proc.Pid())
		case sig := <-sigCh:
			logger.Info("Forwarding signal to notebook server", zap.String("signal", sig.String()), zap.Int("pid", proc.Pid()))
			if err := proc.Signal(sig); err != nil {
				logger.Warn("Failed to forward signal", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Info("Launch cancelled, stopping notebook server", zap.Int("pid", proc.Pid()))
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				logger.Warn("Failed to stop notebook server", zap.Error(err))
			}
			ctx = context.Background()
		}
	}
}

func commandString(argv []string) string {
	return strings.Join(argv, " ")
}
