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
package instance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ConfigPattern matches rendered backend configurations inside a data directory.
const ConfigPattern = "*.conf.yaml"

// Status describes the instance found in a data directory.
type Status struct {
	Running bool
	PID     int

	// Settings is nil when the rendered configuration is missing or unreadable.
	Settings *Settings
}

// Detect reports whether a live server owns dir. Stale records are removed.
// Detection never fails: anything unreadable counts as "not running" or
// "unknown settings".
func Detect(dir string, logger *zap.Logger) Status {
	if logger == nil {
		logger = zap.NewNop()
	}
	pidPath := filepath.Join(dir, PIDFile)

	pid, err := ReadPID(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Debug("Ignoring unreadable pid file", zap.String("path", pidPath), zap.Error(err))
		}
		return Status{}
	}

	if !processAlive(pid) || !lockHeld(pidPath) {
		removed, err := removeStale(pidPath, pid)
		switch {
		case err != nil:
			logger.Warn("Failed to remove stale pid file", zap.String("path", pidPath), zap.Error(err))
		case removed:
			logger.Info("Removed stale pid file", zap.String("path", pidPath), zap.Int("pid", pid))
		default:
			logger.Debug("Pid file taken over by a new server", zap.String("path", pidPath))
		}
		return Status{}
	}

	status := Status{Running: true, PID: pid}
	if path := newestConfig(dir); path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err == nil {
			status.Settings, err = ParseSettings(string(data))
		}
		if err != nil {
			logger.Debug("Settings of running server unknown", zap.String("config", path), zap.Error(err))
		}
	}
	return status
}

// removeStale unlinks the pid file at path if it still records pid and nobody holds
// its lock. The removal happens under the lock so a server acquiring the record
// concurrently keeps its file.
func removeStale(path string, pid int) (bool, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		if errors.Is(err, errLocked) {
			return false, nil
		}
		return false, err
	}
	defer unlockFile(f) //nolint:errcheck

	if !samePath(f, path) {
		return false, nil
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return false, err
	}
	if current, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && current != pid {
		return false, nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, err
	}
	return true, nil
}

func newestConfig(dir string) string {
	matches, err := filepath.Glob(filepath.Join(dir, ConfigPattern))
	if err != nil {
		return ""
	}
	var newest string
	var newestMod time.Time
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest, newestMod = m, info.ModTime()
		}
	}
	return newest
}

// WaitForRecord blocks until a readable pid file appears in dir or ctx is done.
func WaitForRecord(ctx context.Context, dir string) (int, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return 0, fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return 0, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	// The record may have been written before the watch was installed.
	if pid, err := ReadPID(dir); err == nil {
		return pid, nil
	}

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return 0, fmt.Errorf("file watcher closed")
			}
			if filepath.Base(event.Name) != PIDFile || !(event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) {
				continue
			}
			if pid, err := ReadPID(dir); err == nil {
				return pid, nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return 0, fmt.Errorf("file watcher closed")
			}
			return 0, fmt.Errorf("file watcher error: %w", err)
		}
	}
}
