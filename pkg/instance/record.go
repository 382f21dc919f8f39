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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// PIDFile is the record file name inside a data directory.
const PIDFile = "server.pid"

// ErrAlreadyRunning is returned by Acquire when another process holds the record.
var ErrAlreadyRunning = errors.New("notebook server already running")

// Record is the running-instance record owned by the current process.
type Record struct {
	path string
	file *os.File
}

// acquireAttempts bounds retries when a stale-record cleanup unlinks the file
// between open and lock.
const acquireAttempts = 5

// Acquire creates <dir>/server.pid, locks it and writes the current pid.
// The lock is held until Release.
func Acquire(dir string) (*Record, error) {
	path := filepath.Join(dir, PIDFile)
	var f *os.File
	for attempt := 0; ; attempt++ {
		var err error
		f, err = os.OpenFile(filepath.Clean(path), os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open pid file %s: %w", path, err)
		}

		if err := lockFile(f); err != nil {
			_ = f.Close()
			if errors.Is(err, errLocked) {
				pid, _ := ReadPID(dir)
				return nil, fmt.Errorf("%w (pid %d, %s)", ErrAlreadyRunning, pid, path)
			}
			return nil, fmt.Errorf("failed to lock pid file %s: %w", path, err)
		}
		if samePath(f, path) {
			break
		}
		_ = unlockFile(f)
		_ = f.Close()
		if attempt+1 == acquireAttempts {
			return nil, fmt.Errorf("pid file %s kept changing while locking", path)
		}
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to truncate pid file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write pid file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to sync pid file: %w", err)
	}

	return &Record{path: path, file: f}, nil
}

// Path returns the pid file location.
func (r *Record) Path() string { return r.path }

// Release removes the pid file and drops the lock. Safe to call more than once.
func (r *Record) Release() error {
	if r == nil || r.file == nil {
		return nil
	}
	var errs []error
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	if err := unlockFile(r.file); err != nil {
		errs = append(errs, err)
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, err)
	}
	r.file = nil
	return errors.Join(errs...)
}

// samePath reports whether f is still the file linked at path.
func samePath(f *os.File, path string) bool {
	opened, err := f.Stat()
	if err != nil {
		return false
	}
	current, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(opened, current)
}

// ReadPID reads the pid stored in <dir>/server.pid.
func ReadPID(dir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dir, PIDFile))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed pid file: %w", err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("malformed pid file: pid %d", pid)
	}
	return pid, nil
}
