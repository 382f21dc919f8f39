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

// Package ports finds a listening port near a requested one.
package ports

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"go.uber.org/zap"
)

// MaxPort is the highest TCP port number.
const MaxPort = 65535

// ErrPortExhausted is returned when every probed port is in use.
var ErrPortExhausted = errors.New("no available port")

// Finder probes ports by binding and immediately releasing a listener.
type Finder struct {
	logger *zap.Logger
	listen func(network, address string) (net.Listener, error)
}

// NewFinder creates a Finder. A nil logger disables logging.
func NewFinder(logger *zap.Logger) *Finder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finder{logger: logger, listen: net.Listen}
}

// FindAvailable returns the first port in [port, port+tries) that can be bound on iface.
// Bind failures mean the port is taken by someone else and are not fatal until the budget
// is spent. An empty iface probes all interfaces.
func (f *Finder) FindAvailable(iface string, port, tries int) (int, error) {
	if port < 1 || port > MaxPort {
		return 0, fmt.Errorf("invalid port %d (must be 1-%d)", port, MaxPort)
	}
	if tries < 1 {
		tries = 1
	}

	last := port + tries - 1
	if last > MaxPort {
		last = MaxPort
	}

	for candidate := port; candidate <= last; candidate++ {
		l, err := f.listen("tcp", net.JoinHostPort(iface, strconv.Itoa(candidate)))
		if err != nil {
			f.logger.Debug("Port unavailable", zap.String("interface", iface), zap.Int("port", candidate), zap.Error(err))
			continue
		}
		_ = l.Close()
		if candidate != port {
			f.logger.Info("Requested port busy, using next free port", zap.Int("requested", port), zap.Int("port", candidate))
		}
		return candidate, nil
	}

	return 0, fmt.Errorf("%w on %s in range [%d-%d]", ErrPortExhausted, displayInterface(iface), port, last)
}

// FindAvailable is a convenience wrapper around a Finder without logging.
func FindAvailable(iface string, port, tries int) (int, error) {
	return NewFinder(nil).FindAvailable(iface, port, tries)
}

func displayInterface(iface string) string {
	if iface == "" {
		return "all interfaces"
	}
	return iface
}
