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

// Package backend synthesizes the runtime configuration handed to a spawned notebook
// server. Two server strategies exist: Threaded, an http.Server configured from TLS key
// and certificate paths, and Reactor, which listens on an endpoint connection string and
// runs registered shutdown hooks in order.
package backend

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownBackend is returned by Parse for names that select no backend.
var ErrUnknownBackend = errors.New("unknown server backend")

// Backend selects the server strategy.
type Backend int

const (
	// Threaded serves with net/http directly.
	Threaded Backend = iota + 1
	// Reactor serves from an endpoint connection string with ordered shutdown hooks.
	Reactor
)

// Parse resolves a backend name. "flask" and "twistd" are accepted as legacy aliases.
func Parse(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "threaded", "flask":
		return Threaded, nil
	case "reactor", "twistd":
		return Reactor, nil
	default:
		return 0, fmt.Errorf("%w: %q (must be threaded or reactor)", ErrUnknownBackend, name)
	}
}

func (b Backend) String() string {
	switch b {
	case Threaded:
		return "threaded"
	case Reactor:
		return "reactor"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// Valid reports whether b is one of the known backends.
func (b Backend) Valid() bool {
	return b == Threaded || b == Reactor
}

// ConfigFile is the rendered configuration file name for b.
func (b Backend) ConfigFile() string {
	return b.String() + ".conf.yaml"
}

// MarshalText implements encoding.TextMarshaler.
func (b Backend) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBackend, int(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Backend) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}
