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
	"fmt"
	"time"

	"github.com/teradata-labs/nblaunch/pkg/backend"
	"github.com/teradata-labs/nblaunch/pkg/ports"
)

// Defaults for a Request.
const (
	DefaultPort      = 8080
	DefaultInterface = "localhost"
	DefaultPortTries = 50
	DefaultBackend   = "reactor"
)

// Request describes one launch. It is validated once and never modified afterwards.
type Request struct {
	// Directory is the notebook directory (default: <data root>/default_notebook).
	Directory string

	Port      int
	Interface string
	PortTries int
	Secure    bool

	// Reset forces a new admin password prompt.
	Reset bool

	// Accounts and OpenID override the stored setting when non-nil.
	Accounts *bool
	OpenID   *bool

	IdleTimeout    time.Duration
	AutomaticLogin bool
	StartPath      string

	Backend string
	Fork    bool
	Quiet   bool
	CopyURL bool

	Profile       bool
	ProfilePrefix string

	Ulimit     string
	ServerPool []string

	// Deprecated parameters. Setting any of them is a configuration error.
	Subnets      []string
	RequireLogin *bool
	OpenViewer   *bool
	Address      string
}

// DefaultRequest returns a Request with the launcher defaults.
func DefaultRequest() Request {
	return Request{
		Port:           DefaultPort,
		Interface:      DefaultInterface,
		PortTries:      DefaultPortTries,
		AutomaticLogin: true,
		Backend:        DefaultBackend,
	}
}

// Validate rejects deprecated parameters and resolves the backend. It performs no I/O.
func (r Request) Validate() (backend.Backend, error) {
	if r.Subnets != nil {
		return 0, errDeprecated("subnets",
			"Use a firewall to restrict which networks can reach the notebook")
	}
	if r.RequireLogin != nil || r.OpenViewer != nil {
		param := "require_login"
		if r.RequireLogin == nil {
			param = "open_viewer"
		}
		return 0, errDeprecated(param,
			"Use --automatic-login to log in as admin automatically, or --automatic-login=false to not")
	}
	if r.Address != "" {
		return 0, errDeprecated("address", "Use --interface instead of --address")
	}

	kind, err := backend.Parse(r.Backend)
	if err != nil {
		return 0, NewError(ErrorCodeInvalidConfiguration, ErrConfiguration, "unknown server backend").
			WithContext("backend", r.Backend).
			WithCause(err).
			WithSuggestion("Use --backend threaded or --backend reactor")
	}

	if r.Port < 1 || r.Port > ports.MaxPort {
		return 0, NewError(ErrorCodeInvalidConfiguration, ErrConfiguration,
			fmt.Sprintf("port %d out of range", r.Port)).
			WithContext("port", r.Port).
			WithSuggestion(fmt.Sprintf("Use a port between 1 and %d", ports.MaxPort))
	}
	if err := backend.CheckInterface(r.Interface); err != nil {
		return 0, NewError(ErrorCodeInvalidConfiguration, ErrConfiguration, "invalid interface").
			WithContext("interface", r.Interface).
			WithCause(err).
			WithSuggestion("Use a hostname or IP address")
	}
	if r.IdleTimeout < 0 {
		return 0, NewError(ErrorCodeInvalidConfiguration, ErrConfiguration, "idle timeout cannot be negative").
			WithContext("idle_timeout", r.IdleTimeout)
	}
	return kind, nil
}
