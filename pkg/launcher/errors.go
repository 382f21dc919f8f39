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
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/teradata-labs/nblaunch/pkg/admin"
	"github.com/teradata-labs/nblaunch/pkg/nbserver"
	"github.com/teradata-labs/nblaunch/pkg/ports"
	"github.com/teradata-labs/nblaunch/pkg/tls"
)

// Sentinel errors. Every *Error wraps one of them, so callers can use errors.Is.
var (
	ErrConfiguration      = errors.New("invalid launch configuration")
	ErrPortExhausted      = ports.ErrPortExhausted
	ErrMissingToolchain   = tls.ErrMissingToolchain
	ErrProvisioningFailed = tls.ErrProvisioningFailed
	ErrCredentialMismatch = admin.ErrCredentialMismatch
	ErrSpawnFailure       = errors.New("notebook server failed")
	ErrBind               = nbserver.ErrBind
	ErrStore              = errors.New("notebook store unavailable")
)

// ErrorCode identifies categories of launch errors.
type ErrorCode string

const (
	ErrorCodeInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"
	ErrorCodeDeprecatedParameter  ErrorCode = "DEPRECATED_PARAMETER"
	ErrorCodeStoreUnavailable     ErrorCode = "STORE_UNAVAILABLE"
	ErrorCodeAdminSetupFailed     ErrorCode = "ADMIN_SETUP_FAILED"
	ErrorCodePortExhausted        ErrorCode = "PORT_EXHAUSTED"
	ErrorCodeMissingToolchain     ErrorCode = "MISSING_TOOLCHAIN"
	ErrorCodeProvisioningFailed   ErrorCode = "PROVISIONING_FAILED"
	ErrorCodeSpawnFailed          ErrorCode = "SPAWN_FAILED"
	ErrorCodeBindFailed           ErrorCode = "BIND_FAILED"
)

// Error is a launch failure with context for troubleshooting.
type Error struct {
	Code    ErrorCode
	Message string

	// Kind is the sentinel this error belongs to.
	Kind error

	Context    map[string]any
	Cause      error
	Suggestion string
}

// NewError creates an Error of the given kind.
func NewError(code ErrorCode, kind error, message string) *Error {
	return &Error{
		Code:    code,
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds a key/value detail.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithCause sets the underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithSuggestion sets actionable guidance for the operator.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("[%s] %s", e.Code, e.Message)}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		kv := make([]string, 0, len(keys))
		for _, k := range keys {
			kv = append(kv, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, "Context: "+strings.Join(kv, ", "))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.Cause))
	}
	return strings.Join(parts, "; ")
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Suggestion returns the operator guidance attached to err, if any.
func Suggestion(err error) string {
	var le *Error
	if errors.As(err, &le) {
		return le.Suggestion
	}
	return ""
}

func errDeprecated(param, suggestion string) *Error {
	return NewError(ErrorCodeDeprecatedParameter, ErrConfiguration,
		fmt.Sprintf("the %s parameter is no longer supported", param)).
		WithContext("parameter", param).
		WithSuggestion(suggestion)
}

func errStore(dir string, cause error) *Error {
	return NewError(ErrorCodeStoreUnavailable, ErrStore, "failed to open notebook store").
		WithContext("directory", dir).
		WithCause(cause).
		WithSuggestion("Check that the directory is writable and not used by another program")
}

func errPortExhausted(iface string, port, tries int, cause error) *Error {
	return NewError(ErrorCodePortExhausted, ErrPortExhausted, "no free port for the notebook server").
		WithContext("interface", iface).
		WithContext("port", port).
		WithContext("port_tries", tries).
		WithCause(cause).
		WithSuggestion("Pick another starting port with --port, or probe more ports with --port-tries")
}

func errMissingToolchain(cause error) *Error {
	return NewError(ErrorCodeMissingToolchain, ErrMissingToolchain,
		"no certificate tool found to set up a secure notebook").
		WithCause(cause).
		WithSuggestion("Install GnuTLS certtool or OpenSSL, e.g.:\n" +
			"  apt-get install gnutls-bin   (Debian/Ubuntu)\n" +
			"  brew install gnutls          (macOS)\n" +
			"or set tls.toolchain: native in nblaunch.yaml")
}

func errProvisioning(confDir string, cause error) *Error {
	return NewError(ErrorCodeProvisioningFailed, ErrProvisioningFailed, "failed to set up the notebook certificate").
		WithContext("conf_dir", confDir).
		WithCause(cause).
		WithSuggestion("Run `nblaunch setup` again and check its output")
}
