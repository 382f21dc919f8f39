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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/nblaunch/pkg/backend"
	"github.com/teradata-labs/nblaunch/pkg/ports"
)

func TestError_Message(t *testing.T) {
	err := NewError(ErrorCodePortExhausted, ErrPortExhausted, "no free port").
		WithContext("port", 8080).
		WithContext("interface", "localhost").
		WithCause(errors.New("bind: address in use")).
		WithSuggestion("use --port")

	assert.Equal(t,
		"[PORT_EXHAUSTED] no free port; Context: interface=localhost, port=8080; Cause: bind: address in use",
		err.Error())
	assert.Equal(t, "use --port", Suggestion(err))
	assert.Equal(t, "use --port", Suggestion(fmt.Errorf("launch: %w", err)))
	assert.Empty(t, Suggestion(errors.New("plain")))
}

func TestError_Is(t *testing.T) {
	cause := fmt.Errorf("%w on localhost", ports.ErrPortExhausted)
	err := errPortExhausted("localhost", 8080, 3, cause)
	assert.ErrorIs(t, err, ErrPortExhausted)
	assert.ErrorIs(t, err, ports.ErrPortExhausted)
	assert.NotErrorIs(t, err, ErrConfiguration)

	var le *Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrorCodePortExhausted, le.Code)
	assert.Equal(t, 3, le.Context["port_tries"])
}

func TestRequest_Validate(t *testing.T) {
	yes := true

	tests := []struct {
		name    string
		mutate  func(*Request)
		want    backend.Backend
		code    ErrorCode
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Request) {}, want: backend.Reactor},
		{name: "flask alias", mutate: func(r *Request) { r.Backend = "flask" }, want: backend.Threaded},
		{name: "subnets", mutate: func(r *Request) { r.Subnets = []string{"10.0.0.0/8"} }, code: ErrorCodeDeprecatedParameter, wantErr: true},
		{name: "require login", mutate: func(r *Request) { r.RequireLogin = &yes }, code: ErrorCodeDeprecatedParameter, wantErr: true},
		{name: "open viewer", mutate: func(r *Request) { r.OpenViewer = &yes }, code: ErrorCodeDeprecatedParameter, wantErr: true},
		{name: "address", mutate: func(r *Request) { r.Address = "0.0.0.0" }, code: ErrorCodeDeprecatedParameter, wantErr: true},
		{name: "unknown backend", mutate: func(r *Request) { r.Backend = "tornado" }, code: ErrorCodeInvalidConfiguration, wantErr: true},
		{name: "port zero", mutate: func(r *Request) { r.Port = 0 }, code: ErrorCodeInvalidConfiguration, wantErr: true},
		{name: "port too high", mutate: func(r *Request) { r.Port = 70000 }, code: ErrorCodeInvalidConfiguration, wantErr: true},
		{name: "quote in interface", mutate: func(r *Request) { r.Interface = "local'host" }, code: ErrorCodeInvalidConfiguration, wantErr: true},
		{name: "negative idle timeout", mutate: func(r *Request) { r.IdleTimeout = -time.Second }, code: ErrorCodeInvalidConfiguration, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := DefaultRequest()
			tt.mutate(&req)
			got, err := req.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrConfiguration)
				var le *Error
				require.ErrorAs(t, err, &le)
				assert.Equal(t, tt.code, le.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultRequest(t *testing.T) {
	req := DefaultRequest()
	assert.Equal(t, DefaultPort, req.Port)
	assert.Equal(t, DefaultInterface, req.Interface)
	assert.Equal(t, DefaultPortTries, req.PortTries)
	assert.Equal(t, DefaultBackend, req.Backend)
}
