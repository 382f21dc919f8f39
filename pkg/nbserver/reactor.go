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
package nbserver

import (
	"context"
	gotls "crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/teradata-labs/nblaunch/pkg/backend"
	"github.com/teradata-labs/nblaunch/pkg/tls"
)

// ShutdownHook runs after the HTTP server has stopped accepting requests.
type ShutdownHook func(ctx context.Context) error

// strategy is how a backend obtains its listener and runs its shutdown work.
type strategy interface {
	listen() (net.Listener, error)
	addShutdownHook(hook ShutdownHook)
	shutdown(ctx context.Context) error
}

func newStrategy(cfg *backend.RenderedConfig, logger *zap.Logger) (strategy, error) {
	switch cfg.Backend {
	case backend.Threaded:
		return &threaded{cfg: cfg}, nil
	case backend.Reactor:
		ep, err := backend.ParseEndpoint(cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		return &Reactor{endpoint: *ep, logger: logger}, nil
	default:
		return nil, fmt.Errorf("%w: %s", backend.ErrUnknownBackend, cfg.Backend)
	}
}

// threaded listens on interface:port and wraps the listener in TLS from the bundle
// paths. Its single hook runs directly at shutdown.
type threaded struct {
	cfg  *backend.RenderedConfig
	hook ShutdownHook
}

func (t *threaded) listen() (net.Listener, error) {
	addr := net.JoinHostPort(t.cfg.Interface, strconv.Itoa(t.cfg.Port))
	if !t.cfg.Secure {
		return listenTCP(addr, nil)
	}
	tlsConfig, err := tls.ServerConfig(t.cfg.Certificate, t.cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	return listenTCP(addr, tlsConfig)
}

func (t *threaded) addShutdownHook(hook ShutdownHook) { t.hook = hook }

func (t *threaded) shutdown(ctx context.Context) error {
	if t.hook == nil {
		return nil
	}
	return t.hook(ctx)
}

// Reactor listens on an endpoint connection string and runs shutdown hooks in the
// order they were added.
type Reactor struct {
	endpoint backend.Endpoint
	logger   *zap.Logger

	mu    sync.Mutex
	hooks []ShutdownHook
}

// AddShutdownHook registers hook to run at shutdown after earlier hooks.
func (r *Reactor) AddShutdownHook(hook ShutdownHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

func (r *Reactor) addShutdownHook(hook ShutdownHook) { r.AddShutdownHook(hook) }

func (r *Reactor) listen() (net.Listener, error) {
	if !r.endpoint.Secure {
		return listenTCP(r.endpoint.Address(), nil)
	}
	tlsConfig, err := tls.ServerConfig(r.endpoint.CertKey, r.endpoint.PrivateKey)
	if err != nil {
		return nil, err
	}
	return listenTCP(r.endpoint.Address(), tlsConfig)
}

func (r *Reactor) shutdown(ctx context.Context) error {
	r.mu.Lock()
	hooks := append([]ShutdownHook(nil), r.hooks...)
	r.mu.Unlock()

	var errs []error
	for i, hook := range hooks {
		if err := hook(ctx); err != nil {
			r.logger.Error("Shutdown hook failed", zap.Int("hook", i), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func listenTCP(addr string, tlsConfig *gotls.Config) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBind, err)
	}
	if tlsConfig != nil {
		return gotls.NewListener(ln, tlsConfig), nil
	}
	return ln, nil
}
