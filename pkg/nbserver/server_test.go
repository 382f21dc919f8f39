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
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/nblaunch/pkg/backend"
	"github.com/teradata-labs/nblaunch/pkg/instance"
	"github.com/teradata-labs/nblaunch/pkg/notebook"
	"github.com/teradata-labs/nblaunch/pkg/tls"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func writeConfig(t *testing.T, p backend.Params, bundle *tls.Bundle) *backend.RenderedConfig {
	t.Helper()
	require.NoError(t, os.MkdirAll(p.Directory, 0700))
	cfg, err := backend.Render(p, bundle)
	require.NoError(t, err)
	require.NoError(t, cfg.Write(cfg.Path()))
	return cfg
}

type runResult struct {
	err error
}

func startServer(t *testing.T, config Config) (net.Addr, context.CancelFunc, <-chan runResult) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan net.Addr, 1)
	config.Ready = ready
	config.Logger = zaptest.NewLogger(t)

	done := make(chan runResult, 1)
	go func() {
		done <- runResult{err: Run(ctx, config)}
	}()

	select {
	case addr := <-ready:
		return addr, cancel, done
	case res := <-done:
		cancel()
		t.Fatalf("server exited before listening: %v", res.err)
	case <-time.After(10 * time.Second):
		cancel()
		t.Fatal("server did not start")
	}
	return nil, cancel, done
}

func waitDone(t *testing.T, done <-chan runResult) error {
	t.Helper()
	select {
	case res := <-done:
		return res.err
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
		return nil
	}
}

func noRedirectClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestRun_ThreadedAutomaticLogin(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nb")
	cfg := writeConfig(t, backend.Params{
		Backend:        backend.Threaded,
		Directory:      dir,
		Interface:      "127.0.0.1",
		Port:           freePort(t),
		AutomaticLogin: true,
	}, nil)

	opened := make(chan string, 1)
	_, cancel, done := startServer(t, Config{
		ConfigPath: cfg.Path(),
		OpenBrowser: func(url string) error {
			opened <- url
			return nil
		},
	})
	defer cancel()

	select {
	case url := <-opened:
		assert.Equal(t, cfg.OpenURL, url)
	case <-time.After(5 * time.Second):
		t.Fatal("browser directive not run")
	}

	pid, err := instance.ReadPID(dir)
	require.NoError(t, err)
	assert.Positive(t, pid)
	status := instance.Detect(dir, zaptest.NewLogger(t))
	assert.True(t, status.Running)
	require.NotNil(t, status.Settings)
	assert.Equal(t, cfg.Port, status.Settings.Port)

	client := noRedirectClient()
	resp, err := client.Get(cfg.OpenURL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	require.NotEmpty(t, resp.Cookies())
	assert.Equal(t, sessionCookie, resp.Cookies()[0].Name)

	resp, err = client.Get(cfg.OpenURL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "token is single use")

	resp, err = client.Get(backend.BaseURL(cfg.Interface, cfg.Port, false) + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok\n", string(body))

	cancel()
	require.NoError(t, waitDone(t, done))

	_, err = instance.ReadPID(dir)
	assert.Error(t, err, "record removed on exit")

	nb, err := notebook.Load(context.Background(), dir, notebook.Config{})
	require.NoError(t, err)
	defer nb.Close()
	assert.Equal(t, dir, nb.Directory())
}

func TestRun_StatusPage(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, backend.Params{
		Backend:   backend.Reactor,
		Directory: dir,
		Interface: "127.0.0.1",
		Port:      freePort(t),
	}, nil)

	_, cancel, done := startServer(t, Config{ConfigPath: cfg.Path()})

	resp, err := noRedirectClient().Get(cfg.URL())
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Serving "+dir)
	assert.NotContains(t, string(body), "Signed in")

	cancel()
	require.NoError(t, waitDone(t, done))
}

func TestRun_SecureReactor(t *testing.T) {
	root := t.TempDir()
	bundle := tls.NewBundle(filepath.Join(root, "conf"))
	p, err := tls.NewProvisioner(tls.ProvisionerConfig{
		Bundle:    bundle,
		Toolchain: tls.ToolchainNative,
		Domain:    "localhost",
	})
	require.NoError(t, err)
	require.NoError(t, p.EnsureBundle(context.Background()))

	cfg := writeConfig(t, backend.Params{
		Backend:   backend.Reactor,
		Directory: filepath.Join(root, "nb"),
		Interface: "127.0.0.1",
		Port:      freePort(t),
		Secure:    true,
	}, bundle)

	_, cancel, done := startServer(t, Config{ConfigPath: cfg.Path()})

	client := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &gotls.Config{InsecureSkipVerify: true}, // #nosec G402 -- self-signed test certificate
		},
	}
	resp, err := client.Get(backend.BaseURL(cfg.Interface, cfg.Port, true) + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, resp.TLS)

	cancel()
	require.NoError(t, waitDone(t, done))
}

func TestRun_SavesAfterDrainTimeout(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, backend.Params{
		Backend:   backend.Reactor,
		Directory: dir,
		Interface: "127.0.0.1",
		Port:      freePort(t),
	}, nil)

	addr, cancel, done := startServer(t, Config{
		ConfigPath:      cfg.Path(),
		ShutdownTimeout: 200 * time.Millisecond,
	})
	defer cancel()

	// A client that never finishes its request headers keeps the drain from completing.
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("GET / HTTP/1.1\r\n"))
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	cancel()
	require.NoError(t, waitDone(t, done), "notebook saved after the drain deadline passed")

	_, err = instance.ReadPID(dir)
	assert.Error(t, err)
}

func TestRun_BindFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	dir := t.TempDir()
	cfg := writeConfig(t, backend.Params{
		Backend:   backend.Threaded,
		Directory: dir,
		Interface: "127.0.0.1",
		Port:      busy.Addr().(*net.TCPAddr).Port,
	}, nil)

	err = Run(context.Background(), Config{ConfigPath: cfg.Path(), Logger: zaptest.NewLogger(t)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBind)
	assert.Equal(t, ExitBind, ExitCode(err))

	_, err = instance.ReadPID(dir)
	assert.Error(t, err, "record released after bind failure")
}

func TestRun_AlreadyRunning(t *testing.T) {
	dir := t.TempDir()
	rec, err := instance.Acquire(dir)
	require.NoError(t, err)
	defer rec.Release()

	cfg := writeConfig(t, backend.Params{
		Backend:   backend.Threaded,
		Directory: dir,
		Interface: "127.0.0.1",
		Port:      freePort(t),
	}, nil)

	err = Run(context.Background(), Config{ConfigPath: cfg.Path(), Logger: zaptest.NewLogger(t)})
	assert.ErrorIs(t, err, instance.ErrAlreadyRunning)
	assert.Equal(t, ExitAlreadyRunning, ExitCode(err))
}

func TestRun_MissingConfig(t *testing.T) {
	err := Run(context.Background(), Config{ConfigPath: filepath.Join(t.TempDir(), "none.conf.yaml")})
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))
}

func TestRun_CPUProfile(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, backend.Params{
		Backend:   backend.Threaded,
		Directory: dir,
		Interface: "127.0.0.1",
		Port:      freePort(t),
		Profile:   true,
	}, nil)
	profile := filepath.Join(t.TempDir(), cfg.CPUProfile)

	_, cancel, done := startServer(t, Config{ConfigPath: cfg.Path(), CPUProfile: profile})
	cancel()
	require.NoError(t, waitDone(t, done))
	assert.FileExists(t, profile)
}

func TestReactor_HooksRunInOrder(t *testing.T) {
	r := &Reactor{logger: zaptest.NewLogger(t)}
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		r.AddShutdownHook(func(context.Context) error {
			order = append(order, i)
			if i == 2 {
				return errors.New("hook two failed")
			}
			return nil
		})
	}

	err := r.shutdown(context.Background())
	assert.ErrorContains(t, err, "hook two failed")
	assert.Equal(t, []int{1, 2, 3}, order, "a failing hook does not stop later hooks")
}

func TestPersistHook_NoopUntilStarted(t *testing.T) {
	nb, err := notebook.Load(context.Background(), t.TempDir(), notebook.Config{})
	require.NoError(t, err)
	defer nb.Close()

	hook := newPersistHook(nb, zaptest.NewLogger(t))
	require.NoError(t, hook.run(context.Background()))
	assert.False(t, hook.done)

	hook.markStarted()
	require.NoError(t, hook.run(context.Background()))
	assert.True(t, hook.done)
	require.NoError(t, hook.run(context.Background()))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitBind, ExitCode(ErrBind))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("boom")))
}
