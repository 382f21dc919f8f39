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
package tls

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestTemplate_Render(t *testing.T) {
	tmpl := &Template{
		Organization:   "Notebook (at example.org)",
		CommonName:     "example.org",
		Serial:         "42",
		DNSNames:       []string{"a.example.org", "b.example.org"},
		ExpirationDays: 10000,
		TLSWWWServer:   true,
		SigningKey:     true,
	}

	expected := `organization = "Notebook (at example.org)"
cn = "example.org"
serial = "42"
dns_name = "a.example.org" "b.example.org"
expiration_days = "10000"
tls_www_server =
signing_key =
`
	assert.Equal(t, expected, tmpl.Render())
}

func TestNewTemplate_Defaults(t *testing.T) {
	tmpl, err := NewTemplate("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", tmpl.CommonName)
	assert.Equal(t, "Notebook (at localhost)", tmpl.Organization)
	assert.Equal(t, DefaultExpirationDays, tmpl.ExpirationDays)
	assert.True(t, tmpl.TLSWWWServer)
	assert.False(t, tmpl.TLSWWWClient)
	assert.NotEmpty(t, tmpl.Serial)

	rendered := tmpl.Render()
	assert.Contains(t, rendered, "tls_www_server =\n")
	assert.NotContains(t, rendered, "tls_www_client")
	assert.NotContains(t, rendered, "locality")
}

func TestTemplate_Subject(t *testing.T) {
	tmpl := &Template{Organization: "A/B", CommonName: "host", Country: "US"}
	assert.Equal(t, `/C=US/O=A\/B/CN=host`, tmpl.Subject())
}

func TestSelectToolchains(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		goos      string
		available []string
		keygen    string
		signer    string
		wantErr   error
	}{
		{name: "both on linux", goos: "linux", available: []string{"openssl", "certtool"}, keygen: "openssl", signer: "certtool"},
		{name: "both on darwin", goos: "darwin", available: []string{"openssl", "certtool"}, keygen: "certtool", signer: "certtool"},
		{name: "openssl only", goos: "darwin", available: []string{"openssl"}, keygen: "openssl", signer: "openssl"},
		{name: "certtool only", goos: "linux", available: []string{"certtool"}, keygen: "certtool", signer: "certtool"},
		{name: "none", goos: "linux", wantErr: ErrMissingToolchain},
		{name: "forced openssl missing", mode: "openssl", goos: "linux", available: []string{"certtool"}, wantErr: ErrMissingToolchain},
		{name: "forced certtool", mode: "certtool", goos: "linux", available: []string{"openssl", "certtool"}, keygen: "certtool", signer: "certtool"},
		{name: "native never needs PATH", mode: "native", goos: "linux", keygen: "native", signer: "native"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := SelectToolchains(tt.mode, tt.goos, fakeLookPath(tt.available...), nil)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.keygen, sel.KeyGen.Name())
			assert.Equal(t, tt.signer, sel.Signer.Name())
		})
	}
}

func TestSelectToolchains_UnknownMode(t *testing.T) {
	_, err := SelectToolchains("gnutls", "linux", fakeLookPath(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown certificate toolchain")
}

func TestProvisioner_IdempotentGeneration(t *testing.T) {
	bundle := NewBundle(filepath.Join(t.TempDir(), "notebook"))
	runner := &fakeRunner{}

	p, err := NewProvisioner(ProvisionerConfig{
		Bundle:   bundle,
		Domain:   "localhost",
		Logger:   zaptest.NewLogger(t),
		GOOS:     "linux",
		LookPath: fakeLookPath("openssl", "certtool"),
		Run:      runner.Run,
	})
	require.NoError(t, err)

	require.NoError(t, p.EnsureBundle(context.Background()))
	require.True(t, bundle.Exists())
	assert.Equal(t, 2, runner.Calls())

	keyBefore, err := os.ReadFile(bundle.KeyFile)
	require.NoError(t, err)
	certBefore, err := os.ReadFile(bundle.CertFile)
	require.NoError(t, err)

	require.NoError(t, p.EnsureBundle(context.Background()))
	assert.Equal(t, 2, runner.Calls(), "second call must not regenerate")

	keyAfter, err := os.ReadFile(bundle.KeyFile)
	require.NoError(t, err)
	certAfter, err := os.ReadFile(bundle.CertFile)
	require.NoError(t, err)
	assert.Equal(t, keyBefore, keyAfter)
	assert.Equal(t, certBefore, certAfter)

	info, err := os.Stat(bundle.KeyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	tmpl, err := os.ReadFile(bundle.TemplateFile)
	require.NoError(t, err)
	assert.Contains(t, string(tmpl), `cn = "localhost"`)
}

func TestProvisioner_PartialBundleRegenerated(t *testing.T) {
	bundle := NewBundle(t.TempDir())
	require.NoError(t, os.WriteFile(bundle.KeyFile, []byte("stale"), 0600))
	runner := &fakeRunner{}

	p, err := NewProvisioner(ProvisionerConfig{
		Bundle:   bundle,
		GOOS:     "linux",
		LookPath: fakeLookPath("certtool"),
		Run:      runner.Run,
	})
	require.NoError(t, err)

	require.NoError(t, p.EnsureBundle(context.Background()))
	assert.Equal(t, 2, runner.Calls())
	key, err := os.ReadFile(bundle.KeyFile)
	require.NoError(t, err)
	assert.NotEqual(t, "stale", string(key))
}

func TestProvisioner_MissingToolchain(t *testing.T) {
	bundle := NewBundle(filepath.Join(t.TempDir(), "conf"))

	p, err := NewProvisioner(ProvisionerConfig{
		Bundle:   bundle,
		LookPath: fakeLookPath(),
	})
	require.NoError(t, err)

	err = p.EnsureBundle(context.Background())
	assert.ErrorIs(t, err, ErrMissingToolchain)
	assert.DirExists(t, bundle.Dir, "configuration directory is created before toolchain discovery")
}

func TestProvisioner_ToolFailureSurfacesAsProvisioningFailed(t *testing.T) {
	bundle := NewBundle(t.TempDir())
	failing := func(ctx context.Context, name string, args ...string) error {
		return errors.New("exit status 1")
	}
	var out strings.Builder

	p, err := NewProvisioner(ProvisionerConfig{
		Bundle:   bundle,
		Out:      &out,
		LookPath: fakeLookPath("openssl"),
		Run:      failing,
	})
	require.NoError(t, err)

	// Provision itself does not raise on tool failure.
	require.NoError(t, p.Provision(context.Background()))

	err = p.EnsureBundle(context.Background())
	assert.ErrorIs(t, err, ErrProvisioningFailed)
	assert.Contains(t, out.String(), "Key generation failed")
}

func TestProvisioner_PromptsForDomain(t *testing.T) {
	bundle := NewBundle(t.TempDir())
	prompted := 0
	var out strings.Builder

	p, err := NewProvisioner(ProvisionerConfig{
		Bundle:    bundle,
		Toolchain: ToolchainNative,
		Out:       &out,
		Prompt: func() (string, error) {
			prompted++
			return "", nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, p.EnsureBundle(context.Background()))
	assert.Equal(t, 1, prompted)
	assert.Contains(t, out.String(), "Using default localhost")
}

func TestNative_EndToEnd(t *testing.T) {
	bundle := NewBundle(t.TempDir())

	p, err := NewProvisioner(ProvisionerConfig{
		Bundle:    bundle,
		Toolchain: ToolchainNative,
		Domain:    "notebook.test",
	})
	require.NoError(t, err)
	require.NoError(t, p.EnsureBundle(context.Background()))

	cfg, err := ServerConfig(bundle.CertFile, bundle.KeyFile)
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)

	info, err := Inspect(bundle.CertFile)
	require.NoError(t, err)
	assert.True(t, info.Valid)
	assert.Contains(t, info.Subject, "CN=notebook.test")
	assert.Equal(t, []string{"notebook.test"}, info.Domains)
	assert.Greater(t, info.DaysUntilExpiry, 9000)
}

func TestServerConfig_MissingFiles(t *testing.T) {
	_, err := ServerConfig("", "")
	require.Error(t, err)

	dir := t.TempDir()
	_, err = ServerConfig(filepath.Join(dir, "c.pem"), filepath.Join(dir, "k.pem"))
	require.Error(t, err)
}

func TestInspect_NotPEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "public.pem")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))

	_, err := Inspect(path)
	require.Error(t, err)
}

func fakeLookPath(available ...string) LookPath {
	return func(file string) (string, error) {
		for _, a := range available {
			if a == file {
				return "/usr/bin/" + file, nil
			}
		}
		return "", fmt.Errorf("exec: %q: executable file not found in $PATH", file)
	}
}

// fakeRunner writes the file named by -out/--outfile so the provisioner sees real output.
type fakeRunner struct {
	mu    sync.Mutex
	calls int
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	r.mu.Lock()
	r.calls++
	n := r.calls
	r.mu.Unlock()

	for i, a := range args {
		if (a == "-out" || a == "--outfile") && i+1 < len(args) {
			return os.WriteFile(args[i+1], []byte(fmt.Sprintf("%s output %d", filepath.Base(name), n)), 0644)
		}
	}
	return fmt.Errorf("no output flag in %v", args)
}

func (r *fakeRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
