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
package backend

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teradata-labs/nblaunch/pkg/instance"
	"github.com/teradata-labs/nblaunch/pkg/tls"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		want    Backend
		wantErr bool
	}{
		{name: "threaded", want: Threaded},
		{name: "flask", want: Threaded},
		{name: "Reactor", want: Reactor},
		{name: "twistd", want: Reactor},
		{name: " twistd ", want: Reactor},
		{name: "", wantErr: true},
		{name: "gunicorn", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownBackend)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBackend_ConfigFile(t *testing.T) {
	assert.Equal(t, "threaded.conf.yaml", Threaded.ConfigFile())
	assert.Equal(t, "reactor.conf.yaml", Reactor.ConfigFile())
	assert.Equal(t, "Backend(0)", Backend(0).String())
}

func TestEndpoint_RoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		endpoint Endpoint
		encoded  string
	}{
		{
			name:     "tcp",
			endpoint: Endpoint{Port: 8080, Interface: "localhost"},
			encoded:  "tcp:8080:interface=localhost",
		},
		{
			name:     "tcp all interfaces",
			endpoint: Endpoint{Port: 8080},
			encoded:  "tcp:8080:interface=",
		},
		{
			name: "ssl",
			endpoint: Endpoint{
				Secure: true, Port: 8443, Interface: "0.0.0.0",
				PrivateKey: "/home/u/.nblaunch/notebook/private.pem",
				CertKey:    "/home/u/.nblaunch/notebook/public.pem",
			},
			encoded: "ssl:8443:interface=0.0.0.0:privateKey=/home/u/.nblaunch/notebook/private.pem:certKey=/home/u/.nblaunch/notebook/public.pem",
		},
		{
			name: "escaped colons and backslashes",
			endpoint: Endpoint{
				Secure: true, Port: 443, Interface: "::1",
				PrivateKey: `C:\certs\private.pem`,
				CertKey:    `C:\certs\public.pem`,
			},
			encoded: `ssl:443:interface=\:\:1:privateKey=C\:\\certs\\private.pem:certKey=C\:\\certs\\public.pem`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.encoded, tt.endpoint.String())

			parsed, err := ParseEndpoint(tt.encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.endpoint, *parsed)
		})
	}
}

func TestParseEndpoint_Invalid(t *testing.T) {
	for _, s := range []string{
		"",
		"tcp",
		"unix:/tmp/sock",
		"tcp:http:interface=x",
		"tcp:70000",
		"tcp:80:interface",
		"tcp:80:backlog=5",
		"ssl:443:interface=x",
	} {
		t.Run(s, func(t *testing.T) {
			_, err := ParseEndpoint(s)
			assert.Error(t, err)
		})
	}
}

func TestEndpoint_Address(t *testing.T) {
	assert.Equal(t, "[::1]:8080", Endpoint{Interface: "::1", Port: 8080}.Address())
	assert.Equal(t, ":8080", Endpoint{Port: 8080}.Address())
}

var tokenPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestRender_AutomaticLogin(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Render(Params{
		Backend:        Threaded,
		Directory:      dir,
		Interface:      "",
		Port:           8080,
		AutomaticLogin: true,
		StartPath:      "home/admin",
	}, nil)
	require.NoError(t, err)

	assert.Regexp(t, tokenPattern, cfg.StartupToken)
	assert.Equal(t, "http://localhost:8080/?startup_token="+cfg.StartupToken, cfg.OpenURL)
	assert.Equal(t, cfg.OpenURL, cfg.URL())
	assert.Empty(t, cfg.StartPath, "start path is not used with a token")
	assert.Empty(t, cfg.Endpoint)
	assert.Equal(t, filepath.Dir(dir), cfg.WorkDir)
	assert.Equal(t, filepath.Join(dir, "threaded.conf.yaml"), cfg.Path())
}

func TestRender_TokensAreUnique(t *testing.T) {
	p := Params{Backend: Threaded, Directory: t.TempDir(), Port: 8080, AutomaticLogin: true}
	a, err := Render(p, nil)
	require.NoError(t, err)
	b, err := Render(p, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.StartupToken, b.StartupToken)
}

func TestRender_NoAutomaticLogin(t *testing.T) {
	cfg, err := Render(Params{
		Backend:   Threaded,
		Directory: t.TempDir(),
		Interface: "127.0.0.1",
		Port:      9000,
		StartPath: "/pub",
	}, nil)
	require.NoError(t, err)

	assert.Empty(t, cfg.StartupToken)
	assert.Empty(t, cfg.OpenURL)
	assert.Equal(t, "http://127.0.0.1:9000/pub", cfg.URL())
}

func TestRender_SecureReactor(t *testing.T) {
	dir := t.TempDir()
	bundle := tls.NewBundle(filepath.Join(dir, "conf"))

	cfg, err := Render(Params{
		Backend:        Reactor,
		Directory:      filepath.Join(dir, "nb"),
		Interface:      "localhost",
		Port:           8443,
		Secure:         true,
		AutomaticLogin: true,
	}, bundle)
	require.NoError(t, err)

	assert.Equal(t, bundle.KeyFile, cfg.PrivateKey)
	assert.Equal(t, bundle.CertFile, cfg.Certificate)
	assert.True(t, strings.HasPrefix(cfg.OpenURL, "https://localhost:8443/?startup_token="))

	ep, err := ParseEndpoint(cfg.Endpoint)
	require.NoError(t, err)
	assert.Equal(t, Endpoint{
		Secure: true, Port: 8443, Interface: "localhost",
		PrivateKey: bundle.KeyFile, CertKey: bundle.CertFile,
	}, *ep)
}

func TestRender_SettingsLine(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Render(Params{Backend: Reactor, Directory: dir, Interface: "127.0.0.1", Port: 8081, Secure: true},
		tls.NewBundle(dir))
	require.NoError(t, err)

	assert.Equal(t, `"`+dir+`",interface="127.0.0.1",port=8081,secure=True`, cfg.Settings)

	settings, err := instance.ParseSettings(cfg.Settings)
	require.NoError(t, err)
	assert.Equal(t, instance.Settings{Interface: "127.0.0.1", Port: 8081, Secure: true}, *settings)
}

func TestRender_Profile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Render(Params{Backend: Reactor, Directory: dir, Port: 8080, Profile: true}, nil)
	require.NoError(t, err)
	assert.Regexp(t, `^nblaunch-reactor-profile-[0-9a-f-]{36}\.pprof$`, cfg.CPUProfile)
	assert.Equal(t, []string{"/bin/nblaunch", "serve", "--config", cfg.Path(), "--cpuprofile", cfg.CPUProfile},
		cfg.Command("/bin/nblaunch"))

	cfg, err = Render(Params{Backend: Threaded, Directory: dir, Port: 8080, Profile: true, ProfilePrefix: "run-"}, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cfg.CPUProfile, "run-"))

	cfg, err = Render(Params{Backend: Threaded, Directory: dir, Port: 8080}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"nblaunch", "serve", "--config", cfg.Path()}, cfg.Command("nblaunch"))
}

func TestRender_Invalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		params Params
	}{
		{name: "no backend", params: Params{Directory: dir, Port: 80}},
		{name: "no directory", params: Params{Backend: Threaded, Port: 80}},
		{name: "bad port", params: Params{Backend: Threaded, Directory: dir, Port: 0}},
		{name: "secure without bundle", params: Params{Backend: Threaded, Directory: dir, Port: 80, Secure: true}},
		{name: "single quote in interface", params: Params{Backend: Threaded, Directory: dir, Port: 80, Interface: "host'name"}},
		{name: "double quote in interface", params: Params{Backend: Threaded, Directory: dir, Port: 80, Interface: `a",port=1`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Render(tt.params, nil)
			assert.Error(t, err)
		})
	}
}

func TestCheckInterface(t *testing.T) {
	for _, iface := range []string{"", "localhost", "127.0.0.1", "::1", "nb-host.example.com"} {
		assert.NoError(t, CheckInterface(iface), iface)
	}
	for _, iface := range []string{"it's", `say"hi"`, `back\slash`, "two words", "tab\there"} {
		assert.Error(t, CheckInterface(iface), iface)
	}
}

func TestRenderedConfig_SettingsLineSurvivesWrite(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Render(Params{Backend: Threaded, Directory: dir, Interface: "::1", Port: 8080}, nil)
	require.NoError(t, err)

	path := filepath.Join(dir, Threaded.ConfigFile())
	require.NoError(t, cfg.Write(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	settings, err := instance.ParseSettings(string(data))
	require.NoError(t, err)
	assert.Equal(t, cfg.ListenSettings(), *settings)
}

func TestRenderedConfig_WriteLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Render(Params{
		Backend:        Reactor,
		Directory:      dir,
		Interface:      "127.0.0.1",
		Port:           8081,
		Secure:         true,
		AutomaticLogin: true,
	}, tls.NewBundle(filepath.Join(dir, "conf")))
	require.NoError(t, err)

	path := filepath.Join(dir, Reactor.ConfigFile())
	require.NoError(t, cfg.Write(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "# Generated by nblaunch."))
	assert.Contains(t, text, "backend: reactor\n")
	assert.Contains(t, text, `settings: '"`+dir+`",interface="127.0.0.1",port=8081,secure=True'`)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	// The duplicate detector reads the same file without decoding YAML.
	settings, err := instance.ParseSettings(text)
	require.NoError(t, err)
	assert.Equal(t, 8081, settings.Port)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.conf.yaml"))
	assert.Error(t, err)

	tests := map[string]string{
		"bad yaml":        "backend: [",
		"unknown backend": "backend: gunicorn\ndirectory: /x\nport: 80\nsettings: 'interface=\"\",port=80,secure=False'\n",
		"settings mismatch": "backend: threaded\ndirectory: /x\nport: 80\n" +
			"settings: 'interface=\"\",port=81,secure=False'\n",
		"reactor without endpoint": "backend: reactor\ndirectory: /x\nport: 80\n" +
			"settings: 'interface=\"\",port=80,secure=False'\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
