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
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/MakeNowJust/heredoc"
	"github.com/google/uuid"
	"github.com/teradata-labs/nblaunch/internal/version"
	"github.com/teradata-labs/nblaunch/pkg/instance"
	"github.com/teradata-labs/nblaunch/pkg/tls"
	"gopkg.in/yaml.v3"
)

var configHeader = heredoc.Doc(`
	# Generated by nblaunch. Do not edit: this file is rewritten on every launch.
	# The server reads it with: nblaunch serve --config <this file>
`)

// Params are the launch parameters a configuration is rendered from.
type Params struct {
	Backend   Backend
	Directory string
	Interface string
	Port      int
	Secure    bool

	AutomaticLogin bool
	StartPath      string

	Profile       bool
	ProfilePrefix string
}

// RenderedConfig is the runtime configuration of one spawned server.
type RenderedConfig struct {
	// Version is the nblaunch version that rendered the file.
	Version string `yaml:"version"`

	Backend   Backend `yaml:"backend"`
	Directory string  `yaml:"directory"`
	WorkDir   string  `yaml:"work_dir"`
	Interface string  `yaml:"interface"`
	Port      int     `yaml:"port"`
	Secure    bool    `yaml:"secure"`

	PrivateKey  string `yaml:"private_key,omitempty"`
	Certificate string `yaml:"certificate,omitempty"`

	StartupToken string `yaml:"startup_token,omitempty"`
	OpenURL      string `yaml:"open_url,omitempty"`
	StartPath    string `yaml:"start_path,omitempty"`

	// Endpoint is the reactor connection string.
	Endpoint string `yaml:"endpoint,omitempty"`

	CPUProfile string `yaml:"cpu_profile,omitempty"`

	Settings string `yaml:"settings"`

	path string
}

// CheckInterface rejects listen interfaces that cannot be written into the settings
// line verbatim. An empty interface listens on all addresses.
func CheckInterface(iface string) error {
	if i := strings.IndexFunc(iface, func(r rune) bool {
		return r == '"' || r == '\'' || r == '\\' || unicode.IsSpace(r) || unicode.IsControl(r)
	}); i >= 0 {
		return fmt.Errorf("invalid interface %q: character %q not allowed", iface, iface[i])
	}
	return nil
}

// Render builds the configuration for p. bundle must be non-nil when p.Secure is set.
func Render(p Params, bundle *tls.Bundle) (*RenderedConfig, error) {
	if !p.Backend.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBackend, int(p.Backend))
	}
	if p.Directory == "" {
		return nil, fmt.Errorf("notebook directory is required")
	}
	if p.Port < 1 || p.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", p.Port)
	}
	if err := CheckInterface(p.Interface); err != nil {
		return nil, err
	}
	if p.Secure && bundle == nil {
		return nil, fmt.Errorf("secure server requires a certificate bundle")
	}

	dir, err := filepath.Abs(p.Directory)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve notebook directory: %w", err)
	}

	cfg := &RenderedConfig{
		Version:   version.Get(),
		Backend:   p.Backend,
		Directory: dir,
		WorkDir:   filepath.Dir(dir),
		Interface: p.Interface,
		Port:      p.Port,
		Secure:    p.Secure,
		path:      filepath.Join(dir, p.Backend.ConfigFile()),
	}
	if p.Secure {
		cfg.PrivateKey = bundle.KeyFile
		cfg.Certificate = bundle.CertFile
	}

	if p.AutomaticLogin {
		token, err := NewStartupToken()
		if err != nil {
			return nil, err
		}
		cfg.StartupToken = token
		cfg.OpenURL = BaseURL(p.Interface, p.Port, p.Secure) + "/?startup_token=" + token
	} else {
		cfg.StartPath = p.StartPath
	}

	if p.Backend == Reactor {
		cfg.Endpoint = Endpoint{
			Secure:     p.Secure,
			Port:       p.Port,
			Interface:  p.Interface,
			PrivateKey: cfg.PrivateKey,
			CertKey:    cfg.Certificate,
		}.String()
	}

	if p.Profile {
		prefix := p.ProfilePrefix
		if prefix == "" {
			prefix = fmt.Sprintf("nblaunch-%s-profile-", p.Backend)
		}
		cfg.CPUProfile = prefix + uuid.NewString() + ".pprof"
	}

	cfg.Settings = `"` + dir + `",` + cfg.ListenSettings().String()
	return cfg, nil
}

// NewStartupToken returns 128 random bits as lowercase hex.
func NewStartupToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate startup token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// BaseURL is the server root, with localhost standing in for an empty interface.
func BaseURL(iface string, port int, secure bool) string {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	host := iface
	if host == "" {
		host = "localhost"
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// ListenSettings returns the interface, port and security of the configuration.
func (c *RenderedConfig) ListenSettings() instance.Settings {
	return instance.Settings{Interface: c.Interface, Port: c.Port, Secure: c.Secure}
}

// URL is the page to show the user: the startup-token URL when automatic login is on,
// otherwise the server root plus the start path.
func (c *RenderedConfig) URL() string {
	if c.OpenURL != "" {
		return c.OpenURL
	}
	return BaseURL(c.Interface, c.Port, c.Secure) + "/" + strings.TrimPrefix(c.StartPath, "/")
}

// Path is where the configuration was written or loaded from.
func (c *RenderedConfig) Path() string {
	return c.path
}

// Command returns the argv that starts a server for this configuration.
func (c *RenderedConfig) Command(executable string) []string {
	args := []string{executable, "serve", "--config", c.path}
	if c.CPUProfile != "" {
		args = append(args, "--cpuprofile", c.CPUProfile)
	}
	return args
}

// Write serializes the configuration to path. The settings line is single-quoted so
// its double quotes survive verbatim.
func (c *RenderedConfig) Write(path string) error {
	var node yaml.Node
	if err := node.Encode(c); err != nil {
		return fmt.Errorf("failed to encode rendered config: %w", err)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "settings" {
			node.Content[i+1].Style = yaml.SingleQuotedStyle
		}
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return fmt.Errorf("failed to encode rendered config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode rendered config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write rendered config %s: %w", path, err)
	}
	c.path = path
	return nil
}

// Load reads a configuration written by Write.
func Load(path string) (*RenderedConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered config: %w", err)
	}

	var cfg RenderedConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse rendered config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rendered config %s: %w", path, err)
	}
	cfg.path = path
	return &cfg, nil
}

// Validate checks the fields a server needs to start.
func (c *RenderedConfig) Validate() error {
	if !c.Backend.Valid() {
		return ErrUnknownBackend
	}
	if c.Directory == "" {
		return fmt.Errorf("directory is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if err := CheckInterface(c.Interface); err != nil {
		return err
	}
	if c.Secure && (c.PrivateKey == "" || c.Certificate == "") {
		return fmt.Errorf("secure server requires private_key and certificate")
	}
	if c.Backend == Reactor {
		if _, err := ParseEndpoint(c.Endpoint); err != nil {
			return err
		}
	}
	settings, err := instance.ParseSettings(c.Settings)
	if err != nil {
		return err
	}
	if *settings != c.ListenSettings() {
		return fmt.Errorf("settings line %q disagrees with interface, port or secure", c.Settings)
	}
	return nil
}
