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
	"os/exec"
	"strconv"
)

// ErrMissingToolchain is returned when no certificate toolchain can be found.
var ErrMissingToolchain = errors.New("no certificate toolchain found")

// Toolchain names accepted in configuration.
const (
	ToolchainAuto     = "auto"
	ToolchainOpenSSL  = "openssl"
	ToolchainCerttool = "certtool"
	ToolchainNative   = "native"
)

// Toolchain generates private keys and self-signed certificates.
type Toolchain interface {
	// Name identifies the toolchain in logs.
	Name() string

	// GenerateKey writes a new private key to keyFile.
	GenerateKey(ctx context.Context, keyFile string) error

	// SelfSign writes a certificate for the key in keyFile to certFile.
	// templateFile is the rendered form of tmpl.
	SelfSign(ctx context.Context, tmpl *Template, templateFile, keyFile, certFile string) error
}

// Runner executes an external command. Tests substitute it.
type Runner func(ctx context.Context, name string, args ...string) error

// LookPath resolves an executable on PATH. Tests substitute it.
type LookPath func(file string) (string, error)

// runCommand is the default Runner; it returns combined output on failure.
func runCommand(ctx context.Context, name string, args ...string) error {
	// #nosec G204 -- Intentional: toolchain binaries resolved from PATH with launcher-built arguments
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", name, err, out)
	}
	return nil
}

// OpenSSL drives the openssl binary.
type OpenSSL struct {
	Path string
	Run  Runner
}

// Name implements Toolchain.
func (o *OpenSSL) Name() string { return ToolchainOpenSSL }

// GenerateKey implements Toolchain.
func (o *OpenSSL) GenerateKey(ctx context.Context, keyFile string) error {
	return o.Run(ctx, o.Path, "genrsa", "-out", keyFile, "2048")
}

// SelfSign implements Toolchain. openssl cannot read certtool templates, so the subject,
// serial and validity are passed as arguments.
func (o *OpenSSL) SelfSign(ctx context.Context, tmpl *Template, _ string, keyFile, certFile string) error {
	args := []string{
		"req", "-new", "-x509",
		"-key", keyFile,
		"-out", certFile,
		"-days", strconv.Itoa(tmpl.ExpirationDays),
		"-subj", tmpl.Subject(),
	}
	if tmpl.Serial != "" {
		args = append(args, "-set_serial", tmpl.Serial)
	}
	return o.Run(ctx, o.Path, args...)
}

// Certtool drives the GnuTLS certtool binary.
type Certtool struct {
	Path string
	Run  Runner
}

// Name implements Toolchain.
func (c *Certtool) Name() string { return ToolchainCerttool }

// GenerateKey implements Toolchain.
func (c *Certtool) GenerateKey(ctx context.Context, keyFile string) error {
	return c.Run(ctx, c.Path, "--generate-privkey", "--outfile", keyFile)
}

// SelfSign implements Toolchain.
func (c *Certtool) SelfSign(ctx context.Context, _ *Template, templateFile, keyFile, certFile string) error {
	return c.Run(ctx, c.Path,
		"--generate-self-signed",
		"--template", templateFile,
		"--load-privkey", keyFile,
		"--outfile", certFile)
}

// Selection is the pair of toolchains used for one provisioning run.
type Selection struct {
	KeyGen Toolchain
	Signer Toolchain
}

// SelectToolchains picks the key generator and signer.
//
// In auto mode openssl generates keys when present, except on darwin when certtool is
// also available. certtool signs whenever present, openssl otherwise. The native
// toolchain is only used when asked for by name.
func SelectToolchains(mode, goos string, lookPath LookPath, run Runner) (*Selection, error) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if run == nil {
		run = runCommand
	}

	var openssl, certtool Toolchain
	if p, err := lookPath(ToolchainOpenSSL); err == nil {
		openssl = &OpenSSL{Path: p, Run: run}
	}
	if p, err := lookPath(ToolchainCerttool); err == nil {
		certtool = &Certtool{Path: p, Run: run}
	}

	switch mode {
	case "", ToolchainAuto:
		if openssl == nil && certtool == nil {
			return nil, ErrMissingToolchain
		}
		sel := &Selection{KeyGen: certtool, Signer: certtool}
		if openssl != nil && (goos != "darwin" || certtool == nil) {
			sel.KeyGen = openssl
		}
		if certtool == nil {
			sel.Signer = openssl
		}
		return sel, nil
	case ToolchainOpenSSL:
		if openssl == nil {
			return nil, fmt.Errorf("%w: openssl not on PATH", ErrMissingToolchain)
		}
		return &Selection{KeyGen: openssl, Signer: openssl}, nil
	case ToolchainCerttool:
		if certtool == nil {
			return nil, fmt.Errorf("%w: certtool not on PATH", ErrMissingToolchain)
		}
		return &Selection{KeyGen: certtool, Signer: certtool}, nil
	case ToolchainNative:
		native := &Native{}
		return &Selection{KeyGen: native, Signer: native}, nil
	default:
		return nil, fmt.Errorf("unknown certificate toolchain: %s (must be auto, openssl, certtool, or native)", mode)
	}
}
