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
	"io"
	"os"
	"runtime"

	"go.uber.org/zap"
)

// ErrProvisioningFailed is returned when provisioning ran but the bundle is still incomplete.
var ErrProvisioningFailed = errors.New("certificate provisioning failed")

// DomainPrompt asks the operator for the certificate domain. An empty answer means localhost.
type DomainPrompt func() (string, error)

// ProvisionerConfig configures a Provisioner.
type ProvisionerConfig struct {
	Bundle *Bundle

	// Toolchain is auto, openssl, certtool or native (default: auto).
	Toolchain string

	// Domain skips the prompt when set.
	Domain string
	Prompt DomainPrompt

	// Out receives operator-facing progress lines (default: io.Discard).
	Out    io.Writer
	Logger *zap.Logger

	// GOOS, LookPath and Run default to the running system.
	GOOS     string
	LookPath LookPath
	Run      Runner
}

// Provisioner creates a self-signed certificate bundle on demand.
type Provisioner struct {
	config ProvisionerConfig
	logger *zap.Logger
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(config ProvisionerConfig) (*Provisioner, error) {
	if config.Bundle == nil {
		return nil, fmt.Errorf("certificate bundle is nil")
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Out == nil {
		config.Out = io.Discard
	}
	if config.GOOS == "" {
		config.GOOS = runtime.GOOS
	}
	return &Provisioner{config: config, logger: config.Logger}, nil
}

// Provision generates the bundle unless both files already exist.
//
// Failures of the external tools are logged and reported on Out but not returned; use
// EnsureBundle to get ErrProvisioningFailed when the files are still missing afterwards.
func (p *Provisioner) Provision(ctx context.Context) error {
	b := p.config.Bundle
	if b.Exists() {
		p.logger.Debug("Certificate bundle already present", zap.String("dir", b.Dir))
		return nil
	}

	if err := os.MkdirAll(b.Dir, 0700); err != nil {
		return fmt.Errorf("failed to create configuration directory %s: %w", b.Dir, err)
	}

	sel, err := SelectToolchains(p.config.Toolchain, p.config.GOOS, p.config.LookPath, p.config.Run)
	if err != nil {
		return err
	}

	domain, err := p.domain()
	if err != nil {
		return err
	}

	tmpl, err := NewTemplate(domain)
	if err != nil {
		return err
	}
	if err := tmpl.WriteFile(b.TemplateFile); err != nil {
		return err
	}

	fmt.Fprintf(p.config.Out, "Using %s to generate key\n", sel.KeyGen.Name())
	if err := sel.KeyGen.GenerateKey(ctx, b.KeyFile); err != nil {
		p.report("Key generation failed", sel.KeyGen, err)
	}
	if _, err := os.Stat(b.KeyFile); err == nil {
		if err := os.Chmod(b.KeyFile, 0600); err != nil {
			p.logger.Warn("Failed to restrict private key permissions", zap.String("path", b.KeyFile), zap.Error(err))
		}
	}

	fmt.Fprintf(p.config.Out, "Using %s to self-sign certificate for %s\n", sel.Signer.Name(), domain)
	if err := sel.Signer.SelfSign(ctx, tmpl, b.TemplateFile, b.KeyFile, b.CertFile); err != nil {
		p.report("Certificate signing failed", sel.Signer, err)
	}

	p.logger.Info("Certificate provisioning finished",
		zap.String("dir", b.Dir),
		zap.String("keygen", sel.KeyGen.Name()),
		zap.String("signer", sel.Signer.Name()),
		zap.Bool("complete", b.Exists()))
	return nil
}

// EnsureBundle provisions when needed and verifies both files exist afterwards.
func (p *Provisioner) EnsureBundle(ctx context.Context) error {
	if err := p.Provision(ctx); err != nil {
		return err
	}
	if !p.config.Bundle.Exists() {
		return fmt.Errorf("%w: %s or %s missing", ErrProvisioningFailed, p.config.Bundle.KeyFile, p.config.Bundle.CertFile)
	}
	return nil
}

func (p *Provisioner) domain() (string, error) {
	if p.config.Domain != "" {
		return p.config.Domain, nil
	}
	if p.config.Prompt == nil {
		return "localhost", nil
	}
	dn, err := p.config.Prompt()
	if err != nil {
		return "", fmt.Errorf("failed to read domain name: %w", err)
	}
	if dn == "" {
		fmt.Fprintln(p.config.Out, "Using default localhost")
		return "localhost", nil
	}
	return dn, nil
}

func (p *Provisioner) report(msg string, tc Toolchain, err error) {
	fmt.Fprintf(p.config.Out, "%s (%s): %v\n", msg, tc.Name(), err)
	p.logger.Warn(msg, zap.String("toolchain", tc.Name()), zap.Error(err))
}
