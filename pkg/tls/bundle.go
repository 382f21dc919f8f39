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

// Package tls bootstraps and loads the certificate bundle used by secure notebook servers.
package tls

import (
	"path/filepath"

	"github.com/teradata-labs/nblaunch/internal/fsext"
)

const (
	// PrivateKeyFile is the private key file name inside the configuration directory.
	PrivateKeyFile = "private.pem"
	// CertificateFile is the public certificate file name inside the configuration directory.
	CertificateFile = "public.pem"
	// TemplateFile is the certificate template file name inside the configuration directory.
	TemplateFile = "cert.cfg"
)

// Bundle locates the key, certificate and generation template of one configuration directory.
type Bundle struct {
	Dir          string
	KeyFile      string
	CertFile     string
	TemplateFile string
}

// NewBundle returns the bundle rooted at confDir.
func NewBundle(confDir string) *Bundle {
	return &Bundle{
		Dir:          confDir,
		KeyFile:      filepath.Join(confDir, PrivateKeyFile),
		CertFile:     filepath.Join(confDir, CertificateFile),
		TemplateFile: filepath.Join(confDir, TemplateFile),
	}
}

// Exists reports whether both the key and the certificate are present.
// A bundle with only one of the two files counts as absent.
func (b *Bundle) Exists() bool {
	return fsext.AllExist(b.KeyFile, b.CertFile)
}
