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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Native generates keys and certificates in-process with crypto/x509.
type Native struct{}

// Name implements Toolchain.
func (n *Native) Name() string { return ToolchainNative }

// GenerateKey implements Toolchain.
func (n *Native) GenerateKey(_ context.Context, keyFile string) error {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate private key: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	if err := os.WriteFile(keyFile, keyPEM, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	return nil
}

// SelfSign implements Toolchain.
func (n *Native) SelfSign(_ context.Context, tmpl *Template, _ string, keyFile, certFile string) error {
	privateKey, err := loadECKey(keyFile)
	if err != nil {
		return err
	}

	serialNumber, ok := new(big.Int).SetString(tmpl.Serial, 10)
	if !ok {
		serialNumber, err = rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
		if err != nil {
			return fmt.Errorf("failed to generate serial number: %w", err)
		}
	}

	notBefore := time.Now()
	notAfter := notBefore.Add(time.Duration(tmpl.ExpirationDays) * 24 * time.Hour)

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization:       nonEmpty(tmpl.Organization),
			OrganizationalUnit: nonEmpty(tmpl.Unit),
			Locality:           nonEmpty(tmpl.Locality),
			Province:           nonEmpty(tmpl.State),
			Country:            nonEmpty(tmpl.Country),
			CommonName:         tmpl.CommonName,
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		BasicConstraintsValid: true,
		IsCA:                  tmpl.CA,
	}
	if tmpl.SigningKey {
		template.KeyUsage |= x509.KeyUsageDigitalSignature
	}
	if tmpl.EncryptionKey {
		template.KeyUsage |= x509.KeyUsageKeyEncipherment
	}
	if tmpl.TLSWWWServer {
		template.ExtKeyUsage = append(template.ExtKeyUsage, x509.ExtKeyUsageServerAuth)
	}
	if tmpl.TLSWWWClient {
		template.ExtKeyUsage = append(template.ExtKeyUsage, x509.ExtKeyUsageClientAuth)
	}

	template.DNSNames = append(template.DNSNames, tmpl.DNSNames...)
	if len(template.DNSNames) == 0 && tmpl.CommonName != "" && net.ParseIP(tmpl.CommonName) == nil {
		template.DNSNames = []string{tmpl.CommonName}
	}
	for _, ipStr := range tmpl.IPAddresses {
		if ip := net.ParseIP(ipStr); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		}
	}
	if ip := net.ParseIP(tmpl.CommonName); ip != nil {
		template.IPAddresses = append(template.IPAddresses, ip)
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	if err := os.WriteFile(certFile, certPEM, 0644); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}
	return nil
}

func loadECKey(keyFile string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(filepath.Clean(keyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("private key %s is not PEM encoded", keyFile)
	}

	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("native toolchain only signs with ECDSA keys, got %T", parsed)
	}
	return key, nil
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
