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
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
)

// DefaultExpirationDays is the validity period of generated certificates.
const DefaultExpirationDays = 10000

// Template describes a self-signed certificate in certtool template terms.
// Zero-valued optional fields are omitted when rendered.
type Template struct {
	Organization   string
	Unit           string
	Locality       string
	State          string
	Country        string
	CommonName     string
	UID            string
	Serial         string
	DNSNames       []string
	IPAddresses    []string
	ExpirationDays int
	Email          string
	CA             bool
	TLSWWWClient   bool
	TLSWWWServer   bool
	SigningKey     bool
	EncryptionKey  bool
}

// NewTemplate returns the default server certificate template for domain.
func NewTemplate(domain string) (*Template, error) {
	if domain == "" {
		domain = "localhost"
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<31))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	return &Template{
		Organization:   fmt.Sprintf("Notebook (at %s)", domain),
		Unit:           "389",
		State:          "Washington",
		Country:        "US",
		CommonName:     domain,
		UID:            "notebook_user",
		Serial:         strconv.FormatInt(serial.Int64()+1, 10),
		ExpirationDays: DefaultExpirationDays,
		Email:          "notebook@localhost",
		TLSWWWServer:   true,
		SigningKey:     true,
		EncryptionKey:  true,
	}, nil
}

// Render produces the template artifact: one `key = "value"` line per set field and a bare
// `key =` line for each enabled flag, in a fixed order.
func (t *Template) Render() string {
	var b strings.Builder
	str := func(key, val string) {
		if val != "" {
			fmt.Fprintf(&b, "%s = %q\n", key, val)
		}
	}
	list := func(key string, vals []string) {
		if len(vals) == 0 {
			return
		}
		quoted := make([]string, len(vals))
		for i, v := range vals {
			quoted[i] = strconv.Quote(v)
		}
		fmt.Fprintf(&b, "%s = %s\n", key, strings.Join(quoted, " "))
	}
	flag := func(key string, on bool) {
		if on {
			fmt.Fprintf(&b, "%s =\n", key)
		}
	}

	str("organization", t.Organization)
	str("unit", t.Unit)
	str("locality", t.Locality)
	str("state", t.State)
	str("country", t.Country)
	str("cn", t.CommonName)
	str("uid", t.UID)
	str("serial", t.Serial)
	list("dns_name", t.DNSNames)
	list("ip_address", t.IPAddresses)
	if t.ExpirationDays > 0 {
		str("expiration_days", strconv.Itoa(t.ExpirationDays))
	}
	str("email", t.Email)
	flag("ca", t.CA)
	flag("tls_www_client", t.TLSWWWClient)
	flag("tls_www_server", t.TLSWWWServer)
	flag("signing_key", t.SigningKey)
	flag("encryption_key", t.EncryptionKey)
	return b.String()
}

// WriteFile writes the rendered template to path.
func (t *Template) WriteFile(path string) error {
	if err := os.WriteFile(path, []byte(t.Render()), 0600); err != nil {
		return fmt.Errorf("failed to write certificate template %s: %w", path, err)
	}
	return nil
}

// Subject renders the template as an openssl -subj argument.
func (t *Template) Subject() string {
	var b strings.Builder
	part := func(key, val string) {
		if val == "" {
			return
		}
		val = strings.ReplaceAll(val, "/", `\/`)
		fmt.Fprintf(&b, "/%s=%s", key, val)
	}
	part("C", t.Country)
	part("ST", t.State)
	part("L", t.Locality)
	part("O", t.Organization)
	part("OU", t.Unit)
	part("CN", t.CommonName)
	part("UID", t.UID)
	part("emailAddress", t.Email)
	return b.String()
}
