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
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint is the reactor listen description, written as a connection string:
//
//	ssl:<port>:interface=<iface>:privateKey=<key>:certKey=<cert>
//	tcp:<port>:interface=<iface>
//
// Colons and backslashes inside values are escaped with a backslash.
type Endpoint struct {
	Secure     bool
	Port       int
	Interface  string
	PrivateKey string
	CertKey    string
}

// String encodes the endpoint as a connection string.
func (e Endpoint) String() string {
	parts := []string{"tcp", strconv.Itoa(e.Port), "interface=" + escapeEndpoint(e.Interface)}
	if e.Secure {
		parts[0] = "ssl"
		parts = append(parts,
			"privateKey="+escapeEndpoint(e.PrivateKey),
			"certKey="+escapeEndpoint(e.CertKey))
	}
	return strings.Join(parts, ":")
}

// Address is the host:port to listen on.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Interface, strconv.Itoa(e.Port))
}

// ParseEndpoint decodes a connection string produced by Endpoint.String.
func ParseEndpoint(s string) (*Endpoint, error) {
	fields := splitEndpoint(s)
	if len(fields) < 2 {
		return nil, fmt.Errorf("invalid endpoint %q: want <type>:<port>[:key=value...]", s)
	}

	e := &Endpoint{}
	switch fields[0] {
	case "tcp":
	case "ssl":
		e.Secure = true
	default:
		return nil, fmt.Errorf("invalid endpoint %q: unsupported type %q", s, fields[0])
	}

	port, err := strconv.Atoi(fields[1])
	if err != nil || port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid endpoint %q: bad port %q", s, fields[1])
	}
	e.Port = port

	for _, f := range fields[2:] {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("invalid endpoint %q: field %q is not key=value", s, f)
		}
		value = unescapeEndpoint(value)
		switch key {
		case "interface":
			e.Interface = value
		case "privateKey":
			e.PrivateKey = value
		case "certKey":
			e.CertKey = value
		default:
			return nil, fmt.Errorf("invalid endpoint %q: unknown field %q", s, key)
		}
	}

	if e.Secure && (e.PrivateKey == "" || e.CertKey == "") {
		return nil, fmt.Errorf("invalid endpoint %q: ssl requires privateKey and certKey", s)
	}
	return e, nil
}

func escapeEndpoint(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, ":", `\:`)
}

func unescapeEndpoint(s string) string {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// splitEndpoint splits on colons not preceded by an escaping backslash.
// Escapes are left in place for unescapeEndpoint.
func splitEndpoint(s string) []string {
	var fields []string
	var cur strings.Builder
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			cur.WriteRune(r)
			escaped = true
		case r == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(fields, cur.String())
}
