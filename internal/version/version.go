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

// Package version reports the nblaunch build version.
package version

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Version can be overridden at build time via ldflags:
// go build -ldflags="-X github.com/teradata-labs/nblaunch/internal/version.Version=vX.Y.Z"
var Version = "0.3.0"

// Get returns the current version, "dev" when unset.
func Get() string {
	if Version == "" {
		return "dev"
	}
	return Version
}

// Compatible reports whether a configuration rendered by version other can be served
// by this build: both must share a major version. Unparseable versions are accepted.
func Compatible(other string) bool {
	a, b := canonical(Get()), canonical(other)
	if !semver.IsValid(a) || !semver.IsValid(b) {
		return true
	}
	return semver.Major(a) == semver.Major(b)
}

func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
