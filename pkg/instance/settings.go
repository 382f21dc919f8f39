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

// Package instance tracks the notebook server that owns a data directory.
//
// A running server holds an exclusive lock on <dir>/server.pid for its whole lifetime
// and leaves a rendered configuration next to it. Detect combines the pid probe, the
// lock probe and the configuration's settings line into a Status.
package instance

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrUnknownSettings is returned when a settings line cannot be parsed.
var ErrUnknownSettings = errors.New("unrecognized settings line")

var settingsPattern = regexp.MustCompile(`interface="(.*)",port=(\d*),secure=(True|False)`)

// Settings are the listen parameters of a running server.
type Settings struct {
	Interface string
	Port      int
	Secure    bool
}

// String renders the settings contract line, e.g.
// interface="127.0.0.1",port=8081,secure=True.
func (s Settings) String() string {
	secure := "False"
	if s.Secure {
		secure = "True"
	}
	return fmt.Sprintf(`interface="%s",port=%d,secure=%s`, s.Interface, s.Port, secure)
}

// ParseSettings finds a settings line anywhere in text.
func ParseSettings(text string) (*Settings, error) {
	m := settingsPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, ErrUnknownSettings
	}
	port, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, fmt.Errorf("%w: port %q", ErrUnknownSettings, m[2])
	}
	return &Settings{
		Interface: m[1],
		Port:      port,
		Secure:    m[3] == "True",
	}, nil
}
