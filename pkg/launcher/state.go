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
package launcher

import "fmt"

// State is a step of the launch sequence.
type State int

const (
	StateLoading State = iota + 1
	StateConfiguring
	StatePortResolving
	StateDuplicateChecking
	StateReusing
	StateProvisioning
	StateConfigSynthesizing
	StateSpawning
	StateRunning
	StateSaved
)

var stateNames = map[State]string{
	StateLoading:            "loading",
	StateConfiguring:        "configuring",
	StatePortResolving:      "port_resolving",
	StateDuplicateChecking:  "duplicate_checking",
	StateReusing:            "reusing",
	StateProvisioning:       "provisioning",
	StateConfigSynthesizing: "config_synthesizing",
	StateSpawning:           "spawning",
	StateRunning:            "running",
	StateSaved:              "saved",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}
