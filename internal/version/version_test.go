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
package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompatible(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })

	Version = "1.4.2"
	assert.True(t, Compatible("1.0.0"))
	assert.True(t, Compatible("v1.9.0"))
	assert.False(t, Compatible("2.0.0"))
	assert.False(t, Compatible("0.3.0"))
	assert.True(t, Compatible("dev"))
	assert.True(t, Compatible(""))

	Version = ""
	assert.Equal(t, "dev", Get())
	assert.True(t, Compatible("7.0.0"))
}
