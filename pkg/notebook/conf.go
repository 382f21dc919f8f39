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
package notebook

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Configuration keys.
const (
	KeyIdleTimeout  = "idle_timeout"
	KeyAccounts     = "accounts"
	KeyOpenID       = "openid"
	KeyServerPool   = "server_pool"
	KeyUlimit       = "ulimit"
	KeyModelVersion = "model_version"
)

func defaultConf() map[string]any {
	return map[string]any{
		KeyIdleTimeout:  0,
		KeyAccounts:     false,
		KeyOpenID:       false,
		KeyServerPool:   []string{},
		KeyUlimit:       "",
		KeyModelVersion: 0,
	}
}

// Conf is the notebook's mutable configuration. Values are persisted as JSON by Save.
type Conf struct {
	mu     sync.RWMutex
	values map[string]any
}

func newConf() *Conf {
	return &Conf{values: defaultConf()}
}

// Get returns the raw value for key.
func (c *Conf) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Set stores a raw value.
func (c *Conf) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Keys returns the configured keys in sorted order.
func (c *Conf) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IdleTimeout is how long an idle worksheet process is kept. Zero disables the timeout.
func (c *Conf) IdleTimeout() time.Duration {
	return time.Duration(c.int(KeyIdleTimeout)) * time.Second
}

// SetIdleTimeout stores the timeout in whole seconds.
func (c *Conf) SetIdleTimeout(d time.Duration) {
	c.Set(KeyIdleTimeout, int(d/time.Second))
}

// Accounts reports whether users may create their own accounts.
func (c *Conf) Accounts() bool { return c.bool(KeyAccounts) }

// SetAccounts enables or disables self-service account creation.
func (c *Conf) SetAccounts(v bool) { c.Set(KeyAccounts, v) }

// OpenID reports whether OpenID login is enabled.
func (c *Conf) OpenID() bool { return c.bool(KeyOpenID) }

// SetOpenID enables or disables OpenID login.
func (c *Conf) SetOpenID(v bool) { c.Set(KeyOpenID, v) }

// ServerPool lists the user@host specs worksheet processes run on.
func (c *Conf) ServerPool() []string {
	v, _ := c.Get(KeyServerPool)
	switch pool := v.(type) {
	case []string:
		return append([]string(nil), pool...)
	case []any:
		out := make([]string, 0, len(pool))
		for _, p := range pool {
			if s, ok := p.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Ulimit is the resource limit string applied to worksheet processes.
func (c *Conf) Ulimit() string {
	v, _ := c.Get(KeyUlimit)
	s, _ := v.(string)
	return s
}

// ModelVersion is the data model version the stored notebook was last upgraded to.
func (c *Conf) ModelVersion() int { return c.int(KeyModelVersion) }

func (c *Conf) bool(key string) bool {
	v, _ := c.Get(key)
	b, _ := v.(bool)
	return b
}

func (c *Conf) int(key string) int {
	v, _ := c.Get(key)
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func (c *Conf) encode() (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[k] = string(data)
	}
	return out, nil
}

func (c *Conf) decode(key, raw string) error {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return err
	}
	c.Set(key, v)
	return nil
}
